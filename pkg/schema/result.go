package schema

import "time"

// NextKind tags the control signal a step may emit about where the
// execution should go next.
type NextKind string

const (
	NextStep     NextKind = "step"     // jump to a specific step number
	NextComplete NextKind = "complete" // no further steps
	NextCancel   NextKind = "cancel"   // terminate with status cancel
	NextFail     NextKind = "fail"     // terminate with status fail
)

// NextSignal is an explicit routing instruction. Only control steps may
// emit one; Step is meaningful only when Kind == NextStep.
type NextSignal struct {
	Kind NextKind `json:"kind"`
	Step int      `json:"step,omitempty"`
}

// StepResult is the outcome of executing one job or workflow step.
// Output carries the ordinary payload; the remaining fields are optional
// control signals, modeled separately so that business output can never be
// mistaken for flow instructions.
type StepResult struct {
	Output       any            `json:"output,omitempty"`
	SetVars      map[string]any `json:"set_vars,omitempty"`
	Next         *NextSignal    `json:"next,omitempty"`
	DelayedUntil *time.Time     `json:"delayed_until,omitempty"`
}

// ParseNextValue interprets the raw next_step value returned by a control
// routine: numbers jump, nil completes, "cancel"/"fail" terminate.
func ParseNextValue(v any) (*NextSignal, error) {
	switch n := v.(type) {
	case nil:
		return &NextSignal{Kind: NextComplete}, nil
	case int:
		return &NextSignal{Kind: NextStep, Step: n}, nil
	case int64:
		return &NextSignal{Kind: NextStep, Step: int(n)}, nil
	case float64:
		return &NextSignal{Kind: NextStep, Step: int(n)}, nil
	case string:
		switch n {
		case "cancel":
			return &NextSignal{Kind: NextCancel}, nil
		case "fail":
			return &NextSignal{Kind: NextFail}, nil
		}
		return nil, NewErrorf(ErrCodeValidation, "invalid next_step value %q", n)
	default:
		return nil, NewErrorf(ErrCodeValidation, "invalid next_step type %T", v)
	}
}
