package routines

import (
	"context"
	"time"

	"github.com/worklinehq/workline/internal/script"
	"github.com/worklinehq/workline/pkg/schema"
)

// NewDefaultRegistry builds a registry preloaded with the built-in
// routines. The jq engine backs the transform routine.
func NewDefaultRegistry(jq *script.GoJQEngine) (*Registry, error) {
	r := NewRegistry()
	builtins := []Routine{
		&setNextRoutine{},
		&scheduleResumeRoutine{},
		&setVarsRoutine{},
		&noopRoutine{},
		&transformRoutine{jq: jq},
	}
	for _, b := range builtins {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// setNextRoutine is the control routine. Its params.value decides where
// the execution goes next: a number jumps to that step, nil completes,
// "cancel" or "fail" terminate. The advancer only honors the signal when
// the step genuinely invoked this routine.
type setNextRoutine struct{}

func (setNextRoutine) Name() string        { return schema.ControlFunctionName }
func (setNextRoutine) Description() string { return "route the execution to a given step" }

func (setNextRoutine) Validate(params map[string]any) error {
	_, err := schema.ParseNextValue(params["value"])
	return err
}

func (setNextRoutine) Execute(ctx context.Context, params map[string]any) (*schema.StepResult, error) {
	next, err := schema.ParseNextValue(params["value"])
	if err != nil {
		return nil, err
	}
	return &schema.StepResult{
		Output: map[string]any{"next_step": params["value"]},
		Next:   next,
	}, nil
}

// scheduleResumeRoutine pauses the execution until a wall-clock time.
// params.resume_at is an RFC 3339 timestamp, or params.delay_seconds a
// relative offset; params.next_step optionally names the step to resume
// at instead of the one after the current step.
type scheduleResumeRoutine struct{}

func (scheduleResumeRoutine) Name() string        { return "schedule_resume" }
func (scheduleResumeRoutine) Description() string { return "delay the execution until a later time" }

func (scheduleResumeRoutine) Validate(params map[string]any) error {
	_, err := resumeTime(params)
	return err
}

func (scheduleResumeRoutine) Execute(ctx context.Context, params map[string]any) (*schema.StepResult, error) {
	at, err := resumeTime(params)
	if err != nil {
		return nil, err
	}

	res := &schema.StepResult{
		Output:       map[string]any{"resume_at": at.UTC().Format(time.RFC3339)},
		DelayedUntil: &at,
	}
	if v, ok := params["next_step"]; ok {
		next, err := schema.ParseNextValue(v)
		if err != nil {
			return nil, err
		}
		res.Next = next
	}
	return res, nil
}

func resumeTime(params map[string]any) (time.Time, error) {
	if raw, ok := params["resume_at"]; ok {
		s, ok := raw.(string)
		if !ok {
			return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation, "resume_at must be a string, got %T", raw)
		}
		at, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation, "resume_at is not RFC 3339: %s", err.Error())
		}
		return at, nil
	}

	if raw, ok := params["delay_seconds"]; ok {
		var secs float64
		switch v := raw.(type) {
		case int:
			secs = float64(v)
		case int64:
			secs = float64(v)
		case float64:
			secs = v
		default:
			return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation, "delay_seconds must be a number, got %T", raw)
		}
		if secs <= 0 {
			return time.Time{}, schema.NewError(schema.ErrCodeValidation, "delay_seconds must be positive")
		}
		return time.Now().UTC().Add(time.Duration(secs * float64(time.Second))), nil
	}

	return time.Time{}, schema.NewError(schema.ErrCodeValidation, "schedule_resume requires resume_at or delay_seconds")
}

// setVarsRoutine writes its params into the execution variables as
// dynamic set_vars.
type setVarsRoutine struct{}

func (setVarsRoutine) Name() string        { return "set_vars" }
func (setVarsRoutine) Description() string { return "merge params into the execution variables" }

func (setVarsRoutine) Validate(params map[string]any) error { return nil }

func (setVarsRoutine) Execute(ctx context.Context, params map[string]any) (*schema.StepResult, error) {
	return &schema.StepResult{
		Output:  params,
		SetVars: params,
	}, nil
}

// noopRoutine does nothing. Useful as a placeholder step while a
// workflow is being drafted.
type noopRoutine struct{}

func (noopRoutine) Name() string        { return "noop" }
func (noopRoutine) Description() string { return "do nothing" }

func (noopRoutine) Validate(params map[string]any) error { return nil }

func (noopRoutine) Execute(ctx context.Context, params map[string]any) (*schema.StepResult, error) {
	return &schema.StepResult{}, nil
}

// transformRoutine reshapes params.input with a jq expression.
type transformRoutine struct {
	jq *script.GoJQEngine
}

func (transformRoutine) Name() string        { return "transform" }
func (transformRoutine) Description() string { return "reshape input with a jq expression" }

func (t *transformRoutine) Validate(params map[string]any) error {
	if t.jq == nil {
		return schema.NewError(schema.ErrCodeExecution, "transform routine has no jq engine")
	}
	if s, ok := params["expression"].(string); !ok || s == "" {
		return schema.NewError(schema.ErrCodeValidation, "transform requires a non-empty expression string")
	}
	return nil
}

func (t *transformRoutine) Execute(ctx context.Context, params map[string]any) (*schema.StepResult, error) {
	expression := params["expression"].(string)

	value, err := t.jq.Evaluate(ctx, expression, map[string]any{"input": params["input"]})
	if err != nil {
		return nil, err
	}
	return &schema.StepResult{Output: value}, nil
}
