package schema

// ExecutionStatus enumerates the states of one workflow execution.
// processing acts as a mutex: exactly one advancer may hold it per
// execution at a time.
type ExecutionStatus string

const (
	ExecActive     ExecutionStatus = "active"
	ExecProcessing ExecutionStatus = "processing"
	ExecDelayed    ExecutionStatus = "delayed"
	ExecCompleted  ExecutionStatus = "completed"
	ExecCancelled  ExecutionStatus = "cancel"
	ExecFailed     ExecutionStatus = "fail"
	ExecError      ExecutionStatus = "error"
)

// Terminal reports whether an execution in this status can never advance again.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecCompleted, ExecCancelled, ExecFailed, ExecError:
		return true
	}
	return false
}

// ControlFunctionName is the one internal routine whose next_step output is
// honored as a routing instruction. Any other step returning next_step is
// treated as ordinary payload.
const ControlFunctionName = "set_next"

// AttemptStatus is the recorded outcome of one execution attempt.
type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)
