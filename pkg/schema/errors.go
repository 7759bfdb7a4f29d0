package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeExecution       = "EXECUTION_ERROR"
	ErrCodeTransport       = "TRANSPORT_ERROR"
	ErrCodeUnknownFunction = "UNKNOWN_FUNCTION"
	ErrCodeScript          = "SCRIPT_ERROR"
	ErrCodeClaimConflict   = "CLAIM_CONFLICT"
	ErrCodeTimeout         = "TIMEOUT_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeStore           = "STORE_ERROR"
)

// WorklineError is the structured error type for all engine operations.
type WorklineError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Step    int            `json:"step_number,omitempty"`
	Cause   error          `json:"-"`
}

func (e *WorklineError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("[%s] step %d: %s", e.Code, e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *WorklineError) Unwrap() error {
	return e.Cause
}

// NewError creates a new WorklineError.
func NewError(code, message string) *WorklineError {
	return &WorklineError{Code: code, Message: message}
}

// NewErrorf creates a new WorklineError with a formatted message.
func NewErrorf(code, format string, args ...any) *WorklineError {
	return &WorklineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a workflow step number to the error.
func (e *WorklineError) WithStep(step int) *WorklineError {
	e.Step = step
	return e
}

// WithCause attaches an underlying cause.
func (e *WorklineError) WithCause(err error) *WorklineError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *WorklineError) WithDetails(details map[string]any) *WorklineError {
	e.Details = details
	return e
}
