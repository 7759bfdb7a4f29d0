package routines

import (
	"context"

	"github.com/worklinehq/workline/pkg/schema"
)

// Routine is one named internal function that jobs and workflow steps can
// invoke through an internal_function descriptor. Validate runs before
// Execute on every call, so a routine never sees params it rejected.
type Routine interface {
	Name() string
	Description() string
	Validate(params map[string]any) error
	Execute(ctx context.Context, params map[string]any) (*schema.StepResult, error)
}

// Info is a summary of a registered routine for listing.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
