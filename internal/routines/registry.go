package routines

import (
	"context"
	"sort"
	"sync"

	"github.com/worklinehq/workline/pkg/schema"
)

// Registry is the thread-safe lookup table for internal routines. Every
// internal_function descriptor resolves through it, and an unknown name
// always fails the same way: an UNKNOWN_FUNCTION error.
type Registry struct {
	mu       sync.RWMutex
	routines map[string]Routine
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		routines: make(map[string]Routine),
	}
}

// Register adds a routine. Returns an error on a nil routine, an empty
// name, or a duplicate.
func (r *Registry) Register(routine Routine) error {
	if routine == nil {
		return schema.NewError(schema.ErrCodeValidation, "routine is nil")
	}
	name := routine.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "routine name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routines[name]; exists {
		return schema.NewErrorf(schema.ErrCodeValidation, "routine %q already registered", name)
	}

	r.routines[name] = routine
	return nil
}

// Get retrieves a routine by name.
func (r *Registry) Get(name string) (Routine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routine, ok := r.routines[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownFunction, "unknown internal function %q", name)
	}
	return routine, nil
}

// Has checks whether a routine is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routines[name]
	return ok
}

// List returns info for all registered routines, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.routines))
	for _, rt := range r.routines {
		infos = append(infos, Info{Name: rt.Name(), Description: rt.Description()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Call looks up a routine, validates the params, and executes it.
func (r *Registry) Call(ctx context.Context, name string, params map[string]any) (*schema.StepResult, error) {
	routine, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	if err := routine.Validate(params); err != nil {
		return nil, err
	}
	return routine.Execute(ctx, params)
}
