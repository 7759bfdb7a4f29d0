package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/worklinehq/workline/pkg/schema"
)

// CELEngine evaluates custom_code steps written in Google's Common
// Expression Language. CEL suits guard conditions and routing decisions
// where total evaluation (no loops, no recursion) is a feature.
// Thread-safe: compiled programs are cached and reused.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a CEL engine whose environment exposes two
// top-level variables:
//   - input: map(string, dyn), the step's resolved input document
//   - vars:  map(string, dyn), the execution's current variables
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("input", mapType),
		cel.Variable("vars", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) the code and evaluates it.
// Missing activation keys default to empty maps so scripts never hit
// CEL nil-ref errors for an absent scope.
func (e *CELEngine) Evaluate(ctx context.Context, code string, data map[string]any) (any, error) {
	if code == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL script")
	}

	prg, err := e.getOrCompile(code)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, 2)
	for _, key := range []string{"input", "vars"} {
		if v, ok := data[key]; ok && v != nil {
			activation[key] = v
		} else {
			activation[key] = map[string]any{}
		}
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScript,
			"CEL evaluation failed: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"code": code})
	}

	return out.Value(), nil
}

func (e *CELEngine) getOrCompile(code string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[code]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[code]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(code)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScript,
			"CEL compile error: %s", issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"code": code})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScript,
			"CEL program error: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"code": code})
	}

	e.cache[code] = prg
	return prg, nil
}

var _ Engine = (*CELEngine)(nil)
