package script

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/worklinehq/workline/pkg/schema"
)

// ExprEngine evaluates custom_code steps with expr-lang/expr. It covers
// the bulk of step logic: let bindings, array operations (filter, map,
// count, any, all, sum), string operations, nil coalescing (??) and
// optional chaining (?.).
// Thread-safe: compiled *vm.Program objects are cached and reused.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates the default script engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		cache: make(map[string]*vm.Program),
	}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate compiles (or retrieves from cache) the code and runs it with
// the data map as the expression environment, so "input" and "vars" are
// available as top-level variables.
func (e *ExprEngine) Evaluate(ctx context.Context, code string, data map[string]any) (any, error) {
	if code == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr script")
	}

	prg, err := e.getOrCompile(code, data)
	if err != nil {
		return nil, err
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScript,
			"expr evaluation failed: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"code": code})
	}

	return out, nil
}

func (e *ExprEngine) getOrCompile(code string, data map[string]any) (*vm.Program, error) {
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

	env := data
	if env == nil {
		env = map[string]any{}
	}

	prg, err := expr.Compile(code,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScript,
			"expr compile error: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"code": code})
	}

	e.cache[code] = prg
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
