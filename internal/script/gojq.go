package script

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"
	"github.com/worklinehq/workline/pkg/schema"
)

// GoJQEngine evaluates custom_code steps written as jq programs, which
// fit data reshaping steps that would be clumsy in expr or CEL. The data
// map is the root document, so scripts address the step input as .input
// and execution variables as .vars.
// Thread-safe: compiled *Code objects are cached and reused.
type GoJQEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewGoJQEngine creates a jq script engine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{
		cache: make(map[string]*gojq.Code),
	}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string {
	return "jq"
}

// Evaluate compiles (or retrieves from cache) the program and runs it.
// jq programs can produce multiple outputs: one output is returned
// directly, several are collected into []any, none yields nil.
func (e *GoJQEngine) Evaluate(ctx context.Context, code string, data map[string]any) (any, error) {
	if code == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq script")
	}

	compiled, err := e.getOrCompile(code)
	if err != nil {
		return nil, err
	}

	root, ok := normalizeForJQ(data).(map[string]any)
	if !ok {
		root = map[string]any{}
	}

	iter := compiled.RunWithContext(ctx, root)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeScript,
				"jq evaluation failed: %s", err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"code": code})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (e *GoJQEngine) getOrCompile(code string) (*gojq.Code, error) {
	e.mu.RLock()
	if compiled, ok := e.cache[code]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if compiled, ok := e.cache[code]; ok {
		return compiled, nil
	}

	query, err := gojq.Parse(code)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScript,
			"jq parse error: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"code": code})
	}

	compiled, err := gojq.Compile(query,
		// Sandbox: empty env blocks $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScript,
			"jq compile error: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"code": code})
	}

	e.cache[code] = compiled
	return compiled, nil
}

// normalizeForJQ converts Go native types to jq-compatible types.
// gojq only accepts JSON-shaped values, and numbers must be float64
// when they did not come straight out of encoding/json.
func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeForJQ(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeForJQ(v)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Engine = (*GoJQEngine)(nil)
