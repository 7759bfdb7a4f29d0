package script

import "context"

// Engine evaluates caller-supplied code against an input scope.
// Three implementations: Expr (default), CEL, and GoJQ. All are
// capability-scoped: code only sees the data it is handed, never the
// process environment or filesystem.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, code string, data map[string]any) (any, error)
}
