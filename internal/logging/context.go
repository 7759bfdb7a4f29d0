package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	jobIDKey ctxKey = iota
	executionIDKey
	stepNumberKey
)

// WithJobID returns a context with the scheduled-job ID set.
func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// WithExecutionID returns a context with the workflow-execution ID set.
func WithExecutionID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// WithStepNumber returns a context with the current step number set.
func WithStepNumber(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, stepNumberKey, n)
}

// JobID extracts the scheduled-job ID from the context, or 0 if absent.
func JobID(ctx context.Context) int64 {
	v, _ := ctx.Value(jobIDKey).(int64)
	return v
}

// ExecutionID extracts the workflow-execution ID from the context, or 0 if absent.
func ExecutionID(ctx context.Context) int64 {
	v, _ := ctx.Value(executionIDKey).(int64)
	return v
}

// StepNumber extracts the step number from the context, or 0 if absent.
func StepNumber(ctx context.Context) int {
	v, _ := ctx.Value(stepNumberKey).(int)
	return v
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record. Install it once
// at the binary level so call sites can use logger.InfoContext(ctx, ...)
// and the IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := JobID(ctx); v != 0 {
		r.AddAttrs(slog.Int64("job_id", v))
	}
	if v := ExecutionID(ctx); v != 0 {
		r.AddAttrs(slog.Int64("execution_id", v))
	}
	if v := StepNumber(ctx); v != 0 {
		r.AddAttrs(slog.Int("step_number", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
