// Package executor turns a job descriptor into a step result. It is the
// single dispatch point shared by the scheduled-job runner and the
// workflow advancer: webhook, internal_function and custom_code all
// resolve here. workflow_resume is deliberately absent, the runner
// routes those to the advancer before the executor is consulted.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/worklinehq/workline/internal/routines"
	"github.com/worklinehq/workline/internal/script"
	"github.com/worklinehq/workline/pkg/schema"
)

// Executor dispatches descriptors by kind.
type Executor struct {
	registry *routines.Registry
	scripts  *script.Runner
	webhooks *WebhookClient
	logger   *slog.Logger
}

// New builds an executor.
func New(registry *routines.Registry, scripts *script.Runner, webhooks *WebhookClient, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		scripts:  scripts,
		webhooks: webhooks,
		logger:   logger,
	}
}

// Execute runs one descriptor. vars carries the workflow execution
// variables when the caller is the advancer; plain scheduled jobs pass
// nil. Failures come back as *schema.WorklineError so callers can route
// on the code.
func (e *Executor) Execute(ctx context.Context, desc *schema.JobDescriptor, vars map[string]any) (*schema.StepResult, error) {
	if desc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "nil job descriptor")
	}

	start := time.Now()
	res, err := e.dispatch(ctx, desc, vars)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.WarnContext(ctx, "descriptor execution failed",
			slog.String("kind", string(desc.Kind)),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		return nil, err
	}

	e.logger.DebugContext(ctx, "descriptor executed",
		slog.String("kind", string(desc.Kind)),
		slog.Duration("elapsed", elapsed))
	return res, nil
}

func (e *Executor) dispatch(ctx context.Context, desc *schema.JobDescriptor, vars map[string]any) (*schema.StepResult, error) {
	switch desc.Kind {
	case schema.KindWebhook:
		out, err := e.webhooks.Do(ctx, desc)
		if err != nil {
			return nil, err
		}
		return &schema.StepResult{Output: out}, nil

	case schema.KindInternalFunction:
		if desc.FunctionName == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "internal_function: missing function_name")
		}
		return e.registry.Call(ctx, desc.FunctionName, desc.Params)

	case schema.KindCustomCode:
		res, err := e.scripts.Run(ctx, desc.Language, desc.Code, desc.Input, vars)
		if err != nil {
			return nil, err
		}
		output := res.Value
		if len(res.Logs) > 0 {
			output = map[string]any{"result": res.Value, "logs": res.Logs}
		}
		return &schema.StepResult{Output: output}, nil

	case schema.KindWorkflowResume:
		return nil, schema.NewError(schema.ErrCodeValidation,
			"workflow_resume descriptors are routed to the workflow advancer")

	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown descriptor kind %q", desc.Kind)
	}
}
