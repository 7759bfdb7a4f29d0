// Package workflow advances durable multi-step executions. Each
// execution is a cursor over its workflow's numbered steps; the
// advancer claims the execution, runs steps through the shared job
// executor with placeholder-resolved config, interprets control and
// delay signals, and leaves the execution claimable again when it
// stops. Exactly one advancer ever holds an execution at a time.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/worklinehq/workline/internal/logging"
	"github.com/worklinehq/workline/internal/store"
	"github.com/worklinehq/workline/internal/templating"
	"github.com/worklinehq/workline/pkg/schema"
)

// Dispatcher executes one resolved step descriptor. Satisfied by
// executor.Executor.
type Dispatcher interface {
	Execute(ctx context.Context, desc *schema.JobDescriptor, vars map[string]any) (*schema.StepResult, error)
}

const (
	// defaultMaxSteps bounds one advance invocation. A workflow longer
	// than this continues through a near-immediate self-continuation
	// job rather than holding the caller.
	defaultMaxSteps = 20

	// continuationDelay is how far in the future the self-continuation
	// job is scheduled when the step cap is hit.
	continuationDelay = time.Second
)

// Result reports what one advance invocation did.
type Result struct {
	ExecutionID int64                  `json:"execution_id"`
	Skipped     bool                   `json:"skipped,omitempty"`
	StepsRun    int                    `json:"steps_run"`
	Status      schema.ExecutionStatus `json:"status,omitempty"`
	StepError   string                 `json:"step_error,omitempty"`
}

// Advancer drives workflow executions forward.
type Advancer struct {
	workflows store.WorkflowStore
	jobs      store.JobStore
	exec      Dispatcher
	logger    *slog.Logger
	maxSteps  int
}

// New builds an Advancer. maxSteps <= 0 means the default of 20.
func New(workflows store.WorkflowStore, jobs store.JobStore, exec Dispatcher, logger *slog.Logger, maxSteps int) *Advancer {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Advancer{
		workflows: workflows,
		jobs:      jobs,
		exec:      exec,
		logger:    logger,
		maxSteps:  maxSteps,
	}
}

// Start creates an execution for the workflow seeded with initData as
// both init_data and the initial variables, then runs one advance cycle
// immediately.
func (a *Advancer) Start(ctx context.Context, workflowID int64, initData map[string]any) (*store.WorkflowExecution, *Result, error) {
	wf, err := a.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	if !wf.Active {
		return nil, nil, schema.NewErrorf(schema.ErrCodeValidation, "workflow %d is inactive", workflowID)
	}

	exec, err := a.workflows.CreateExecution(ctx, workflowID, initData)
	if err != nil {
		return nil, nil, err
	}

	res, err := a.Advance(ctx, exec.ID)
	if err != nil {
		return exec, nil, err
	}
	return exec, res, nil
}

// Advance claims the execution and runs its step loop. A claim miss is
// not an error: another advancer holds the execution, or it is already
// terminal, and the result says skipped. Step failures are persisted
// and move the execution to status error; only store-level failures
// surface as a returned error.
func (a *Advancer) Advance(ctx context.Context, executionID int64) (*Result, error) {
	ctx = logging.WithExecutionID(ctx, executionID)

	exec, claimed, err := a.workflows.ClaimExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		a.logger.DebugContext(ctx, "execution claim skipped")
		return &Result{ExecutionID: executionID, Skipped: true}, nil
	}

	result := &Result{ExecutionID: executionID}
	current := exec.CurrentStepNumber

	for result.StepsRun < a.maxSteps {
		step, err := a.workflows.GetStep(ctx, exec.WorkflowID, current)
		if err != nil {
			if isNotFound(err) {
				// Cursor ran past the last step: the workflow is done.
				return a.finish(ctx, result, schema.ExecCompleted)
			}
			return nil, a.releaseOnError(ctx, executionID, err)
		}

		stepCtx := logging.WithStepNumber(ctx, current)
		stepResult, stepErr, storeErr := a.runStep(stepCtx, exec, step, current)
		if storeErr != nil {
			return nil, a.releaseOnError(ctx, executionID, storeErr)
		}
		result.StepsRun++

		if stepErr != nil {
			result.StepError = stepErr.Error()
			return a.finish(ctx, result, schema.ExecError)
		}

		// Next step: cursor + 1 unless the control routine overrode it.
		next := current + 1
		if isControlStep(step) && stepResult.Next != nil {
			switch stepResult.Next.Kind {
			case schema.NextComplete:
				return a.finish(ctx, result, schema.ExecCompleted)
			case schema.NextCancel:
				return a.finish(ctx, result, schema.ExecCancelled)
			case schema.NextFail:
				return a.finish(ctx, result, schema.ExecFailed)
			case schema.NextStep:
				next = stepResult.Next.Step
			}
		}

		if stepResult.DelayedUntil != nil {
			// A delay routine may name its own resume step.
			if stepResult.Next != nil && stepResult.Next.Kind == schema.NextStep {
				next = stepResult.Next.Step
			}
			if err := a.suspendUntil(ctx, executionID, next, *stepResult.DelayedUntil); err != nil {
				return nil, a.releaseOnError(ctx, executionID, err)
			}
			result.Status = schema.ExecDelayed
			return result, nil
		}

		current = next
		if err := a.workflows.SetCurrentStep(ctx, executionID, current); err != nil {
			return nil, a.releaseOnError(ctx, executionID, err)
		}
	}

	// Step cap reached while still active: hand continuation to the job
	// runner so one invocation never runs unboundedly and other
	// executions are not starved.
	if err := a.scheduleContinuation(ctx, executionID); err != nil {
		return nil, a.releaseOnError(ctx, executionID, err)
	}
	if err := a.workflows.SetExecutionStatus(ctx, executionID, schema.ExecActive); err != nil {
		return nil, err
	}
	result.Status = schema.ExecActive
	return result, nil
}

// runStep resolves, executes and records one step. The returned stepErr
// is the step's own failure; storeErr is an infrastructure failure that
// aborts the whole invocation.
func (a *Advancer) runStep(ctx context.Context, exec *store.WorkflowExecution, step *store.WorkflowStep, current int) (*schema.StepResult, error, error) {
	// Fresh read so cross-step chaining sees the latest merged state
	// even within one invocation.
	vars, err := a.workflows.ReadVariables(ctx, exec.ID)
	if err != nil {
		return nil, nil, err
	}

	config, setVarsTemplate := splitConfig(step.Config)
	scope := &templating.Scope{
		Variables: vars,
		This:      map[string]any{},
		Env:       templating.Env{ExecutionID: exec.ID, StepNumber: current},
	}
	resolved, _ := templating.Resolve(config, scope).(map[string]any)

	desc, err := descriptorFor(step.Kind, resolved)

	start := time.Now()
	var stepResult *schema.StepResult
	if err == nil {
		stepResult, err = a.exec.Execute(ctx, desc, vars)
	}
	durationMs := time.Since(start).Milliseconds()

	record := &store.WorkflowExecutionStep{
		ExecutionID: exec.ID,
		StepNumber:  current,
		StepID:      &step.ID,
		DurationMs:  durationMs,
	}

	if err != nil {
		record.Status = schema.AttemptFailed
		record.Error = err.Error()
		if recErr := a.workflows.RecordStep(ctx, record); recErr != nil {
			return nil, nil, recErr
		}
		a.logger.WarnContext(ctx, "workflow step failed", slog.String("error", err.Error()))
		return nil, err, nil
	}

	record.Status = schema.AttemptSuccess
	record.Output = stepResult.Output

	// The step's real output becomes the this scope before any static
	// set_vars template is resolved, so it may reference its own output.
	merged := map[string]any{}
	if setVarsTemplate != nil {
		scope.This = thisScope(stepResult.Output)
		if static, ok := templating.Resolve(setVarsTemplate, scope).(map[string]any); ok {
			for k, v := range static {
				merged[k] = v
			}
		}
	}
	for k, v := range stepResult.SetVars {
		// Dynamic set_vars win over the static template.
		merged[k] = v
	}
	if len(merged) > 0 {
		if err := a.workflows.MergeVariables(ctx, exec.ID, merged); err != nil {
			return nil, nil, err
		}
	}

	if err := a.workflows.RecordStep(ctx, record); err != nil {
		return nil, nil, err
	}
	return stepResult, nil, nil
}

// suspendUntil parks the execution and hands the wakeup to the job
// scheduler as a one-time resume job.
func (a *Advancer) suspendUntil(ctx context.Context, executionID int64, resumeStep int, at time.Time) error {
	if err := a.workflows.SetCurrentStep(ctx, executionID, resumeStep); err != nil {
		return err
	}
	job := &store.ScheduledJob{
		Name:                "workflow resume",
		Kind:                schema.JobWorkflowResume,
		ScheduledTime:       at,
		MaxAttempts:         3,
		BackoffSeconds:      60,
		WorkflowExecutionID: &executionID,
		IdempotencyKey:      uuid.NewString(),
		Descriptor: &schema.JobDescriptor{
			Kind:     schema.KindWorkflowResume,
			NextStep: resumeStep,
		},
	}
	if err := a.jobs.CreateJob(ctx, job); err != nil {
		return err
	}
	return a.workflows.SetExecutionStatus(ctx, executionID, schema.ExecDelayed)
}

func (a *Advancer) scheduleContinuation(ctx context.Context, executionID int64) error {
	return a.jobs.CreateJob(ctx, &store.ScheduledJob{
		Name:                "workflow continuation",
		Kind:                schema.JobWorkflowResume,
		ScheduledTime:       time.Now().UTC().Add(continuationDelay),
		MaxAttempts:         3,
		BackoffSeconds:      60,
		WorkflowExecutionID: &executionID,
		IdempotencyKey:      uuid.NewString(),
		Descriptor:          &schema.JobDescriptor{Kind: schema.KindWorkflowResume},
	})
}

func (a *Advancer) finish(ctx context.Context, result *Result, status schema.ExecutionStatus) (*Result, error) {
	if err := a.workflows.SetExecutionStatus(ctx, result.ExecutionID, status); err != nil {
		return nil, err
	}
	result.Status = status
	return result, nil
}

// releaseOnError puts the execution back to active so the failed
// invocation does not leave it stuck in processing forever.
func (a *Advancer) releaseOnError(ctx context.Context, executionID int64, err error) error {
	if relErr := a.workflows.SetExecutionStatus(ctx, executionID, schema.ExecActive); relErr != nil {
		a.logger.ErrorContext(ctx, "failed to release execution after error",
			slog.String("error", relErr.Error()))
	}
	return err
}

// splitConfig separates the step's execution parameters from its
// set_vars template, which resolves on a different scope.
func splitConfig(config map[string]any) (map[string]any, any) {
	if config == nil {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(config))
	var setVars any
	for k, v := range config {
		if k == "set_vars" {
			setVars = v
			continue
		}
		out[k] = v
	}
	return out, setVars
}

func isControlStep(step *store.WorkflowStep) bool {
	if step.Kind != schema.KindInternalFunction {
		return false
	}
	name, _ := step.Config["function_name"].(string)
	return name == schema.ControlFunctionName
}

func thisScope(output any) map[string]any {
	if m, ok := output.(map[string]any); ok {
		return m
	}
	if output == nil {
		return map[string]any{}
	}
	return map[string]any{"value": output}
}

func isNotFound(err error) bool {
	werr, ok := err.(*schema.WorklineError)
	return ok && werr.Code == schema.ErrCodeNotFound
}
