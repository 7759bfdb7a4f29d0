// Package runner drives the scheduled-job poll cycle: recover stuck
// jobs, claim a bounded batch, execute each job, and apply the store's
// success, retry, or terminal transitions. The cycle is re-entrant and
// safe to run on any number of workers concurrently; the store's claim
// semantics are the only serialization point.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/worklinehq/workline/internal/logging"
	"github.com/worklinehq/workline/internal/store"
	"github.com/worklinehq/workline/pkg/schema"
)

// Dispatcher executes one job descriptor. Satisfied by executor.Executor.
type Dispatcher interface {
	Execute(ctx context.Context, desc *schema.JobDescriptor, vars map[string]any) (*schema.StepResult, error)
}

// Advancer triggers one advance cycle for a workflow execution.
// Satisfied by the workflow advancer (interface avoids an import cycle).
type Advancer interface {
	Advance(ctx context.Context, executionID int64) error
}

// OutcomeStatus classifies what the runner did with one claimed job.
type OutcomeStatus string

const (
	OutcomeCompleted            OutcomeStatus = "completed"
	OutcomeAdvanced             OutcomeStatus = "advanced"
	OutcomeRetryScheduled       OutcomeStatus = "retry_scheduled"
	OutcomeFailed               OutcomeStatus = "failed"
	OutcomeAdvancedAfterFailure OutcomeStatus = "advanced_after_failure"
	OutcomeBookkeepingError     OutcomeStatus = "bookkeeping_error"
)

// JobOutcome is the per-job entry of a cycle's structured result list.
type JobOutcome struct {
	JobID      int64          `json:"job_id"`
	Name       string         `json:"name,omitempty"`
	Kind       schema.JobKind `json:"kind"`
	Attempt    int            `json:"attempt"`
	Status     OutcomeStatus  `json:"status"`
	Error      string         `json:"error,omitempty"`
	NextRun    *time.Time     `json:"next_run,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// CycleResult is what one poll-cycle invocation returns to its caller.
type CycleResult struct {
	Recovered int64        `json:"recovered"`
	Claimed   int          `json:"claimed"`
	Outcomes  []JobOutcome `json:"outcomes"`
}

const defaultBatchSize = 10

// Runner executes one poll cycle at a time.
type Runner struct {
	jobs       store.JobStore
	dispatcher Dispatcher
	advancer   Advancer
	pool       *WorkerPool
	logger     *slog.Logger
	batchSize  int
}

// New builds a Runner. batchSize <= 0 means the default of 10; poolSize
// bounds in-cycle concurrency.
func New(jobs store.JobStore, dispatcher Dispatcher, advancer Advancer, logger *slog.Logger, batchSize, poolSize int) *Runner {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		jobs:       jobs,
		dispatcher: dispatcher,
		advancer:   advancer,
		pool:       NewWorkerPool(poolSize),
		logger:     logger,
		batchSize:  batchSize,
	}
}

// Shutdown drains the worker pool.
func (r *Runner) Shutdown() { r.pool.Shutdown() }

// RunCycle performs one poll cycle. Execution errors never escape: they
// become failed attempt rows and retry/terminal transitions, and the
// cycle always returns a structured outcome list. Only claim or
// bookkeeping failures surface as errors.
func (r *Runner) RunCycle(ctx context.Context) (*CycleResult, error) {
	recovered, err := r.jobs.RecoverStuck(ctx)
	if err != nil {
		return nil, err
	}
	if recovered > 0 {
		// Informational: a runner died mid-execution somewhere.
		r.logger.InfoContext(ctx, "recovered stuck jobs", slog.Int64("count", recovered))
	}

	claimed, err := r.jobs.ClaimBatch(ctx, r.batchSize)
	if err != nil {
		return nil, err
	}

	result := &CycleResult{Recovered: recovered, Claimed: len(claimed)}
	if len(claimed) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, job := range claimed {
		job := job
		wg.Add(1)
		submitErr := r.pool.Submit(ctx, func(ctx context.Context) error {
			defer wg.Done()
			outcome := r.processJob(ctx, job)
			mu.Lock()
			result.Outcomes = append(result.Outcomes, outcome)
			mu.Unlock()
			if outcome.Status == OutcomeFailed || outcome.Status == OutcomeBookkeepingError {
				return fmt.Errorf("job %d: %s", job.ID, outcome.Error)
			}
			return nil
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			result.Outcomes = append(result.Outcomes, JobOutcome{
				JobID: job.ID, Name: job.Name, Kind: job.Kind,
				Status: OutcomeBookkeepingError, Error: submitErr.Error(),
			})
			mu.Unlock()
		}
	}
	wg.Wait()

	return result, nil
}

// processJob executes one claimed job and applies its bookkeeping in a
// transaction of its own, so one job's failure never blocks another's.
func (r *Runner) processJob(ctx context.Context, job *store.ScheduledJob) (outcome JobOutcome) {
	ctx = logging.WithJobID(ctx, job.ID)
	attempt := job.Attempts + 1
	executionNumber := job.ExecutionCount + 1

	outcome = JobOutcome{JobID: job.ID, Name: job.Name, Kind: job.Kind, Attempt: attempt}

	defer func() {
		if rec := recover(); rec != nil {
			// A panicking executor must not take the batch down.
			err := schema.NewErrorf(schema.ErrCodeExecution, "panic: %v", rec)
			r.recordAndTransition(ctx, job, attempt, executionNumber, 0, nil, err, &outcome)
		}
	}()

	start := time.Now()
	output, execErr := r.execute(ctx, job)
	durationMs := time.Since(start).Milliseconds()
	outcome.DurationMs = durationMs

	r.recordAndTransition(ctx, job, attempt, executionNumber, durationMs, output, execErr, &outcome)
	return outcome
}

func (r *Runner) execute(ctx context.Context, job *store.ScheduledJob) (any, error) {
	if job.Kind == schema.JobWorkflowResume {
		if job.WorkflowExecutionID == nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "workflow_resume job has no workflow_execution_id")
		}
		if err := r.advancer.Advance(ctx, *job.WorkflowExecutionID); err != nil {
			return nil, err
		}
		return map[string]any{"workflow_execution_id": *job.WorkflowExecutionID}, nil
	}

	res, err := r.dispatcher.Execute(ctx, job.Descriptor, nil)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// recordAndTransition applies the state machine: success completes or
// advances; failure retries while attempts remain, then fails one_time
// jobs terminally and still advances recurring ones. The attempt row
// and the transition commit together in one store transaction; if that
// fails the job is left untouched and the outcome says so.
func (r *Runner) recordAndTransition(ctx context.Context, job *store.ScheduledJob, attempt, executionNumber int, durationMs int64, output any, execErr error, outcome *JobOutcome) {
	attemptRow := &store.JobResult{
		JobID:           job.ID,
		ExecutionNumber: executionNumber,
		Attempt:         attempt,
		Status:          schema.AttemptSuccess,
		Output:          output,
		DurationMs:      durationMs,
	}
	if execErr != nil {
		attemptRow.Status = schema.AttemptFailed
		attemptRow.Error = execErr.Error()
		outcome.Error = execErr.Error()
	}

	var transition store.Transition
	switch {
	case execErr == nil && job.Kind == schema.JobRecurring:
		transition = store.TransitionAdvance
		outcome.Status = OutcomeAdvanced

	case execErr == nil:
		transition = store.TransitionComplete
		outcome.Status = OutcomeCompleted

	case attempt < job.MaxAttempts:
		transition = store.TransitionRetry
		outcome.Status = OutcomeRetryScheduled

	case job.Kind == schema.JobRecurring:
		// Retries exhausted for this occurrence; recurrence never
		// stops itself on failure.
		transition = store.TransitionAdvance
		outcome.Status = OutcomeAdvancedAfterFailure

	default:
		transition = store.TransitionFail
		outcome.Status = OutcomeFailed
	}

	next, bookErr := r.jobs.FinishAttempt(ctx, job, attemptRow, transition)
	if bookErr != nil {
		outcome.Status = OutcomeBookkeepingError
		outcome.Error = bookErr.Error()
		r.logger.ErrorContext(ctx, "job bookkeeping failed",
			slog.String("error", bookErr.Error()))
		return
	}
	outcome.NextRun = next
}
