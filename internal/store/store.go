package store

import (
	"context"
	"time"

	"github.com/worklinehq/workline/pkg/schema"
)

// JobStore owns the scheduled_jobs and job_results tables. It is the
// only writer of either; runners apply state transitions exclusively
// through it. All implementations must be safe for concurrent use.
type JobStore interface {
	CreateJob(ctx context.Context, job *ScheduledJob) error
	GetJob(ctx context.Context, id int64) (*ScheduledJob, error)
	GetJobDetail(ctx context.Context, id int64, withHistory bool) (*JobDetail, error)

	// ClaimBatch transactionally flips up to limit due pending jobs to
	// running and returns them. Rows locked by concurrent claimants are
	// skipped, never waited on. The claim commits before any execution.
	ClaimBatch(ctx context.Context, limit int) ([]*ScheduledJob, error)

	// RecoverStuck returns running jobs whose updated_at predates the
	// staleness window to pending, attempts untouched. Crash recovery
	// for runner death mid-execution.
	RecoverStuck(ctx context.Context) (int64, error)

	// FinishAttempt appends the immutable JobResult row and applies the
	// transition in one transaction, so a job can never reach a new
	// status without its attempt row (and vice versa). Returns the next
	// fire time for retry and advance transitions, nil otherwise.
	FinishAttempt(ctx context.Context, job *ScheduledJob, res *JobResult, t Transition) (*time.Time, error)
}

// Transition selects the post-execution state change a finished attempt
// applies to its job.
type Transition string

const (
	// TransitionComplete marks a one_time job completed.
	TransitionComplete Transition = "complete"
	// TransitionFail marks a one_time job terminally failed.
	TransitionFail Transition = "fail"
	// TransitionRetry pushes the job back to pending with exponential
	// backoff for the attempt that just failed.
	TransitionRetry Transition = "retry"
	// TransitionAdvance reschedules a recurring job to its next cron
	// occurrence computed from the job's own scheduled_time, resets
	// attempts and bumps execution_count. Applied whether the finished
	// run succeeded or exhausted its retries.
	TransitionAdvance Transition = "advance"
)

// WorkflowStore owns the workflows, workflow_steps, workflow_executions
// and workflow_execution_steps tables.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id int64) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]*Workflow, error)
	CreateStep(ctx context.Context, step *WorkflowStep) error
	GetStep(ctx context.Context, workflowID int64, stepNumber int) (*WorkflowStep, error)

	// CreateExecution seeds a new execution with initData as both
	// init_data and the initial variables, cursor at step 1.
	CreateExecution(ctx context.Context, workflowID int64, initData map[string]any) (*WorkflowExecution, error)
	GetExecution(ctx context.Context, id int64) (*WorkflowExecution, error)
	GetExecutionDetail(ctx context.Context, id int64) (*ExecutionDetail, error)

	// ClaimExecution transitions active/delayed to processing under row
	// lock. Returns claimed=false when the row is absent, terminal, or
	// already held by another advancer.
	ClaimExecution(ctx context.Context, id int64) (*WorkflowExecution, bool, error)

	// ReadVariables fetches the execution's variables fresh from storage.
	ReadVariables(ctx context.Context, executionID int64) (map[string]any, error)

	// MergeVariables applies a last-writer-wins shallow merge under row
	// lock, so same-invocation chaining never loses updates.
	MergeVariables(ctx context.Context, executionID int64, vars map[string]any) error

	// RecordStep appends one immutable WorkflowExecutionStep row.
	RecordStep(ctx context.Context, step *WorkflowExecutionStep) error

	SetCurrentStep(ctx context.Context, executionID int64, stepNumber int) error

	// SetExecutionStatus moves the execution to status; terminal
	// statuses also stamp completed_at.
	SetExecutionStatus(ctx context.Context, executionID int64, status schema.ExecutionStatus) error
}
