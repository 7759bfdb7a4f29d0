package store

import (
	"time"

	"github.com/worklinehq/workline/pkg/schema"
)

// ScheduledJob is one unit of deferred work in the scheduled_jobs table.
type ScheduledJob struct {
	ID             int64                 `json:"id"`
	Name           string                `json:"name,omitempty"`
	Kind           schema.JobKind        `json:"kind"`
	Status         schema.JobStatus      `json:"status"`
	ScheduledTime  time.Time             `json:"scheduled_time"`
	Descriptor     *schema.JobDescriptor `json:"descriptor"`
	RecurrenceRule string                `json:"recurrence_rule,omitempty"`
	Attempts       int                   `json:"attempts"`
	MaxAttempts    int                   `json:"max_attempts"`
	BackoffSeconds int                   `json:"backoff_seconds"`
	ExecutionCount int                   `json:"execution_count"`

	// Set only for workflow_resume jobs.
	WorkflowExecutionID *int64 `json:"workflow_execution_id,omitempty"`
	IdempotencyKey      string `json:"idempotency_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobResult is one immutable execution-attempt row. Rows are only ever
// appended; together they form the job's audit trail.
type JobResult struct {
	ID              int64                `json:"id"`
	JobID           int64                `json:"job_id"`
	ExecutionNumber int                  `json:"execution_number"`
	Attempt         int                  `json:"attempt"`
	Status          schema.AttemptStatus `json:"status"`
	Output          any                  `json:"output,omitempty"`
	Error           string               `json:"error,omitempty"`
	DurationMs      int64                `json:"duration_ms"`
	CreatedAt       time.Time            `json:"created_at"`
}

// JobStats aggregates a job's attempt history.
type JobStats struct {
	TotalRuns     int `json:"total_runs"`
	TotalFailures int `json:"total_failures"`
}

// JobDetail is the fetch-job response shape: the row itself, aggregate
// stats, the most recent result, and optionally the full history.
type JobDetail struct {
	Job     *ScheduledJob `json:"job"`
	Stats   JobStats      `json:"stats"`
	Latest  *JobResult    `json:"latest_result,omitempty"`
	History []*JobResult  `json:"history,omitempty"`
}

// Workflow is a reusable multi-step template.
type Workflow struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkflowStep is one numbered step of a workflow. Config holds the
// step's templated execution parameters; its optional set_vars key is a
// template resolved only after the step has produced output.
type WorkflowStep struct {
	ID         int64                 `json:"id"`
	WorkflowID int64                 `json:"workflow_id"`
	StepNumber int                   `json:"step_number"`
	Name       string                `json:"name,omitempty"`
	Kind       schema.DescriptorKind `json:"kind"`
	Config     map[string]any        `json:"config"`
}

// WorkflowExecution is one stateful run of a workflow.
type WorkflowExecution struct {
	ID                int64                  `json:"id"`
	WorkflowID        int64                  `json:"workflow_id"`
	Status            schema.ExecutionStatus `json:"status"`
	CurrentStepNumber int                    `json:"current_step_number"`
	Variables         map[string]any         `json:"variables"`
	InitData          map[string]any         `json:"init_data"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty"`
}

// WorkflowExecutionStep is the immutable record of one executed step
// within an execution, mirroring JobResult.
type WorkflowExecutionStep struct {
	ID          int64                `json:"id"`
	ExecutionID int64                `json:"execution_id"`
	StepNumber  int                  `json:"step_number"`
	StepID      *int64               `json:"step_id,omitempty"`
	Status      schema.AttemptStatus `json:"status"`
	Output      any                  `json:"output,omitempty"`
	Error       string               `json:"error,omitempty"`
	DurationMs  int64                `json:"duration_ms"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ExecutionDetail is the execution-inspection response shape.
type ExecutionDetail struct {
	Execution *WorkflowExecution       `json:"execution"`
	Steps     []*WorkflowExecutionStep `json:"steps"`
}
