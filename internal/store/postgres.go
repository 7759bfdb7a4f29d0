package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/worklinehq/workline/pkg/schema"
)

// defaultStuckAfter is the staleness window after which a running job is
// presumed abandoned by a dead runner.
const defaultStuckAfter = 10 * time.Minute

// PostgresStore implements JobStore and WorkflowStore on PostgreSQL.
// Claiming relies on FOR UPDATE SKIP LOCKED, so concurrent pollers
// neither race on a row nor wait for each other.
type PostgresStore struct {
	db         *sql.DB
	stuckAfter time.Duration
}

// NewPostgresStore opens a connection pool against the given DSN.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &PostgresStore{db: db, stuckAfter: defaultStuckAfter}, nil
}

// DB returns the underlying *sql.DB.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// Close closes the pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Migrate applies all pending schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// SetStuckAfter overrides the staleness window. Tests use short windows.
func (s *PostgresStore) SetStuckAfter(d time.Duration) { s.stuckAfter = d }

// --- Scheduled jobs ---

const jobColumns = `id, name, kind, status, scheduled_time, data, recurrence_rule,
	attempts, max_attempts, backoff_seconds, execution_count,
	workflow_execution_id, idempotency_key, created_at, updated_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *ScheduledJob) error {
	if job.Descriptor == nil {
		return schema.NewError(schema.ErrCodeValidation, "job has no descriptor")
	}
	data, err := json.Marshal(job.Descriptor)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "descriptor is not JSON-marshalable").WithCause(err)
	}
	if job.Status == "" {
		job.Status = schema.JobPending
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO scheduled_jobs
			(name, kind, status, scheduled_time, data, recurrence_rule,
			 max_attempts, backoff_seconds, workflow_execution_id, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (idempotency_key) WHERE idempotency_key <> '' DO NOTHING
		 RETURNING id, created_at, updated_at`,
		job.Name, string(job.Kind), string(job.Status), job.ScheduledTime, data,
		job.RecurrenceRule, job.MaxAttempts, job.BackoffSeconds,
		job.WorkflowExecutionID, job.IdempotencyKey,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		// Idempotency key already used; the earlier job stands.
		return nil
	}
	if err != nil {
		return storeErr("create job", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "job %d not found", id)
	}
	if err != nil {
		return nil, storeErr("get job", err)
	}
	return job, nil
}

func (s *PostgresStore) GetJobDetail(ctx context.Context, id int64, withHistory bool) (*JobDetail, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &JobDetail{Job: job}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'failed')
		 FROM job_results WHERE job_id = $1`, id,
	).Scan(&detail.Stats.TotalRuns, &detail.Stats.TotalFailures)
	if err != nil {
		return nil, storeErr("job stats", err)
	}

	results, err := s.jobResults(ctx, id, withHistory)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		detail.Latest = results[0]
	}
	if withHistory {
		detail.History = results
	}
	return detail, nil
}

// jobResults returns attempt rows newest first, ordered by
// (execution_number, attempt) descending.
func (s *PostgresStore) jobResults(ctx context.Context, jobID int64, all bool) ([]*JobResult, error) {
	query := `SELECT id, job_id, execution_number, attempt, status, output, error, duration_ms, created_at
		 FROM job_results WHERE job_id = $1 ORDER BY execution_number DESC, attempt DESC`
	if !all {
		query += ` LIMIT 1`
	}

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, storeErr("job results", err)
	}
	defer rows.Close()

	var results []*JobResult
	for rows.Next() {
		r := &JobResult{}
		var output sql.NullString
		var status string
		if err := rows.Scan(&r.ID, &r.JobID, &r.ExecutionNumber, &r.Attempt, &status,
			&output, &r.Error, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, storeErr("scan job result", err)
		}
		r.Status = schema.AttemptStatus(status)
		if output.Valid {
			_ = json.Unmarshal([]byte(output.String), &r.Output)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ClaimBatch selects due pending jobs with FOR UPDATE SKIP LOCKED, flips
// them to running, and commits. The lock is held only for the flip;
// execution happens after the claim transaction is gone.
func (s *PostgresStore) ClaimBatch(ctx context.Context, limit int) ([]*ScheduledJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin claim", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+jobColumns+`
		 FROM scheduled_jobs
		 WHERE status = 'pending' AND scheduled_time <= now()
		 ORDER BY scheduled_time
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, storeErr("select claimable", err)
	}

	var jobs []*ScheduledJob
	var ids []int64
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, storeErr("scan claimable", err)
		}
		jobs = append(jobs, job)
		ids = append(ids, job.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storeErr("iterate claimable", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = 'running', updated_at = now() WHERE id = ANY($1)`,
		pq.Array(ids)); err != nil {
		return nil, storeErr("mark running", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit claim", err)
	}

	for _, job := range jobs {
		job.Status = schema.JobRunning
	}
	return jobs, nil
}

func (s *PostgresStore) RecoverStuck(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs
		 SET status = 'pending', updated_at = now()
		 WHERE status = 'running' AND updated_at < now() - ($1 * interval '1 second')`,
		int64(s.stuckAfter.Seconds()))
	if err != nil {
		return 0, storeErr("recover stuck", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// FinishAttempt inserts the attempt row and applies the transition in a
// single transaction. A crash or failure anywhere leaves the job row and
// its attempt history consistent: both land or neither does.
func (s *PostgresStore) FinishAttempt(ctx context.Context, job *ScheduledJob, r *JobResult, t Transition) (*time.Time, error) {
	output, err := nullableJSON(r.Output)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "attempt output is not JSON-marshalable").WithCause(err)
	}

	var next time.Time
	switch t {
	case TransitionRetry:
		next = time.Now().UTC().Add(RetryDelay(job.BackoffSeconds, r.Attempt))
	case TransitionAdvance:
		next, err = NextOccurrence(job.RecurrenceRule, job.ScheduledTime)
		if err != nil {
			return nil, err
		}
	case TransitionComplete, TransitionFail:
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown transition %q", t)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin finish attempt", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO job_results (job_id, execution_number, attempt, status, output, error, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		r.JobID, r.ExecutionNumber, r.Attempt, string(r.Status), output, r.Error, r.DurationMs,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return nil, storeErr("record attempt", err)
	}

	var res sql.Result
	switch t {
	case TransitionComplete, TransitionFail:
		status := schema.JobCompleted
		if t == TransitionFail {
			status = schema.JobFailed
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE scheduled_jobs
			 SET status = $2, attempts = $3, execution_count = execution_count + 1, updated_at = now()
			 WHERE id = $1`,
			job.ID, string(status), r.Attempt)

	case TransitionRetry:
		res, err = tx.ExecContext(ctx,
			`UPDATE scheduled_jobs
			 SET status = 'pending', scheduled_time = $2, attempts = $3, updated_at = now()
			 WHERE id = $1`,
			job.ID, next, r.Attempt)

	case TransitionAdvance:
		res, err = tx.ExecContext(ctx,
			`UPDATE scheduled_jobs
			 SET status = 'pending', scheduled_time = $2, attempts = 0,
			     execution_count = execution_count + 1, updated_at = now()
			 WHERE id = $1`,
			job.ID, next)
	}
	if err != nil {
		return nil, storeErr("apply transition", err)
	}
	if err := checkAffected(res, job.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit finish attempt", err)
	}

	if t == TransitionRetry || t == TransitionAdvance {
		return &next, nil
	}
	return nil, nil
}

// --- Workflows ---

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO workflows (name, description, active) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		wf.Name, wf.Description, wf.Active,
	).Scan(&wf.ID, &wf.CreatedAt)
	if err != nil {
		return storeErr("create workflow", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id int64) (*Workflow, error) {
	wf := &Workflow{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, active, created_at FROM workflows WHERE id = $1`, id,
	).Scan(&wf.ID, &wf.Name, &wf.Description, &wf.Active, &wf.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %d not found", id)
	}
	if err != nil {
		return nil, storeErr("get workflow", err)
	}
	return wf, nil
}

func (s *PostgresStore) ListWorkflows(ctx context.Context) ([]*Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, active, created_at FROM workflows ORDER BY id`)
	if err != nil {
		return nil, storeErr("list workflows", err)
	}
	defer rows.Close()

	var out []*Workflow
	for rows.Next() {
		wf := &Workflow{}
		if err := rows.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.Active, &wf.CreatedAt); err != nil {
			return nil, storeErr("scan workflow", err)
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateStep(ctx context.Context, step *WorkflowStep) error {
	config, err := json.Marshal(step.Config)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "step config is not JSON-marshalable").WithCause(err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO workflow_steps (workflow_id, step_number, name, kind, config)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		step.WorkflowID, step.StepNumber, step.Name, string(step.Kind), config,
	).Scan(&step.ID)
	if err != nil {
		return storeErr("create step", err)
	}
	return nil
}

func (s *PostgresStore) GetStep(ctx context.Context, workflowID int64, stepNumber int) (*WorkflowStep, error) {
	step := &WorkflowStep{}
	var kind, config string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, step_number, name, kind, config
		 FROM workflow_steps WHERE workflow_id = $1 AND step_number = $2`,
		workflowID, stepNumber,
	).Scan(&step.ID, &step.WorkflowID, &step.StepNumber, &step.Name, &kind, &config)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"workflow %d has no step %d", workflowID, stepNumber)
	}
	if err != nil {
		return nil, storeErr("get step", err)
	}
	step.Kind = schema.DescriptorKind(kind)
	if err := json.Unmarshal([]byte(config), &step.Config); err != nil {
		return nil, storeErr("unmarshal step config", err)
	}
	return step, nil
}

// --- Workflow executions ---

const executionColumns = `id, workflow_id, status, current_step_number,
	variables, init_data, created_at, updated_at, completed_at`

func (s *PostgresStore) CreateExecution(ctx context.Context, workflowID int64, initData map[string]any) (*WorkflowExecution, error) {
	if initData == nil {
		initData = map[string]any{}
	}
	init, err := json.Marshal(initData)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "init_data is not JSON-marshalable").WithCause(err)
	}

	exec := &WorkflowExecution{
		WorkflowID:        workflowID,
		Status:            schema.ExecActive,
		CurrentStepNumber: 1,
		Variables:         initData,
		InitData:          initData,
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO workflow_executions (workflow_id, variables, init_data)
		 VALUES ($1, $2, $2) RETURNING id, created_at, updated_at`,
		workflowID, init,
	).Scan(&exec.ID, &exec.CreatedAt, &exec.UpdatedAt)
	if err != nil {
		return nil, storeErr("create execution", err)
	}
	return exec, nil
}

func (s *PostgresStore) GetExecution(ctx context.Context, id int64) (*WorkflowExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %d not found", id)
	}
	if err != nil {
		return nil, storeErr("get execution", err)
	}
	return exec, nil
}

func (s *PostgresStore) GetExecutionDetail(ctx context.Context, id int64) (*ExecutionDetail, error) {
	exec, err := s.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, step_number, step_id, status, output, error, duration_ms, created_at
		 FROM workflow_execution_steps WHERE execution_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, storeErr("execution steps", err)
	}
	defer rows.Close()

	detail := &ExecutionDetail{Execution: exec}
	for rows.Next() {
		step := &WorkflowExecutionStep{}
		var stepID sql.NullInt64
		var output sql.NullString
		var status string
		if err := rows.Scan(&step.ID, &step.ExecutionID, &step.StepNumber, &stepID, &status,
			&output, &step.Error, &step.DurationMs, &step.CreatedAt); err != nil {
			return nil, storeErr("scan execution step", err)
		}
		step.Status = schema.AttemptStatus(status)
		if stepID.Valid {
			step.StepID = &stepID.Int64
		}
		if output.Valid {
			_ = json.Unmarshal([]byte(output.String), &step.Output)
		}
		detail.Steps = append(detail.Steps, step)
	}
	return detail, rows.Err()
}

// ClaimExecution is the workflow counterpart of ClaimBatch: a
// compare-and-set from active/delayed to processing under SKIP LOCKED.
// A false return is the CLAIM_CONFLICT "skipped" outcome, not an error.
func (s *PostgresStore) ClaimExecution(ctx context.Context, id int64) (*WorkflowExecution, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storeErr("begin execution claim", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+executionColumns+`
		 FROM workflow_executions
		 WHERE id = $1 AND status IN ('active', 'delayed')
		 FOR UPDATE SKIP LOCKED`, id)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, false, tx.Commit()
	}
	if err != nil {
		return nil, false, storeErr("select execution for claim", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE workflow_executions SET status = 'processing', updated_at = now() WHERE id = $1`,
		id); err != nil {
		return nil, false, storeErr("mark processing", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, storeErr("commit execution claim", err)
	}

	exec.Status = schema.ExecProcessing
	return exec, true, nil
}

func (s *PostgresStore) ReadVariables(ctx context.Context, executionID int64) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT variables FROM workflow_executions WHERE id = $1`, executionID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %d not found", executionID)
	}
	if err != nil {
		return nil, storeErr("read variables", err)
	}

	vars := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, storeErr("unmarshal variables", err)
	}
	return vars, nil
}

// MergeVariables re-reads under a row lock, applies a shallow
// last-writer-wins merge and writes back in the same transaction.
func (s *PostgresStore) MergeVariables(ctx context.Context, executionID int64, vars map[string]any) error {
	if len(vars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin merge", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT variables FROM workflow_executions WHERE id = $1 FOR UPDATE`, executionID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return schema.NewErrorf(schema.ErrCodeNotFound, "execution %d not found", executionID)
	}
	if err != nil {
		return storeErr("lock variables", err)
	}

	current := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return storeErr("unmarshal variables", err)
	}
	for k, v := range vars {
		current[k] = v
	}

	merged, err := json.Marshal(current)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "merged variables are not JSON-marshalable").WithCause(err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE workflow_executions SET variables = $2, updated_at = now() WHERE id = $1`,
		executionID, merged); err != nil {
		return storeErr("write variables", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) RecordStep(ctx context.Context, step *WorkflowExecutionStep) error {
	output, err := nullableJSON(step.Output)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "step output is not JSON-marshalable").WithCause(err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO workflow_execution_steps
			(execution_id, step_number, step_id, status, output, error, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		step.ExecutionID, step.StepNumber, step.StepID, string(step.Status),
		output, step.Error, step.DurationMs,
	).Scan(&step.ID, &step.CreatedAt)
	if err != nil {
		return storeErr("record step", err)
	}
	return nil
}

func (s *PostgresStore) SetCurrentStep(ctx context.Context, executionID int64, stepNumber int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_executions SET current_step_number = $2, updated_at = now() WHERE id = $1`,
		executionID, stepNumber)
	if err != nil {
		return storeErr("set current step", err)
	}
	return checkAffected(res, executionID)
}

func (s *PostgresStore) SetExecutionStatus(ctx context.Context, executionID int64, status schema.ExecutionStatus) error {
	query := `UPDATE workflow_executions SET status = $2, updated_at = now() WHERE id = $1`
	if status.Terminal() {
		query = `UPDATE workflow_executions
			 SET status = $2, completed_at = now(), updated_at = now() WHERE id = $1`
	}
	res, err := s.db.ExecContext(ctx, query, executionID, string(status))
	if err != nil {
		return storeErr("set execution status", err)
	}
	return checkAffected(res, executionID)
}

// --- scan and null helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*ScheduledJob, error) {
	job := &ScheduledJob{}
	var kind, status, data string
	var wfExecID sql.NullInt64
	err := row.Scan(&job.ID, &job.Name, &kind, &status, &job.ScheduledTime, &data,
		&job.RecurrenceRule, &job.Attempts, &job.MaxAttempts, &job.BackoffSeconds,
		&job.ExecutionCount, &wfExecID, &job.IdempotencyKey, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Kind = schema.JobKind(kind)
	job.Status = schema.JobStatus(status)
	if wfExecID.Valid {
		job.WorkflowExecutionID = &wfExecID.Int64
	}
	if err := json.Unmarshal([]byte(data), &job.Descriptor); err != nil {
		return nil, fmt.Errorf("unmarshal job descriptor: %w", err)
	}
	return job, nil
}

func scanExecution(row rowScanner) (*WorkflowExecution, error) {
	exec := &WorkflowExecution{}
	var status, vars, init string
	var completedAt sql.NullTime
	err := row.Scan(&exec.ID, &exec.WorkflowID, &status, &exec.CurrentStepNumber,
		&vars, &init, &exec.CreatedAt, &exec.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	exec.Status = schema.ExecutionStatus(status)
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal([]byte(vars), &exec.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	if err := json.Unmarshal([]byte(init), &exec.InitData); err != nil {
		return nil, fmt.Errorf("unmarshal init_data: %w", err)
	}
	return exec, nil
}

func nullableJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func checkAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "row %d not found", id)
	}
	return nil
}

func storeErr(op string, err error) error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}
