package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worklinehq/workline/pkg/schema"
)

// openTestStore connects to the database named by WORKLINE_TEST_DATABASE_URL
// and starts from a clean slate. Tests are skipped when the variable is
// unset so the suite stays runnable without a database.
func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("WORKLINE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WORKLINE_TEST_DATABASE_URL not set")
	}

	s, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	_, err = s.db.ExecContext(ctx,
		`TRUNCATE scheduled_jobs, job_results, workflows, workflow_steps,
		 workflow_executions, workflow_execution_steps RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return s
}

func testJob(kind schema.JobKind, due time.Time) *ScheduledJob {
	return &ScheduledJob{
		Name:           "test job",
		Kind:           kind,
		ScheduledTime:  due,
		MaxAttempts:    3,
		BackoffSeconds: 300,
		Descriptor: &schema.JobDescriptor{
			Kind: schema.KindWebhook,
			URL:  "https://example.com/hook",
		},
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := testJob(schema.JobOneTime, time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))
	require.NotZero(t, job.ID)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.JobPending, got.Status)
	assert.Equal(t, schema.KindWebhook, got.Descriptor.Kind)
	assert.Equal(t, "https://example.com/hook", got.Descriptor.URL)
	assert.Equal(t, 3, got.MaxAttempts)
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetJob(context.Background(), 999999)
	var werr *schema.WorklineError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, schema.ErrCodeNotFound, werr.Code)
}

func TestCreateJobIdempotencyKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := testJob(schema.JobOneTime, time.Now().UTC())
	first.IdempotencyKey = "resume-42-step-3"
	require.NoError(t, s.CreateJob(ctx, first))

	dup := testJob(schema.JobOneTime, time.Now().UTC())
	dup.IdempotencyKey = "resume-42-step-3"
	require.NoError(t, s.CreateJob(ctx, dup))
	assert.Zero(t, dup.ID, "duplicate insert is a no-op")

	jobs, err := s.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestClaimBatchOnlyDuePending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	due := testJob(schema.JobOneTime, time.Now().UTC().Add(-time.Minute))
	future := testJob(schema.JobOneTime, time.Now().UTC().Add(time.Hour))
	require.NoError(t, s.CreateJob(ctx, due))
	require.NoError(t, s.CreateJob(ctx, future))

	claimed, err := s.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, schema.JobRunning, claimed[0].Status)

	// The claimed job is invisible to a second cycle.
	again, err := s.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestClaimBatchRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateJob(ctx, testJob(schema.JobOneTime, time.Now().UTC().Add(-time.Minute))))
	}

	claimed, err := s.ClaimBatch(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestConcurrentClaimsAreMutuallyExclusive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		require.NoError(t, s.CreateJob(ctx, testJob(schema.JobOneTime, time.Now().UTC().Add(-time.Minute))))
	}

	const claimers = 8
	var mu sync.Mutex
	seen := map[int64]int{}
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jobs, err := s.ClaimBatch(ctx, 3)
				if err != nil || len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					seen[j.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, jobCount, "every job claimed")
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %d claimed once", id)
	}
}

func TestRecoverStuck(t *testing.T) {
	s := openTestStore(t)
	s.SetStuckAfter(time.Minute)
	ctx := context.Background()

	job := testJob(schema.JobOneTime, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, s.CreateJob(ctx, job))

	claimed, err := s.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Simulate a runner that died mid-execution some time ago.
	_, err = s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET attempts = 2, updated_at = now() - interval '5 minutes' WHERE id = $1`,
		job.ID)
	require.NoError(t, err)

	n, err := s.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.JobPending, got.Status)
	assert.Equal(t, 2, got.Attempts, "recovery never resets attempts")

	// A freshly running job is left alone.
	n, err = s.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobDetailStatsAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := testJob(schema.JobOneTime, time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))

	_, err := s.FinishAttempt(ctx, job, &JobResult{
		JobID: job.ID, ExecutionNumber: 1, Attempt: 1,
		Status: schema.AttemptFailed, Error: "connection refused", DurationMs: 40,
	}, TransitionRetry)
	require.NoError(t, err)
	_, err = s.FinishAttempt(ctx, job, &JobResult{
		JobID: job.ID, ExecutionNumber: 1, Attempt: 2,
		Status: schema.AttemptSuccess, Output: map[string]any{"status_code": 200}, DurationMs: 95,
	}, TransitionComplete)
	require.NoError(t, err)

	detail, err := s.GetJobDetail(ctx, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.Stats.TotalRuns)
	assert.Equal(t, 1, detail.Stats.TotalFailures)
	require.NotNil(t, detail.Latest)
	assert.Equal(t, 2, detail.Latest.Attempt)
	assert.Nil(t, detail.History)

	// History is newest first.
	detail, err = s.GetJobDetail(ctx, job.ID, true)
	require.NoError(t, err)
	require.Len(t, detail.History, 2)
	assert.Equal(t, 2, detail.History[0].Attempt)
	assert.Equal(t, 1, detail.History[1].Attempt)
	assert.Equal(t, "connection refused", detail.History[1].Error)
}

func TestHistoryOrderedByExecutionThenAttempt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := testJob(schema.JobRecurring, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	job.RecurrenceRule = "0 9 * * *"
	require.NoError(t, s.CreateJob(ctx, job))

	rows := []struct {
		execution, attempt int
		transition         Transition
	}{
		{1, 1, TransitionRetry},
		{1, 2, TransitionAdvance},
		{2, 1, TransitionAdvance},
	}
	for _, r := range rows {
		_, err := s.FinishAttempt(ctx, job, &JobResult{
			JobID: job.ID, ExecutionNumber: r.execution, Attempt: r.attempt,
			Status: schema.AttemptSuccess,
		}, r.transition)
		require.NoError(t, err)
	}

	detail, err := s.GetJobDetail(ctx, job.ID, true)
	require.NoError(t, err)
	require.Len(t, detail.History, 3)
	assert.Equal(t, 2, detail.History[0].ExecutionNumber)
	assert.Equal(t, 1, detail.History[1].ExecutionNumber)
	assert.Equal(t, 2, detail.History[1].Attempt)
	assert.Equal(t, 1, detail.History[2].Attempt)
	assert.Equal(t, detail.History[0], detail.Latest)
}

func TestFinishAttemptTerminalTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	done := testJob(schema.JobOneTime, time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, done))
	next, err := s.FinishAttempt(ctx, done, &JobResult{
		JobID: done.ID, ExecutionNumber: 1, Attempt: 1, Status: schema.AttemptSuccess,
	}, TransitionComplete)
	require.NoError(t, err)
	assert.Nil(t, next)

	got, err := s.GetJob(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.JobCompleted, got.Status)
	assert.Equal(t, 1, got.ExecutionCount)

	dead := testJob(schema.JobOneTime, time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, dead))
	_, err = s.FinishAttempt(ctx, dead, &JobResult{
		JobID: dead.ID, ExecutionNumber: 1, Attempt: 3,
		Status: schema.AttemptFailed, Error: "gone",
	}, TransitionFail)
	require.NoError(t, err)

	got, err = s.GetJob(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.JobFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)

	detail, err := s.GetJobDetail(ctx, dead.ID, true)
	require.NoError(t, err)
	require.Len(t, detail.History, 1)
	assert.Equal(t, "gone", detail.History[0].Error)
}

func TestFinishAttemptAdvance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := testJob(schema.JobRecurring, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	job.RecurrenceRule = "0 9 * * *"
	require.NoError(t, s.CreateJob(ctx, job))
	_, err := s.db.ExecContext(ctx, `UPDATE scheduled_jobs SET attempts = 3 WHERE id = $1`, job.ID)
	require.NoError(t, err)

	next, err := s.FinishAttempt(ctx, job, &JobResult{
		JobID: job.ID, ExecutionNumber: 1, Attempt: 3, Status: schema.AttemptSuccess,
	}, TransitionAdvance)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), next.UTC())

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.JobPending, got.Status)
	assert.Zero(t, got.Attempts, "advance resets attempts")
	assert.Equal(t, 1, got.ExecutionCount)
	assert.True(t, got.ScheduledTime.UTC().Equal(next.UTC()))
}

func TestFinishAttemptRetry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := testJob(schema.JobOneTime, time.Now().UTC())
	job.BackoffSeconds = 10
	require.NoError(t, s.CreateJob(ctx, job))

	next, err := s.FinishAttempt(ctx, job, &JobResult{
		JobID: job.ID, ExecutionNumber: 1, Attempt: 2,
		Status: schema.AttemptFailed, Error: "503",
	}, TransitionRetry)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.WithinDuration(t, time.Now().Add(20*time.Second), *next, 5*time.Second)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.JobPending, got.Status)
	assert.Equal(t, 2, got.Attempts)
}

func TestFinishAttemptIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := testJob(schema.JobOneTime, time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))

	// An unknown transition aborts before commit: neither the attempt
	// row nor any status change may land.
	_, err := s.FinishAttempt(ctx, job, &JobResult{
		JobID: job.ID, ExecutionNumber: 1, Attempt: 1, Status: schema.AttemptSuccess,
	}, Transition("explode"))
	var werr *schema.WorklineError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, schema.ErrCodeValidation, werr.Code)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.JobPending, got.Status)

	detail, err := s.GetJobDetail(ctx, job.ID, true)
	require.NoError(t, err)
	assert.Empty(t, detail.History)
}

// --- workflow store ---

func seedWorkflow(t *testing.T, s *PostgresStore, steps ...*WorkflowStep) *Workflow {
	t.Helper()
	ctx := context.Background()

	wf := &Workflow{Name: "onboarding", Active: true}
	require.NoError(t, s.CreateWorkflow(ctx, wf))
	for _, step := range steps {
		step.WorkflowID = wf.ID
		require.NoError(t, s.CreateStep(ctx, step))
	}
	return wf
}

func TestCreateExecutionSeedsVariables(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s)
	init := map[string]any{"contact_id": float64(7), "channel": "sms"}

	exec, err := s.CreateExecution(ctx, wf.ID, init)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecActive, exec.Status)
	assert.Equal(t, 1, exec.CurrentStepNumber)

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, init, got.Variables)
	assert.Equal(t, init, got.InitData)
}

func TestClaimExecutionCompareAndSet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s)
	exec, err := s.CreateExecution(ctx, wf.ID, nil)
	require.NoError(t, err)

	claimed, ok, err := s.ClaimExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, schema.ExecProcessing, claimed.Status)

	// Second claim sees processing and is skipped.
	_, ok, err = s.ClaimExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// Delayed executions are claimable again.
	require.NoError(t, s.SetExecutionStatus(ctx, exec.ID, schema.ExecDelayed))
	_, ok, err = s.ClaimExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimExecutionAbsent(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.ClaimExecution(context.Background(), 424242)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMergeVariablesLastWriterWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s)
	exec, err := s.CreateExecution(ctx, wf.ID, map[string]any{"stage": "new", "score": float64(10)})
	require.NoError(t, err)

	require.NoError(t, s.MergeVariables(ctx, exec.ID, map[string]any{"stage": "qualified"}))
	require.NoError(t, s.MergeVariables(ctx, exec.ID, map[string]any{"stage": "won", "owner": "ana"}))

	vars, err := s.ReadVariables(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"stage": "won", "score": float64(10), "owner": "ana"}, vars)
}

func TestRecordStepAndDetail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	step1 := &WorkflowStep{StepNumber: 1, Kind: schema.KindInternalFunction, Config: map[string]any{"function_name": "noop"}}
	wf := seedWorkflow(t, s, step1)
	exec, err := s.CreateExecution(ctx, wf.ID, nil)
	require.NoError(t, err)

	require.NoError(t, s.RecordStep(ctx, &WorkflowExecutionStep{
		ExecutionID: exec.ID, StepNumber: 1, StepID: &step1.ID,
		Status: schema.AttemptSuccess, Output: map[string]any{"ok": true}, DurationMs: 12,
	}))
	require.NoError(t, s.RecordStep(ctx, &WorkflowExecutionStep{
		ExecutionID: exec.ID, StepNumber: 2,
		Status: schema.AttemptFailed, Error: "boom",
	}))

	detail, err := s.GetExecutionDetail(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, detail.Steps, 2)
	assert.Equal(t, map[string]any{"ok": true}, detail.Steps[0].Output)
	assert.Equal(t, "boom", detail.Steps[1].Error)
}

func TestSetExecutionStatusTerminalStampsCompletedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s)
	exec, err := s.CreateExecution(ctx, wf.ID, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetExecutionStatus(ctx, exec.ID, schema.ExecCompleted))

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestGetStep(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s, &WorkflowStep{
		StepNumber: 1, Name: "greet", Kind: schema.KindCustomCode,
		Config: map[string]any{"code": `"hi " + vars.name`},
	})

	step, err := s.GetStep(ctx, wf.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, schema.KindCustomCode, step.Kind)
	assert.Equal(t, "greet", step.Name)

	_, err = s.GetStep(ctx, wf.ID, 9)
	var werr *schema.WorklineError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, schema.ErrCodeNotFound, werr.Code)
}
