package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worklinehq/workline/internal/store"
	"github.com/worklinehq/workline/pkg/schema"
)

// fakeJobStore is an in-memory JobStore mirroring the Postgres
// transition semantics closely enough for runner tests.
type fakeJobStore struct {
	mu        sync.Mutex
	jobs      map[int64]*store.ScheduledJob
	results   []*store.JobResult
	nextID    int64
	finishErr error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[int64]*store.ScheduledJob{}}
}

func (f *fakeJobStore) add(job *store.ScheduledJob) *store.ScheduledJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	job.ID = f.nextID
	if job.Status == "" {
		job.Status = schema.JobPending
	}
	job.UpdatedAt = time.Now()
	f.jobs[job.ID] = job
	return job
}

func (f *fakeJobStore) CreateJob(ctx context.Context, job *store.ScheduledJob) error {
	f.add(job)
	return nil
}

func (f *fakeJobStore) GetJob(ctx context.Context, id int64) (*store.ScheduledJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "job %d not found", id)
	}
	return job, nil
}

func (f *fakeJobStore) GetJobDetail(ctx context.Context, id int64, withHistory bool) (*store.JobDetail, error) {
	job, err := f.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return &store.JobDetail{Job: job}, nil
}

func (f *fakeJobStore) ClaimBatch(ctx context.Context, limit int) ([]*store.ScheduledJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var claimed []*store.ScheduledJob
	now := time.Now()
	for _, job := range f.jobs {
		if len(claimed) >= limit {
			break
		}
		if job.Status == schema.JobPending && !job.ScheduledTime.After(now) {
			job.Status = schema.JobRunning
			job.UpdatedAt = now
			copied := *job
			claimed = append(claimed, &copied)
		}
	}
	return claimed, nil
}

func (f *fakeJobStore) RecoverStuck(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, job := range f.jobs {
		if job.Status == schema.JobRunning && time.Since(job.UpdatedAt) > 10*time.Minute {
			job.Status = schema.JobPending
			job.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

// FinishAttempt mirrors the Postgres store's all-or-nothing contract:
// the attempt row and the transition land together under one lock, and
// an injected error leaves the job untouched with no row appended.
func (f *fakeJobStore) FinishAttempt(ctx context.Context, job *store.ScheduledJob, res *store.JobResult, t store.Transition) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.finishErr != nil {
		return nil, f.finishErr
	}
	stored, ok := f.jobs[job.ID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "job %d not found", job.ID)
	}

	var next time.Time
	switch t {
	case store.TransitionComplete, store.TransitionFail:
		stored.Status = schema.JobCompleted
		if t == store.TransitionFail {
			stored.Status = schema.JobFailed
		}
		stored.Attempts = res.Attempt
		stored.ExecutionCount++
	case store.TransitionRetry:
		next = time.Now().Add(store.RetryDelay(job.BackoffSeconds, res.Attempt))
		stored.Status = schema.JobPending
		stored.ScheduledTime = next
		stored.Attempts = res.Attempt
	case store.TransitionAdvance:
		var err error
		next, err = store.NextOccurrence(job.RecurrenceRule, job.ScheduledTime)
		if err != nil {
			return nil, err
		}
		stored.Status = schema.JobPending
		stored.ScheduledTime = next
		stored.Attempts = 0
		stored.ExecutionCount++
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown transition %q", t)
	}
	stored.UpdatedAt = time.Now()
	f.results = append(f.results, res)

	if t == store.TransitionRetry || t == store.TransitionAdvance {
		return &next, nil
	}
	return nil, nil
}

func (f *fakeJobStore) transition(id int64, apply func(*store.ScheduledJob)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "job %d not found", id)
	}
	apply(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (f *fakeJobStore) attemptRows(jobID int64) []*store.JobResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.JobResult
	for _, r := range f.results {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out
}

var _ store.JobStore = (*fakeJobStore)(nil)

type fakeDispatcher struct {
	fn func(desc *schema.JobDescriptor) (any, error)
}

func (f *fakeDispatcher) Execute(ctx context.Context, desc *schema.JobDescriptor, vars map[string]any) (*schema.StepResult, error) {
	out, err := f.fn(desc)
	if err != nil {
		return nil, err
	}
	return &schema.StepResult{Output: out}, nil
}

type fakeAdvancer struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (f *fakeAdvancer) Advance(ctx context.Context, executionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, executionID)
	return f.err
}

func newRunner(jobs store.JobStore, d Dispatcher, a Advancer) *Runner {
	return New(jobs, d, a, nil, 10, 4)
}

func dueJob(kind schema.JobKind) *store.ScheduledJob {
	return &store.ScheduledJob{
		Kind:           kind,
		ScheduledTime:  time.Now().Add(-time.Minute),
		MaxAttempts:    3,
		BackoffSeconds: 10,
		Descriptor:     &schema.JobDescriptor{Kind: schema.KindWebhook, URL: "https://example.com/hook"},
	}
}

func TestRunCycleIdleIsIdempotent(t *testing.T) {
	jobs := newFakeJobStore()
	r := newRunner(jobs, &fakeDispatcher{fn: func(*schema.JobDescriptor) (any, error) { return nil, nil }}, &fakeAdvancer{})

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
	assert.Empty(t, res.Outcomes)
	assert.Empty(t, jobs.results)
}

func TestRunCycleCompletesOneTimeJob(t *testing.T) {
	jobs := newFakeJobStore()
	job := jobs.add(dueJob(schema.JobOneTime))

	r := newRunner(jobs, &fakeDispatcher{fn: func(*schema.JobDescriptor) (any, error) {
		return map[string]any{"status_code": 200}, nil
	}}, &fakeAdvancer{})

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, OutcomeCompleted, res.Outcomes[0].Status)
	assert.Equal(t, 1, res.Outcomes[0].Attempt)

	got, _ := jobs.GetJob(context.Background(), job.ID)
	assert.Equal(t, schema.JobCompleted, got.Status)

	rows := jobs.attemptRows(job.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, schema.AttemptSuccess, rows[0].Status)
}

func TestRunCycleAdvancesRecurringJob(t *testing.T) {
	jobs := newFakeJobStore()
	job := dueJob(schema.JobRecurring)
	job.RecurrenceRule = "*/5 * * * *"
	jobs.add(job)

	r := newRunner(jobs, &fakeDispatcher{fn: func(*schema.JobDescriptor) (any, error) { return "ok", nil }}, &fakeAdvancer{})

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, OutcomeAdvanced, res.Outcomes[0].Status)
	require.NotNil(t, res.Outcomes[0].NextRun)

	got, _ := jobs.GetJob(context.Background(), job.ID)
	assert.Equal(t, schema.JobPending, got.Status)
	assert.Zero(t, got.Attempts)
	assert.Equal(t, 1, got.ExecutionCount)
}

func TestRetryThenSucceedScenario(t *testing.T) {
	jobs := newFakeJobStore()
	job := dueJob(schema.JobOneTime)
	jobs.add(job)

	var calls int
	r := newRunner(jobs, &fakeDispatcher{fn: func(*schema.JobDescriptor) (any, error) {
		calls++
		if calls < 3 {
			return nil, schema.NewError(schema.ErrCodeTransport, "gateway timeout")
		}
		return map[string]any{"ok": true}, nil
	}}, &fakeAdvancer{})

	ctx := context.Background()
	for cycle := 1; cycle <= 3; cycle++ {
		// Pull the retry time back so the next cycle sees the job as due.
		jobs.transition(job.ID, func(j *store.ScheduledJob) { j.ScheduledTime = time.Now().Add(-time.Second) })

		res, err := r.RunCycle(ctx)
		require.NoError(t, err)
		require.Len(t, res.Outcomes, 1, "cycle %d", cycle)
	}

	got, _ := jobs.GetJob(ctx, job.ID)
	assert.Equal(t, schema.JobCompleted, got.Status)

	rows := jobs.attemptRows(job.ID)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, i+1, row.Attempt)
	}
	assert.Equal(t, schema.AttemptFailed, rows[0].Status)
	assert.Equal(t, schema.AttemptFailed, rows[1].Status)
	assert.Equal(t, schema.AttemptSuccess, rows[2].Status)
}

func TestExhaustedOneTimeJobFailsTerminally(t *testing.T) {
	jobs := newFakeJobStore()
	job := dueJob(schema.JobOneTime)
	job.Attempts = 2 // two failures already recorded
	jobs.add(job)

	r := newRunner(jobs, &fakeDispatcher{fn: func(*schema.JobDescriptor) (any, error) {
		return nil, schema.NewError(schema.ErrCodeTransport, "still down")
	}}, &fakeAdvancer{})

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, OutcomeFailed, res.Outcomes[0].Status)

	got, _ := jobs.GetJob(context.Background(), job.ID)
	assert.Equal(t, schema.JobFailed, got.Status)
}

func TestExhaustedRecurringJobStillAdvances(t *testing.T) {
	jobs := newFakeJobStore()
	job := dueJob(schema.JobRecurring)
	job.RecurrenceRule = "0 * * * *"
	job.Attempts = 2
	jobs.add(job)

	r := newRunner(jobs, &fakeDispatcher{fn: func(*schema.JobDescriptor) (any, error) {
		return nil, schema.NewError(schema.ErrCodeTransport, "still down")
	}}, &fakeAdvancer{})

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, OutcomeAdvancedAfterFailure, res.Outcomes[0].Status)

	got, _ := jobs.GetJob(context.Background(), job.ID)
	assert.Equal(t, schema.JobPending, got.Status)
	assert.Zero(t, got.Attempts)
}

func TestPanicIsContainedAsFailure(t *testing.T) {
	jobs := newFakeJobStore()
	healthy := jobs.add(dueJob(schema.JobOneTime))
	bomb := dueJob(schema.JobOneTime)
	bomb.Descriptor.URL = "https://example.com/bomb"
	bomb.MaxAttempts = 1
	jobs.add(bomb)

	r := newRunner(jobs, &fakeDispatcher{fn: func(desc *schema.JobDescriptor) (any, error) {
		if desc.URL == "https://example.com/bomb" {
			panic("executor bug")
		}
		return "ok", nil
	}}, &fakeAdvancer{})

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 2)

	got, _ := jobs.GetJob(context.Background(), healthy.ID)
	assert.Equal(t, schema.JobCompleted, got.Status, "one job's panic never blocks another's bookkeeping")

	rows := jobs.attemptRows(bomb.ID)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Error, "panic")

	completed, failed := r.pool.Stats()
	assert.EqualValues(t, 1, completed)
	assert.EqualValues(t, 1, failed)
}

func TestBookkeepingFailureLeavesJobUntouched(t *testing.T) {
	jobs := newFakeJobStore()
	job := jobs.add(dueJob(schema.JobOneTime))
	jobs.finishErr = schema.NewError(schema.ErrCodeStore, "connection reset")

	r := newRunner(jobs, &fakeDispatcher{fn: func(*schema.JobDescriptor) (any, error) {
		return "ok", nil
	}}, &fakeAdvancer{})

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, OutcomeBookkeepingError, res.Outcomes[0].Status)
	assert.Contains(t, res.Outcomes[0].Error, "connection reset")

	// Neither half applied: no completed status without an attempt row.
	got, _ := jobs.GetJob(context.Background(), job.ID)
	assert.Equal(t, schema.JobRunning, got.Status)
	assert.Empty(t, jobs.attemptRows(job.ID))
}

func TestWorkflowResumeRoutesToAdvancer(t *testing.T) {
	jobs := newFakeJobStore()
	execID := int64(77)
	job := &store.ScheduledJob{
		Kind:                schema.JobWorkflowResume,
		ScheduledTime:       time.Now().Add(-time.Second),
		MaxAttempts:         3,
		BackoffSeconds:      10,
		WorkflowExecutionID: &execID,
		Descriptor:          &schema.JobDescriptor{Kind: schema.KindWorkflowResume, NextStep: 4},
	}
	jobs.add(job)

	adv := &fakeAdvancer{}
	r := newRunner(jobs, &fakeDispatcher{fn: func(*schema.JobDescriptor) (any, error) {
		t.Fatal("dispatcher must not see workflow_resume jobs")
		return nil, nil
	}}, adv)

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, OutcomeCompleted, res.Outcomes[0].Status)
	assert.Equal(t, []int64{execID}, adv.calls)

	got, _ := jobs.GetJob(context.Background(), job.ID)
	assert.Equal(t, schema.JobCompleted, got.Status)
}

func TestStuckJobsRecoveredBeforeClaiming(t *testing.T) {
	jobs := newFakeJobStore()
	job := dueJob(schema.JobOneTime)
	job.Status = schema.JobRunning
	jobs.add(job)
	jobs.mu.Lock()
	jobs.jobs[job.ID].UpdatedAt = time.Now().Add(-time.Hour)
	jobs.mu.Unlock()

	r := newRunner(jobs, &fakeDispatcher{fn: func(*schema.JobDescriptor) (any, error) { return "ok", nil }}, &fakeAdvancer{})

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Recovered)
	require.Len(t, res.Outcomes, 1, "recovered job is claimable in the same cycle")
	assert.Equal(t, OutcomeCompleted, res.Outcomes[0].Status)
}
