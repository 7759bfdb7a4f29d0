package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worklinehq/workline/pkg/schema"
)

func mustValidator(t *testing.T) *JobValidator {
	t.Helper()
	v, err := NewJobValidator()
	require.NoError(t, err)
	return v
}

func requireValidationError(t *testing.T, err error) *schema.WorklineError {
	t.Helper()
	var werr *schema.WorklineError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, schema.ErrCodeValidation, werr.Code)
	return werr
}

func TestParseScheduleJobAppliesDefaults(t *testing.T) {
	v := mustValidator(t)

	req, err := v.ParseScheduleJob([]byte(`{
		"kind": "one_time",
		"descriptor": {"type": "webhook", "url": "https://example.com/hook"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, schema.JobOneTime, req.Kind)
	assert.Equal(t, DefaultMaxAttempts, req.MaxAttempts)
	assert.Equal(t, DefaultBackoffSeconds, req.BackoffSeconds)

	now := time.Now()
	at, err := req.EffectiveSchedule(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultDelay), at)
}

func TestParseScheduleJobExplicitFieldsKept(t *testing.T) {
	v := mustValidator(t)

	req, err := v.ParseScheduleJob([]byte(`{
		"name": "nightly export",
		"kind": "recurring",
		"recurrence_rule": "0 3 * * *",
		"max_attempts": 5,
		"backoff_seconds": 30,
		"idempotency_key": "export-v1",
		"descriptor": {"type": "internal_function", "function_name": "noop"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "nightly export", req.Name)
	assert.Equal(t, 5, req.MaxAttempts)
	assert.Equal(t, 30, req.BackoffSeconds)
	assert.Equal(t, "export-v1", req.IdempotencyKey)
}

func TestParseScheduleJobRejectsBadShapes(t *testing.T) {
	v := mustValidator(t)

	cases := map[string]string{
		"not json":           `{"kind": `,
		"missing descriptor": `{"kind": "one_time"}`,
		"unknown kind":       `{"kind": "sometimes", "descriptor": {"type": "webhook", "url": "https://x.test"}}`,
		"unknown field":      `{"kind": "one_time", "surprise": 1, "descriptor": {"type": "webhook", "url": "https://x.test"}}`,
		"bad delay pattern":  `{"kind": "one_time", "delay": "soon", "descriptor": {"type": "webhook", "url": "https://x.test"}}`,
		"zero max_attempts":  `{"kind": "one_time", "max_attempts": 0, "descriptor": {"type": "webhook", "url": "https://x.test"}}`,
		"descriptor kind":    `{"kind": "one_time", "descriptor": {"type": "workflow_resume"}}`,
		"unknown language":   `{"kind": "one_time", "descriptor": {"type": "custom_code", "code": "1", "language": "perl"}}`,
	}
	for name, body := range cases {
		_, err := v.ParseScheduleJob([]byte(body))
		requireValidationError(t, err)
		assert.Error(t, err, name)
	}
}

func TestParseScheduleJobCouplingRules(t *testing.T) {
	v := mustValidator(t)

	// Recurring without a rule.
	_, err := v.ParseScheduleJob([]byte(`{
		"kind": "recurring",
		"descriptor": {"type": "internal_function", "function_name": "noop"}
	}`))
	requireValidationError(t, err)

	// Recurring with a malformed rule.
	_, err = v.ParseScheduleJob([]byte(`{
		"kind": "recurring",
		"recurrence_rule": "every tuesday",
		"descriptor": {"type": "internal_function", "function_name": "noop"}
	}`))
	requireValidationError(t, err)

	// One-time jobs may not carry a rule.
	_, err = v.ParseScheduleJob([]byte(`{
		"kind": "one_time",
		"recurrence_rule": "0 3 * * *",
		"descriptor": {"type": "internal_function", "function_name": "noop"}
	}`))
	requireValidationError(t, err)

	// scheduled_time and delay cannot both be set.
	_, err = v.ParseScheduleJob([]byte(`{
		"kind": "one_time",
		"scheduled_time": "2026-10-01T09:00:00Z",
		"delay": "5m",
		"descriptor": {"type": "internal_function", "function_name": "noop"}
	}`))
	requireValidationError(t, err)
}

func TestParseScheduleJobDescriptorRules(t *testing.T) {
	v := mustValidator(t)

	_, err := v.ParseScheduleJob([]byte(`{
		"kind": "one_time",
		"descriptor": {"type": "webhook", "url": "ftp://example.com/drop"}
	}`))
	requireValidationError(t, err)

	_, err = v.ParseScheduleJob([]byte(`{
		"kind": "one_time",
		"descriptor": {"type": "internal_function"}
	}`))
	requireValidationError(t, err)

	_, err = v.ParseScheduleJob([]byte(`{
		"kind": "one_time",
		"descriptor": {"type": "custom_code", "language": "expr"}
	}`))
	requireValidationError(t, err)
}

func TestEffectiveSchedule(t *testing.T) {
	v := mustValidator(t)
	now := time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC)

	// Explicit scheduled_time wins.
	req, err := v.ParseScheduleJob([]byte(`{
		"kind": "one_time",
		"scheduled_time": "2026-10-01T09:00:00Z",
		"descriptor": {"type": "internal_function", "function_name": "noop"}
	}`))
	require.NoError(t, err)
	at, err := req.EffectiveSchedule(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC), at.UTC())

	// Relative delay.
	req, err = v.ParseScheduleJob([]byte(`{
		"kind": "one_time",
		"delay": "2h",
		"descriptor": {"type": "internal_function", "function_name": "noop"}
	}`))
	require.NoError(t, err)
	at, err = req.EffectiveSchedule(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Hour), at)

	// Recurring with no explicit time fires at the next occurrence.
	req, err = v.ParseScheduleJob([]byte(`{
		"kind": "recurring",
		"recurrence_rule": "0 3 * * *",
		"descriptor": {"type": "internal_function", "function_name": "noop"}
	}`))
	require.NoError(t, err)
	at, err = req.EffectiveSchedule(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), at.UTC())
}
