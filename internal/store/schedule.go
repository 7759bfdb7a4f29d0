package store

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/worklinehq/workline/pkg/schema"
)

// cronParser accepts standard five-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseRecurrence validates a cron expression at enqueue time.
func ParseRecurrence(rule string) error {
	if rule == "" {
		return schema.NewError(schema.ErrCodeValidation, "recurring job requires a recurrence_rule")
	}
	if _, err := cronParser.Parse(rule); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid recurrence_rule %q: %s", rule, err.Error()).WithCause(err)
	}
	return nil
}

// NextOccurrence computes the fire time following after. Recurring jobs
// advance from their own last scheduled_time rather than wall-clock now,
// so a late run does not drift the schedule.
func NextOccurrence(rule string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(rule)
	if err != nil {
		return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation, "invalid recurrence_rule %q: %s", rule, err.Error()).WithCause(err)
	}
	return sched.Next(after), nil
}

// RetryDelay is the backoff before retrying after the given failed
// attempt: backoff_seconds * 2^(attempt-1). There is deliberately no
// ceiling on the delay; max_attempts is the only bound.
func RetryDelay(backoffSeconds, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(backoffSeconds) * time.Second << uint(attempt-1)
}
