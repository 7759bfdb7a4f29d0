package validation

import (
	"strconv"
	"strings"
	"time"

	"github.com/worklinehq/workline/pkg/schema"
)

// ParseDelay parses a relative delay string of the form "30s", "5m",
// "2h" or "1d". Days are not a time.ParseDuration unit, so they are
// handled here as 24-hour multiples.
func ParseDelay(s string) (time.Duration, error) {
	if s == "" {
		return 0, schema.NewError(schema.ErrCodeValidation, "delay is empty")
	}

	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil || days <= 0 {
			return 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid delay %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid delay %q", s)
	}
	return d, nil
}
