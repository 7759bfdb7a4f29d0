// Package validation checks schedule-job requests before they reach the
// store. Shape validation runs against an embedded JSON Schema; the
// checks the schema cannot express (cron syntax, kind/field coupling)
// run afterwards in Go.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/worklinehq/workline/internal/store"
	"github.com/worklinehq/workline/pkg/schema"
)

const scheduleJobSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://workline.dev/schemas/schedule-job.json",
  "type": "object",
  "required": ["kind", "descriptor"],
  "properties": {
    "name": { "type": "string" },
    "kind": {
      "type": "string",
      "enum": ["one_time", "recurring"]
    },
    "descriptor": { "$ref": "#/$defs/descriptor" },
    "scheduled_time": {
      "type": "string",
      "format": "date-time"
    },
    "delay": {
      "type": "string",
      "pattern": "^[0-9]+(s|m|h|d)$"
    },
    "recurrence_rule": { "type": "string" },
    "max_attempts": {
      "type": "integer",
      "minimum": 1
    },
    "backoff_seconds": {
      "type": "integer",
      "minimum": 1
    },
    "idempotency_key": { "type": "string" }
  },
  "additionalProperties": false,
  "$defs": {
    "descriptor": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["webhook", "internal_function", "custom_code"]
        },
        "url": { "type": "string" },
        "method": { "type": "string" },
        "headers": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "body": {},
        "function_name": { "type": "string" },
        "params": { "type": "object" },
        "code": { "type": "string" },
        "language": {
          "type": "string",
          "enum": ["expr", "cel", "jq"]
        },
        "input": { "type": "object" }
      },
      "additionalProperties": false
    }
  }
}`

// Defaults applied when the request omits the field.
const (
	DefaultMaxAttempts    = 3
	DefaultBackoffSeconds = 300
	DefaultDelay          = 5 * time.Second
)

// ScheduleRequest is the decoded enqueue payload after shape validation.
type ScheduleRequest struct {
	Name           string                `json:"name"`
	Kind           schema.JobKind        `json:"kind"`
	Descriptor     *schema.JobDescriptor `json:"descriptor"`
	ScheduledTime  string                `json:"scheduled_time"`
	Delay          string                `json:"delay"`
	RecurrenceRule string                `json:"recurrence_rule"`
	MaxAttempts    int                   `json:"max_attempts"`
	BackoffSeconds int                   `json:"backoff_seconds"`
	IdempotencyKey string                `json:"idempotency_key"`
}

// JobValidator validates schedule-job payloads. Safe for concurrent use.
type JobValidator struct {
	schema *jsonschema.Schema
}

// NewJobValidator compiles the embedded schedule-job schema.
func NewJobValidator() (*JobValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(scheduleJobSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schedule-job schema: %w", err)
	}
	if err := c.AddResource("https://workline.dev/schemas/schedule-job.json", doc); err != nil {
		return nil, fmt.Errorf("add schedule-job schema resource: %w", err)
	}
	compiled, err := c.Compile("https://workline.dev/schemas/schedule-job.json")
	if err != nil {
		return nil, fmt.Errorf("compile schedule-job schema: %w", err)
	}
	return &JobValidator{schema: compiled}, nil
}

// ParseScheduleJob validates the raw request body and decodes it. Every
// failure comes back as a VALIDATION_ERROR carrying the violation list.
func (v *JobValidator) ParseScheduleJob(raw []byte) (*ScheduleRequest, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "request body is not valid JSON").WithCause(err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, toWorklineError(err)
	}

	req := &ScheduleRequest{}
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "request body does not decode").WithCause(err)
	}
	if err := req.check(); err != nil {
		return nil, err
	}

	req.applyDefaults()
	return req, nil
}

// check covers the coupling rules JSON Schema cannot express.
func (r *ScheduleRequest) check() error {
	if r.ScheduledTime != "" && r.Delay != "" {
		return schema.NewError(schema.ErrCodeValidation, "scheduled_time and delay are mutually exclusive")
	}
	if r.ScheduledTime != "" {
		if _, err := time.Parse(time.RFC3339, r.ScheduledTime); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "invalid scheduled_time %q: %s", r.ScheduledTime, err.Error()).WithCause(err)
		}
	}
	if r.Delay != "" {
		if _, err := ParseDelay(r.Delay); err != nil {
			return err
		}
	}

	switch r.Kind {
	case schema.JobRecurring:
		if err := store.ParseRecurrence(r.RecurrenceRule); err != nil {
			return err
		}
	case schema.JobOneTime:
		if r.RecurrenceRule != "" {
			return schema.NewError(schema.ErrCodeValidation, "recurrence_rule is only valid for recurring jobs")
		}
	}

	return checkDescriptor(r.Descriptor)
}

func checkDescriptor(desc *schema.JobDescriptor) error {
	switch desc.Kind {
	case schema.KindWebhook:
		if desc.URL == "" {
			return schema.NewError(schema.ErrCodeValidation, "webhook descriptor requires a url")
		}
		u, err := url.Parse(desc.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "webhook url %q must be absolute http or https", desc.URL)
		}
	case schema.KindInternalFunction:
		if desc.FunctionName == "" {
			return schema.NewError(schema.ErrCodeValidation, "internal_function descriptor requires a function_name")
		}
	case schema.KindCustomCode:
		if desc.Code == "" {
			return schema.NewError(schema.ErrCodeValidation, "custom_code descriptor requires code")
		}
	}
	return nil
}

func (r *ScheduleRequest) applyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	if r.BackoffSeconds == 0 {
		r.BackoffSeconds = DefaultBackoffSeconds
	}
}

// EffectiveSchedule resolves when the job first fires: the explicit
// scheduled_time, now plus the relative delay, the next cron occurrence
// for recurring jobs, or now plus the default delay.
func (r *ScheduleRequest) EffectiveSchedule(now time.Time) (time.Time, error) {
	if r.ScheduledTime != "" {
		return time.Parse(time.RFC3339, r.ScheduledTime)
	}
	if r.Delay != "" {
		d, err := ParseDelay(r.Delay)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
	if r.Kind == schema.JobRecurring {
		return store.NextOccurrence(r.RecurrenceRule, now)
	}
	return now.Add(DefaultDelay), nil
}

// toWorklineError flattens a jsonschema.ValidationError tree into one
// structured error listing every violation.
func toWorklineError(err error) *schema.WorklineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "request failed validation with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
