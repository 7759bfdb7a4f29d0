package schema

// JobKind distinguishes how a scheduled job relates to the calendar.
type JobKind string

const (
	JobOneTime        JobKind = "one_time"
	JobRecurring      JobKind = "recurring"
	JobWorkflowResume JobKind = "workflow_resume"
)

// JobStatus enumerates the lifecycle states of a scheduled job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// DescriptorKind selects the execution path for a job or workflow step.
type DescriptorKind string

const (
	KindWebhook          DescriptorKind = "webhook"
	KindInternalFunction DescriptorKind = "internal_function"
	KindCustomCode       DescriptorKind = "custom_code"
	KindWorkflowResume   DescriptorKind = "workflow_resume"
)

// JobDescriptor is the kind-specific execution payload stored in
// scheduled_jobs.data. Only the fields matching Kind are populated.
type JobDescriptor struct {
	Kind DescriptorKind `json:"type"`

	// webhook
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`

	// internal_function
	FunctionName string         `json:"function_name,omitempty"`
	Params       map[string]any `json:"params,omitempty"`

	// custom_code
	Code     string         `json:"code,omitempty"`
	Language string         `json:"language,omitempty"` // expr (default), cel, jq
	Input    map[string]any `json:"input,omitempty"`

	// workflow_resume
	NextStep int `json:"next_step,omitempty"`
}
