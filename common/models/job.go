package models

import "time"

// JobStatus is the status of a job in the queue
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is one attempt-unit of node execution. It snapshots everything the
// worker needs so a node can run without consulting the execution store.
type Job struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	NodeID      string `json:"node_id"`

	NodeType   NodeType       `json:"node_type"`
	AgentID    string         `json:"agent_id,omitempty"`
	NodeConfig map[string]any `json:"node_config,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`

	Status         JobStatus `json:"status"`
	MaxRetries     int       `json:"max_retries"`
	RetryCount     int       `json:"retry_count"`
	RetryBackoffMS int       `json:"retry_backoff_ms"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CanRetry reports whether the job has retry budget left
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// JobResult is the outcome of one terminal job attempt
type JobResult struct {
	JobID       string `json:"job_id"`
	NodeID      string `json:"node_id"`
	ExecutionID string `json:"execution_id"`
	Success     bool   `json:"success"`
	Output      any    `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	Cached      bool   `json:"cached"`
}

// ExecutionPlan is the derived, immutable dispatch artefact for one execution
type ExecutionPlan struct {
	ExecutionID    string              `json:"execution_id"`
	WorkflowID     string              `json:"workflow_id"`
	ExecutionOrder []string            `json:"execution_order"`
	Dependencies   map[string][]string `json:"dependencies"` // node -> parent nodes
	Dependents     map[string][]string `json:"dependents"`   // node -> child nodes
	EntryNodes     []string            `json:"entry_nodes"`
	ExitNodes      []string            `json:"exit_nodes"`
}
