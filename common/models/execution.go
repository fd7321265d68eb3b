package models

import "time"

// ExecutionStatus is the overall status of a workflow run
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// NodeStatus is the execution status of a single node
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"   // waiting for dependencies
	NodeQueued    NodeStatus = "queued"    // dependencies met, in queue
	NodeRunning   NodeStatus = "running"   // currently executing
	NodeCompleted NodeStatus = "completed" // finished successfully
	NodeFailed    NodeStatus = "failed"    // failed after all retries
	NodeSkipped   NodeStatus = "skipped"   // skipped due to upstream failure or cancel
)

// NodeState is the runtime state of a single node during execution
type NodeState struct {
	NodeID      string     `json:"node_id"`
	Status      NodeStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	Error       string     `json:"error,omitempty"`
	Output      any        `json:"output,omitempty"`
}

// Execution is a single run of a workflow with a pinned version and inputs
type Execution struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	WorkflowID        string          `json:"workflow_id"`
	WorkflowVersion   int             `json:"workflow_version"`
	Status            ExecutionStatus `json:"status"`
	TriggeredBy       string          `json:"triggered_by"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	NodeStates        []NodeState     `json:"node_states"`
	Inputs            map[string]any  `json:"inputs"`
	ParentExecutionID string          `json:"parent_execution_id,omitempty"`
	ResumedFromNodeID string          `json:"resumed_from_node_id,omitempty"`
}

// NodeStateMap builds a node state lookup map
func (e *Execution) NodeStateMap() map[string]NodeState {
	m := make(map[string]NodeState, len(e.NodeStates))
	for _, s := range e.NodeStates {
		m[s.NodeID] = s
	}
	return m
}

// IsResume reports whether this execution was created by resuming a parent
func (e *Execution) IsResume() bool {
	return e.ParentExecutionID != ""
}

// Clone returns a deep copy of the execution
func (e *Execution) Clone() *Execution {
	cp := *e
	cp.NodeStates = append([]NodeState(nil), e.NodeStates...)
	if e.Inputs != nil {
		inputs := make(map[string]any, len(e.Inputs))
		for k, v := range e.Inputs {
			inputs[k] = v
		}
		cp.Inputs = inputs
	}
	return &cp
}
