// Package events defines the execution event vocabulary and the in-process
// emitter that fans events out to subscribers (the websocket hub, tests,
// any future sink).
package events

import "time"

// Type names one kind of execution lifecycle event
type Type string

const (
	ExecutionStarted   Type = "EXECUTION_STARTED"
	ExecutionCompleted Type = "EXECUTION_COMPLETED"
	ExecutionFailed    Type = "EXECUTION_FAILED"
	ExecutionCancelled Type = "EXECUTION_CANCELLED"

	NodeQueued    Type = "NODE_QUEUED"
	NodeRunning   Type = "NODE_RUNNING"
	NodeCompleted Type = "NODE_COMPLETED"
	NodeFailed    Type = "NODE_FAILED"
	NodeSkipped   Type = "NODE_SKIPPED"
	NodeRetrying  Type = "NODE_RETRYING"
	NodeCacheHit  Type = "NODE_CACHE_HIT"

	ResumeStart      Type = "RESUME_START"
	NodeOutputReused Type = "NODE_OUTPUT_REUSED"
	ResumeComplete   Type = "RESUME_COMPLETE"

	LogEmitted Type = "LOG_EMITTED"
)

// Event is the wire shape delivered to stream subscribers
type Event struct {
	Type        Type      `json:"event"`
	ExecutionID string    `json:"executionId"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     any       `json:"payload,omitempty"`
}

// New builds an event stamped with the current time
func New(eventType Type, executionID string, payload any) Event {
	return Event{
		Type:        eventType,
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}

// ExecutionStartedPayload accompanies EXECUTION_STARTED
type ExecutionStartedPayload struct {
	WorkflowID      string `json:"workflowId"`
	WorkflowVersion int    `json:"workflowVersion"`
	NodeCount       int    `json:"nodeCount"`
}

// ExecutionCompletedPayload accompanies EXECUTION_COMPLETED
type ExecutionCompletedPayload struct {
	Status     string `json:"status"`
	DurationMS int64  `json:"durationMs"`
}

// ExecutionFailedPayload accompanies EXECUTION_FAILED
type ExecutionFailedPayload struct {
	Status      string   `json:"status"`
	Error       string   `json:"error"`
	DurationMS  int64    `json:"durationMs"`
	FailedNodes []string `json:"failedNodes,omitempty"`
}

// ExecutionCancelledPayload accompanies EXECUTION_CANCELLED
type ExecutionCancelledPayload struct {
	CancelledBy string `json:"cancelledBy,omitempty"`
}

// NodePayload is the shared shape for node lifecycle events
type NodePayload struct {
	NodeID string `json:"nodeId"`
}

// NodeCompletedPayload accompanies NODE_COMPLETED
type NodeCompletedPayload struct {
	NodeID        string `json:"nodeId"`
	DurationMS    int64  `json:"durationMs"`
	Cached        bool   `json:"cached"`
	OutputSummary string `json:"outputSummary,omitempty"`
}

// NodeFailedPayload accompanies NODE_FAILED
type NodeFailedPayload struct {
	NodeID     string `json:"nodeId"`
	Error      string `json:"error"`
	RetryCount int    `json:"retryCount"`
	WillRetry  bool   `json:"willRetry"`
}

// NodeSkippedPayload accompanies NODE_SKIPPED
type NodeSkippedPayload struct {
	NodeID string `json:"nodeId"`
	Reason string `json:"reason"`
}

// NodeRetryingPayload accompanies NODE_RETRYING
type NodeRetryingPayload struct {
	NodeID     string `json:"nodeId"`
	RetryCount int    `json:"retryCount"`
	BackoffMS  int64  `json:"backoffMs"`
}

// NodeCacheHitPayload accompanies NODE_CACHE_HIT
type NodeCacheHitPayload struct {
	NodeID             string `json:"nodeId"`
	OriginalDurationMS int64  `json:"originalDurationMs"`
	Message            string `json:"message"`
}

// ResumeStartPayload accompanies RESUME_START
type ResumeStartPayload struct {
	ParentExecutionID string `json:"parentExecutionId"`
	StartNodeID       string `json:"startNodeId"`
	ReusedCount       int    `json:"reusedCount"`
	RerunCount        int    `json:"rerunCount"`
}

// NodeOutputReusedPayload accompanies NODE_OUTPUT_REUSED
type NodeOutputReusedPayload struct {
	NodeID            string `json:"nodeId"`
	ParentExecutionID string `json:"parentExecutionId"`
}

// ResumeCompletePayload accompanies RESUME_COMPLETE
type ResumeCompletePayload struct {
	Status     string `json:"status"`
	DurationMS int64  `json:"durationMs"`
}

// LogEmittedPayload accompanies LOG_EMITTED
type LogEmittedPayload struct {
	NodeID  string `json:"nodeId,omitempty"`
	Level   string `json:"level"`
	Message string `json:"message"`
}
