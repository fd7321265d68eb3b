// Package orchestrator drives workflow executions: it plans the DAG,
// dispatches ready nodes to the job queue, reacts to completions, skips
// descendants of failed nodes and settles the aggregate status.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/agentforge/engine/cmd/engine/service"
	"github.com/agentforge/engine/common/apperr"
	"github.com/agentforge/engine/common/config"
	"github.com/agentforge/engine/common/events"
	"github.com/agentforge/engine/common/graph"
	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/models"
	"github.com/agentforge/engine/common/queue"
)

const outputSummaryLimit = 120

// executionState is the orchestrator's in-flight view of one execution
type executionState struct {
	tenantID   string
	workflow   *models.Workflow // snapshot at start
	plan       *models.ExecutionPlan
	execution  *models.Execution // authoritative node states
	startedAt  time.Time
	dispatched map[string]bool // nodes already enqueued
}

// Orchestrator coordinates the queue, the execution store and the event
// emitter for all in-flight executions
type Orchestrator struct {
	mu         sync.Mutex
	executions map[string]*executionState

	queue   *queue.JobQueue
	execSvc *service.ExecutionService
	emitter *events.Emitter
	cfg     config.QueueConfig
	log     *logger.Logger
}

// New creates the orchestrator and wires itself to the queue's callbacks
func New(q *queue.JobQueue, execSvc *service.ExecutionService, emitter *events.Emitter, cfg config.QueueConfig, log *logger.Logger) *Orchestrator {
	o := &Orchestrator{
		executions: make(map[string]*executionState),
		queue:      q,
		execSvc:    execSvc,
		emitter:    emitter,
		cfg:        cfg,
		log:        log,
	}
	q.OnCompleted(o.onJobCompleted)
	q.OnRetry(o.onJobRetry)
	return o
}

// StartExecution plans the workflow and begins dispatching. The execution
// must be freshly created (pending); the workflow snapshot is pinned for
// the lifetime of the run.
func (o *Orchestrator) StartExecution(ctx context.Context, w *models.Workflow, e *models.Execution) error {
	if err := checkRequiredInputs(w, e.Inputs); err != nil {
		o.markStartFailed(ctx, e)
		return err
	}

	plan, err := graph.BuildExecutionPlan(e.ID, w)
	if err != nil {
		o.markStartFailed(ctx, e)
		return apperr.WorkflowInvalid([]apperr.Detail{{Message: err.Error()}})
	}

	updated, err := o.execSvc.UpdateStatus(ctx, e.TenantID, e.ID, models.ExecutionRunning)
	if err != nil {
		return err
	}

	state := &executionState{
		tenantID:   e.TenantID,
		workflow:   w.Clone(),
		plan:       plan,
		execution:  updated,
		startedAt:  time.Now().UTC(),
		dispatched: make(map[string]bool),
	}

	o.mu.Lock()
	o.executions[e.ID] = state
	o.mu.Unlock()

	if e.IsResume() {
		o.announceResume(state)
	} else {
		o.emitter.Emit(events.New(events.ExecutionStarted, e.ID, events.ExecutionStartedPayload{
			WorkflowID:      w.ID,
			WorkflowVersion: e.WorkflowVersion,
			NodeCount:       len(w.Nodes),
		}))
	}

	o.log.Info("execution started",
		"execution_id", e.ID,
		"workflow_id", w.ID,
		"tenant_id", e.TenantID,
		"resume", e.IsResume())

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.dispatchReady(ctx, state); err != nil {
		return err
	}
	// a resume where everything was reused settles immediately
	o.settleIfComplete(ctx, state)
	return nil
}

// markStartFailed records an execution that could not be admitted, so it
// does not linger as pending
func (o *Orchestrator) markStartFailed(ctx context.Context, e *models.Execution) {
	if _, err := o.execSvc.UpdateStatus(ctx, e.TenantID, e.ID, models.ExecutionFailed); err != nil {
		o.log.Error("failed to mark execution failed", "execution_id", e.ID, "error", err)
	}
}

// announceResume emits RESUME_START and one NODE_OUTPUT_REUSED per
// carried-over node
func (o *Orchestrator) announceResume(state *executionState) {
	e := state.execution

	reused, rerun := 0, 0
	for _, ns := range e.NodeStates {
		if ns.Status == models.NodePending {
			rerun++
		} else {
			reused++
		}
	}

	o.emitter.Emit(events.New(events.ResumeStart, e.ID, events.ResumeStartPayload{
		ParentExecutionID: e.ParentExecutionID,
		StartNodeID:       e.ResumedFromNodeID,
		ReusedCount:       reused,
		RerunCount:        rerun,
	}))

	for _, ns := range e.NodeStates {
		if ns.Status == models.NodeCompleted {
			o.emitter.Emit(events.New(events.NodeOutputReused, e.ID, events.NodeOutputReusedPayload{
				NodeID:            ns.NodeID,
				ParentExecutionID: e.ParentExecutionID,
			}))
		}
	}
}

// CancelExecution stops an execution: pending jobs are dropped, the
// running job's context is cancelled, the record is swept and the
// terminal event is emitted.
func (o *Orchestrator) CancelExecution(ctx context.Context, tenantID, executionID, cancelledBy string) (*models.Execution, error) {
	e, err := o.execSvc.Get(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return e, nil
	}

	o.queue.CancelExecution(executionID)

	cancelled, err := o.execSvc.Cancel(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}

	o.emitter.Emit(events.New(events.ExecutionCancelled, executionID, events.ExecutionCancelledPayload{
		CancelledBy: cancelledBy,
	}))

	o.mu.Lock()
	delete(o.executions, executionID)
	o.mu.Unlock()
	o.emitter.ClearExecution(executionID)

	return cancelled, nil
}

// onJobRetry runs on the worker goroutine before a retry's backoff sleep
func (o *Orchestrator) onJobRetry(job *models.Job, backoff time.Duration, failure string) {
	o.emitter.Emit(events.New(events.NodeFailed, job.ExecutionID, events.NodeFailedPayload{
		NodeID:     job.NodeID,
		Error:      failure,
		RetryCount: job.RetryCount,
		WillRetry:  true,
	}))
	o.emitter.Emit(events.New(events.NodeRetrying, job.ExecutionID, events.NodeRetryingPayload{
		NodeID:     job.NodeID,
		RetryCount: job.RetryCount,
		BackoffMS:  backoff.Milliseconds(),
	}))

	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.executions[job.ExecutionID]
	if !ok {
		return
	}
	o.setNodeState(context.Background(), state, models.NodeState{
		NodeID:     job.NodeID,
		Status:     models.NodeQueued,
		RetryCount: job.RetryCount,
		Error:      failure,
	})
}

// onJobCompleted runs on the worker goroutine for every terminal job
func (o *Orchestrator) onJobCompleted(job *models.Job, result *models.JobResult) {
	ctx := context.Background()

	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.executions[job.ExecutionID]
	if !ok {
		// execution was cancelled while the job ran
		o.log.Debug("completion for unknown execution, dropping",
			"execution_id", job.ExecutionID, "node_id", job.NodeID)
		return
	}

	now := time.Now().UTC()
	if result.Success {
		o.setNodeState(ctx, state, models.NodeState{
			NodeID:      job.NodeID,
			Status:      models.NodeCompleted,
			StartedAt:   job.StartedAt,
			CompletedAt: &now,
			RetryCount:  job.RetryCount,
			Output:      result.Output,
		})
		o.emitter.Emit(events.New(events.NodeCompleted, job.ExecutionID, events.NodeCompletedPayload{
			NodeID:        job.NodeID,
			DurationMS:    result.DurationMS,
			Cached:        result.Cached,
			OutputSummary: summarizeOutput(result.Output),
		}))

		if err := o.dispatchReady(ctx, state); err != nil {
			o.log.Error("dispatch failed", "execution_id", job.ExecutionID, "error", err)
		}
	} else {
		o.setNodeState(ctx, state, models.NodeState{
			NodeID:      job.NodeID,
			Status:      models.NodeFailed,
			StartedAt:   job.StartedAt,
			CompletedAt: &now,
			RetryCount:  job.RetryCount,
			Error:       result.Error,
		})
		o.emitter.Emit(events.New(events.NodeFailed, job.ExecutionID, events.NodeFailedPayload{
			NodeID:     job.NodeID,
			Error:      result.Error,
			RetryCount: job.RetryCount,
			WillRetry:  false,
		}))

		o.skipDescendants(ctx, state, job.NodeID)
	}

	o.settleIfComplete(ctx, state)
}

// dispatchReady enqueues every pending node whose dependencies have all
// completed. Caller holds o.mu.
func (o *Orchestrator) dispatchReady(ctx context.Context, state *executionState) error {
	if state.execution.Status != models.ExecutionRunning {
		return nil
	}

	states := state.execution.NodeStateMap()
	nodeMap := state.workflow.NodeMap()

	for _, nodeID := range state.plan.ExecutionOrder {
		if state.dispatched[nodeID] || states[nodeID].Status != models.NodePending {
			continue
		}

		ready := true
		for _, dep := range state.plan.Dependencies[nodeID] {
			if states[dep].Status != models.NodeCompleted {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}

		node := nodeMap[nodeID]
		job := o.buildJob(state, node, states)
		state.dispatched[nodeID] = true

		o.setNodeState(ctx, state, models.NodeState{
			NodeID: nodeID,
			Status: models.NodeQueued,
		})
		o.emitter.Emit(events.New(events.NodeQueued, state.execution.ID, events.NodePayload{NodeID: nodeID}))

		if err := o.queue.Add(job); err != nil {
			return fmt.Errorf("enqueue node %s: %w", nodeID, err)
		}
		states = state.execution.NodeStateMap()
	}
	return nil
}

// buildJob snapshots everything a node needs to run. Entry nodes receive
// the execution inputs; downstream nodes receive their parents' outputs
// keyed by parent node id, refined by the edge's source port.
func (o *Orchestrator) buildJob(state *executionState, node models.Node, states map[string]models.NodeState) *models.Job {
	e := state.execution

	inputs := make(map[string]any)
	if len(state.plan.Dependencies[node.ID]) == 0 {
		for k, v := range e.Inputs {
			inputs[k] = v
		}
	} else {
		for _, edge := range state.workflow.Edges {
			if edge.Target != node.ID {
				continue
			}
			parent := states[edge.Source]
			inputs[edge.Source] = selectPort(parent.Output, edge.SourcePort)
		}
	}

	return &models.Job{
		ID:             uuid.NewString(),
		TenantID:       e.TenantID,
		ExecutionID:    e.ID,
		WorkflowID:     e.WorkflowID,
		NodeID:         node.ID,
		NodeType:       node.Type,
		AgentID:        node.Config.AgentID,
		NodeConfig:     node.Config.Parameters,
		Inputs:         inputs,
		MaxRetries:     o.cfg.MaxRetries,
		RetryBackoffMS: o.cfg.RetryBackoffMS,
	}
}

// skipDescendants marks every pending node downstream of failedNodeID as
// skipped, transitively. Caller holds o.mu.
func (o *Orchestrator) skipDescendants(ctx context.Context, state *executionState, failedNodeID string) {
	visited := map[string]bool{failedNodeID: true}
	frontier := []string{failedNodeID}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for _, dependent := range state.plan.Dependents[current] {
			if visited[dependent] {
				continue
			}
			visited[dependent] = true
			frontier = append(frontier, dependent)

			states := state.execution.NodeStateMap()
			if states[dependent].Status != models.NodePending {
				continue
			}

			now := time.Now().UTC()
			o.setNodeState(ctx, state, models.NodeState{
				NodeID:      dependent,
				Status:      models.NodeSkipped,
				CompletedAt: &now,
				Error:       fmt.Sprintf("Skipped due to upstream failure: %s", failedNodeID),
			})
			o.emitter.Emit(events.New(events.NodeSkipped, state.execution.ID, events.NodeSkippedPayload{
				NodeID: dependent,
				Reason: "upstream failure",
			}))
		}
	}
}

// settleIfComplete finishes the execution once no node is pending, queued
// or running. Caller holds o.mu.
func (o *Orchestrator) settleIfComplete(ctx context.Context, state *executionState) {
	e := state.execution
	if e.Status.Terminal() {
		return
	}

	status := service.ComputeAggregateStatus(e.NodeStates)
	if status == models.ExecutionRunning {
		return
	}

	updated, err := o.execSvc.UpdateStatus(ctx, state.tenantID, e.ID, status)
	if err != nil {
		o.log.Error("execution settle failed", "execution_id", e.ID, "error", err)
		return
	}
	state.execution = updated

	duration := time.Since(state.startedAt).Milliseconds()
	switch status {
	case models.ExecutionCompleted:
		o.emitter.Emit(events.New(events.ExecutionCompleted, e.ID, events.ExecutionCompletedPayload{
			Status:     string(status),
			DurationMS: duration,
		}))
	case models.ExecutionFailed:
		var failedNodes []string
		var firstError string
		for _, ns := range updated.NodeStates {
			if ns.Status == models.NodeFailed {
				if firstError == "" {
					firstError = ns.Error
				}
				failedNodes = append(failedNodes, ns.NodeID)
			}
		}
		o.emitter.Emit(events.New(events.ExecutionFailed, e.ID, events.ExecutionFailedPayload{
			Status:      string(status),
			Error:       firstError,
			DurationMS:  duration,
			FailedNodes: failedNodes,
		}))
	}
	if updated.IsResume() {
		o.emitter.Emit(events.New(events.ResumeComplete, e.ID, events.ResumeCompletePayload{
			Status:     string(status),
			DurationMS: duration,
		}))
	}

	o.log.Info("execution finished",
		"execution_id", e.ID,
		"status", string(status),
		"duration_ms", duration)

	delete(o.executions, e.ID)
	o.emitter.ClearExecution(e.ID)
}

// setNodeState persists one node state and refreshes the in-memory
// execution snapshot. Caller holds o.mu.
func (o *Orchestrator) setNodeState(ctx context.Context, state *executionState, ns models.NodeState) {
	// carry forward timing fields the caller did not set
	for _, existing := range state.execution.NodeStates {
		if existing.NodeID == ns.NodeID {
			if ns.StartedAt == nil {
				ns.StartedAt = existing.StartedAt
			}
			break
		}
	}

	updated, err := o.execSvc.UpdateNodeState(ctx, state.tenantID, state.execution.ID, ns)
	if err != nil {
		o.log.Error("node state persist failed",
			"execution_id", state.execution.ID,
			"node_id", ns.NodeID,
			"error", err)
		return
	}
	state.execution = updated
}

// InFlight reports how many executions the orchestrator is tracking
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.executions)
}

// checkRequiredInputs verifies that every input node marked required has
// a value in the execution inputs, keyed by the node's input key (or its
// id when no key is configured)
func checkRequiredInputs(w *models.Workflow, inputs map[string]any) error {
	var missing []string
	for _, node := range w.Nodes {
		if node.Type != models.NodeInput {
			continue
		}
		required, _ := node.Config.Parameters["required"].(bool)
		if !required {
			continue
		}
		key, _ := node.Config.Parameters["key"].(string)
		if key == "" {
			key = node.ID
		}
		if _, ok := inputs[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return apperr.New(apperr.CodeMissingInputs, http.StatusBadRequest,
			"missing required inputs: %v", missing)
	}
	return nil
}

// selectPort extracts the portion of a parent output addressed by a
// non-default source port, using its JSON path
func selectPort(output any, sourcePort string) any {
	if sourcePort == "" || sourcePort == "default" || sourcePort == "output" {
		return output
	}
	data, err := json.Marshal(output)
	if err != nil {
		return output
	}
	value := gjson.GetBytes(data, sourcePort)
	if !value.Exists() {
		return output
	}
	return value.Value()
}

// summarizeOutput renders a short JSON preview of a node output for the
// NODE_COMPLETED event
func summarizeOutput(output any) string {
	if output == nil {
		return ""
	}
	data, err := json.Marshal(output)
	if err != nil {
		return ""
	}
	// prefer a result field when the output carries one
	if result := gjson.GetBytes(data, "result"); result.Exists() && result.Type == gjson.String {
		s := result.String()
		if len(s) > outputSummaryLimit {
			s = s[:outputSummaryLimit]
		}
		return s
	}
	s := string(data)
	if len(s) > outputSummaryLimit {
		s = s[:outputSummaryLimit]
	}
	return s
}
