package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentforge/engine/cmd/engine/repository"
	"github.com/agentforge/engine/common/apperr"
	"github.com/agentforge/engine/common/graph"
	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/models"
)

// ExecutionService manages execution records and their node states
type ExecutionService struct {
	repo repository.ExecutionRepository
	log  *logger.Logger
}

// NewExecutionService creates the execution service
func NewExecutionService(repo repository.ExecutionRepository, log *logger.Logger) *ExecutionService {
	return &ExecutionService{repo: repo, log: log}
}

// Create stores a new pending execution with every node pending
func (s *ExecutionService) Create(ctx context.Context, w *models.Workflow, tenantID, userID string, inputs map[string]any) (*models.Execution, error) {
	states := make([]models.NodeState, len(w.Nodes))
	for i, n := range w.Nodes {
		states[i] = models.NodeState{NodeID: n.ID, Status: models.NodePending}
	}

	e := &models.Execution{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		WorkflowID:      w.ID,
		WorkflowVersion: w.Version,
		Status:          models.ExecutionPending,
		TriggeredBy:     userID,
		CreatedAt:       time.Now().UTC(),
		NodeStates:      states,
		Inputs:          inputs,
	}

	if err := s.repo.Create(ctx, e); err != nil {
		s.log.Error("execution create failed", "error", err)
		return nil, apperr.Internal()
	}
	return e, nil
}

// CreateResumed stores a new execution derived from a failed parent.
// Nodes in rerun start pending; nodes in skipped carry over the parent's
// state so their outputs can be reused.
func (s *ExecutionService) CreateResumed(ctx context.Context, w *models.Workflow, parent *models.Execution, startNodeID, userID string) (*models.Execution, error) {
	if parent.Status != models.ExecutionFailed {
		return nil, apperr.ResumeNotAllowed(parent.ID,
			fmt.Sprintf("only failed executions can be resumed (status: %s)", parent.Status))
	}
	nodeMap := w.NodeMap()
	if _, ok := nodeMap[startNodeID]; !ok {
		return nil, apperr.Validation("unknown node: %s", startNodeID)
	}

	skipped, rerun := graph.ComputeDownstream(w, startNodeID)
	rerunSet := make(map[string]bool, len(rerun))
	for _, id := range rerun {
		rerunSet[id] = true
	}

	// a skipped node must have a completed parent output to carry over
	parentStates := parent.NodeStateMap()
	for _, id := range skipped {
		if parentStates[id].Status != models.NodeCompleted {
			return nil, apperr.ResumeNotAllowed(parent.ID,
				fmt.Sprintf("upstream node %s has no reusable output", id))
		}
	}

	states := make([]models.NodeState, len(w.Nodes))
	for i, n := range w.Nodes {
		if rerunSet[n.ID] {
			states[i] = models.NodeState{NodeID: n.ID, Status: models.NodePending}
		} else {
			carried := parentStates[n.ID]
			carried.RetryCount = 0
			states[i] = carried
		}
	}

	e := &models.Execution{
		ID:                uuid.NewString(),
		TenantID:          parent.TenantID,
		WorkflowID:        w.ID,
		WorkflowVersion:   parent.WorkflowVersion,
		Status:            models.ExecutionPending,
		TriggeredBy:       userID,
		CreatedAt:         time.Now().UTC(),
		NodeStates:        states,
		Inputs:            parent.Inputs,
		ParentExecutionID: parent.ID,
		ResumedFromNodeID: startNodeID,
	}

	if err := s.repo.Create(ctx, e); err != nil {
		s.log.Error("resumed execution create failed", "parent_id", parent.ID, "error", err)
		return nil, apperr.Internal()
	}

	s.log.Info("execution resumed",
		"execution_id", e.ID,
		"parent_id", parent.ID,
		"start_node", startNodeID,
		"reused", len(skipped),
		"rerun", len(rerun))
	return e, nil
}

// Get returns a tenant's execution by id
func (s *ExecutionService) Get(ctx context.Context, tenantID, id string) (*models.Execution, error) {
	e, err := s.repo.Get(ctx, tenantID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.ExecutionNotFound(id)
	}
	if err != nil {
		s.log.Error("execution get failed", "execution_id", id, "error", err)
		return nil, apperr.Internal()
	}
	return e, nil
}

// List returns a page of the tenant's executions, newest first,
// optionally filtered by workflow and status
func (s *ExecutionService) List(ctx context.Context, tenantID, workflowID, status, cursor string, limit int) (Page[*models.Execution], error) {
	all, err := s.repo.ListByTenant(ctx, tenantID, workflowID)
	if err != nil {
		s.log.Error("execution list failed", "tenant_id", tenantID, "error", err)
		return Page[*models.Execution]{}, apperr.Internal()
	}
	if status != "" {
		filtered := all[:0:0]
		for _, e := range all {
			if string(e.Status) == status {
				filtered = append(filtered, e)
			}
		}
		all = filtered
	}
	return paginate(all, func(e *models.Execution) string { return e.ID }, cursor, limit)
}

// UpdateStatus transitions the execution's aggregate status. StartedAt is
// stamped on the first transition to running, CompletedAt when the status
// turns terminal. A terminal status is never overwritten.
func (s *ExecutionService) UpdateStatus(ctx context.Context, tenantID, id string, status models.ExecutionStatus) (*models.Execution, error) {
	e, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return e, nil
	}
	if e.Status == status {
		return e, nil
	}

	now := time.Now().UTC()
	e.Status = status
	if status == models.ExecutionRunning && e.StartedAt == nil {
		e.StartedAt = &now
	}
	if status.Terminal() {
		e.CompletedAt = &now
	}

	if err := s.repo.Update(ctx, e); err != nil {
		s.log.Error("execution status update failed", "execution_id", id, "error", err)
		return nil, apperr.Internal()
	}
	return e, nil
}

// UpdateNodeState replaces one node's state within the execution
func (s *ExecutionService) UpdateNodeState(ctx context.Context, tenantID, id string, state models.NodeState) (*models.Execution, error) {
	e, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	updated := false
	for i := range e.NodeStates {
		if e.NodeStates[i].NodeID == state.NodeID {
			e.NodeStates[i] = state
			updated = true
			break
		}
	}
	if !updated {
		return nil, apperr.Validation("unknown node: %s", state.NodeID)
	}

	if err := s.repo.Update(ctx, e); err != nil {
		s.log.Error("node state update failed",
			"execution_id", id, "node_id", state.NodeID, "error", err)
		return nil, apperr.Internal()
	}
	return e, nil
}

// Cancel marks the execution cancelled and sweeps every non-terminal node
// to skipped. Already-terminal executions are returned unchanged.
func (s *ExecutionService) Cancel(ctx context.Context, tenantID, id string) (*models.Execution, error) {
	e, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return e, nil
	}

	now := time.Now().UTC()
	e.Status = models.ExecutionCancelled
	e.CompletedAt = &now
	for i := range e.NodeStates {
		switch e.NodeStates[i].Status {
		case models.NodePending, models.NodeQueued, models.NodeRunning:
			e.NodeStates[i].Status = models.NodeSkipped
			e.NodeStates[i].Error = "execution cancelled"
			e.NodeStates[i].CompletedAt = &now
		}
	}

	if err := s.repo.Update(ctx, e); err != nil {
		s.log.Error("execution cancel failed", "execution_id", id, "error", err)
		return nil, apperr.Internal()
	}

	s.log.Info("execution cancelled", "execution_id", id, "tenant_id", tenantID)
	return e, nil
}

// GetNodeOutput returns one completed node's output
func (s *ExecutionService) GetNodeOutput(ctx context.Context, tenantID, id, nodeID string) (any, error) {
	e, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	for _, state := range e.NodeStates {
		if state.NodeID == nodeID {
			if state.Status != models.NodeCompleted {
				return nil, apperr.Validation("node %s has not completed (status: %s)", nodeID, state.Status)
			}
			return state.Output, nil
		}
	}
	return nil, apperr.Validation("unknown node: %s", nodeID)
}

// ComputeAggregateStatus derives the execution status from node states:
// running while any node is still in flight or waiting, then failed if
// any node failed, otherwise completed.
func ComputeAggregateStatus(states []models.NodeState) models.ExecutionStatus {
	anyFailed := false
	for _, s := range states {
		switch s.Status {
		case models.NodePending, models.NodeQueued, models.NodeRunning:
			return models.ExecutionRunning
		case models.NodeFailed:
			anyFailed = true
		}
	}
	if anyFailed {
		return models.ExecutionFailed
	}
	return models.ExecutionCompleted
}
