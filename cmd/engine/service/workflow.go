// Package service holds the domain logic between the HTTP handlers and
// the repositories: workflow lifecycle, execution records, pagination and
// aggregate status rules.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/agentforge/engine/cmd/engine/repository"
	"github.com/agentforge/engine/common/apperr"
	"github.com/agentforge/engine/common/graph"
	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/models"
)

// WorkflowService manages workflow definitions and their validation state
type WorkflowService struct {
	repo     repository.WorkflowRepository
	registry graph.AgentRegistry // nil skips semantic validation
	log      *logger.Logger
}

// NewWorkflowService creates the workflow service
func NewWorkflowService(repo repository.WorkflowRepository, registry graph.AgentRegistry, log *logger.Logger) *WorkflowService {
	return &WorkflowService{repo: repo, registry: registry, log: log}
}

// CreateWorkflowInput is the payload for Create
type CreateWorkflowInput struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Nodes       []models.Node `json:"nodes"`
	Edges       []models.Edge `json:"edges"`
}

// Create stores a new workflow at version 1, validated on the way in
func (s *WorkflowService) Create(ctx context.Context, tenantID, userID string, in CreateWorkflowInput) (*models.Workflow, error) {
	if in.Name == "" {
		return nil, apperr.Validation("workflow name is required")
	}
	if err := checkUniqueIDs(in.Nodes, in.Edges); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	w := &models.Workflow{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        in.Name,
		Description: in.Description,
		Version:     1,
		Nodes:       in.Nodes,
		Edges:       in.Edges,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.revalidate(w)

	if err := s.repo.Create(ctx, w); err != nil {
		s.log.Error("workflow create failed", "error", err)
		return nil, apperr.Internal()
	}

	s.log.Info("workflow created",
		"workflow_id", w.ID, "tenant_id", tenantID, "status", string(w.Status))
	return w, nil
}

// Get returns a tenant's workflow by id
func (s *WorkflowService) Get(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	w, err := s.repo.Get(ctx, tenantID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.WorkflowNotFound(id)
	}
	if err != nil {
		s.log.Error("workflow get failed", "workflow_id", id, "error", err)
		return nil, apperr.Internal()
	}
	return w, nil
}

// List returns a page of the tenant's workflows, newest first,
// optionally filtered by status
func (s *WorkflowService) List(ctx context.Context, tenantID, status, cursor string, limit int) (Page[*models.Workflow], error) {
	all, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		s.log.Error("workflow list failed", "tenant_id", tenantID, "error", err)
		return Page[*models.Workflow]{}, apperr.Internal()
	}
	if status != "" {
		filtered := all[:0:0]
		for _, w := range all {
			if string(w.Status) == status {
				filtered = append(filtered, w)
			}
		}
		all = filtered
	}
	return paginate(all, func(w *models.Workflow) string { return w.ID }, cursor, limit)
}

// UpdateWorkflowInput is the payload for Update. ExpectedVersion carries
// the optimistic-concurrency check; nil fields are left unchanged.
type UpdateWorkflowInput struct {
	ExpectedVersion int            `json:"expected_version"`
	Name            *string        `json:"name"`
	Description     *string        `json:"description"`
	Nodes           *[]models.Node `json:"nodes"`
	Edges           *[]models.Edge `json:"edges"`
}

// Update replaces workflow fields, bumps the version and revalidates
// the resulting graph
func (s *WorkflowService) Update(ctx context.Context, tenantID, id string, in UpdateWorkflowInput) (*models.Workflow, error) {
	w, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if w.Status == models.WorkflowArchived {
		return nil, apperr.WorkflowArchived(id)
	}
	if in.ExpectedVersion != w.Version {
		return nil, apperr.VersionConflict(in.ExpectedVersion, w.Version)
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, apperr.Validation("workflow name cannot be empty")
		}
		w.Name = *in.Name
	}
	if in.Description != nil {
		w.Description = *in.Description
	}
	if in.Nodes != nil {
		w.Nodes = *in.Nodes
	}
	if in.Edges != nil {
		w.Edges = *in.Edges
	}
	if err := checkUniqueIDs(w.Nodes, w.Edges); err != nil {
		return nil, err
	}

	w.Version++
	s.revalidate(w)
	w.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, w); err != nil {
		s.log.Error("workflow update failed", "workflow_id", id, "error", err)
		return nil, apperr.Internal()
	}
	return w, nil
}

// patchable is the subset of workflow fields a JSON patch may touch
type patchable struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Nodes       []models.Node `json:"nodes"`
	Edges       []models.Edge `json:"edges"`
}

// Patch applies an RFC 6902 patch to the mutable workflow fields, with
// the same version bump and revalidation as Update
func (s *WorkflowService) Patch(ctx context.Context, tenantID, id string, expectedVersion int, patch []byte) (*models.Workflow, error) {
	w, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if w.Status == models.WorkflowArchived {
		return nil, apperr.WorkflowArchived(id)
	}
	if expectedVersion != w.Version {
		return nil, apperr.VersionConflict(expectedVersion, w.Version)
	}

	doc, err := json.Marshal(patchable{
		Name:        w.Name,
		Description: w.Description,
		Nodes:       w.Nodes,
		Edges:       w.Edges,
	})
	if err != nil {
		s.log.Error("workflow marshal failed", "workflow_id", id, "error", err)
		return nil, apperr.Internal()
	}

	decoded, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, apperr.Validation("invalid JSON patch: %v", err)
	}
	patched, err := decoded.Apply(doc)
	if err != nil {
		return nil, apperr.Validation("patch does not apply: %v", err)
	}

	var next patchable
	if err := json.Unmarshal(patched, &next); err != nil {
		return nil, apperr.Validation("patched workflow is malformed: %v", err)
	}
	if next.Name == "" {
		return nil, apperr.Validation("workflow name cannot be empty")
	}
	if err := checkUniqueIDs(next.Nodes, next.Edges); err != nil {
		return nil, err
	}

	w.Name = next.Name
	w.Description = next.Description
	w.Nodes = next.Nodes
	w.Edges = next.Edges
	w.Version++
	s.revalidate(w)
	w.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, w); err != nil {
		s.log.Error("workflow patch failed", "workflow_id", id, "error", err)
		return nil, apperr.Internal()
	}
	return w, nil
}

// Archive soft-deletes a workflow. Archived workflows stay readable but
// reject mutation and execution. Archiving twice is a no-op.
func (s *WorkflowService) Archive(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	w, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if w.Status == models.WorkflowArchived {
		return w, nil
	}

	w.Status = models.WorkflowArchived
	w.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, w); err != nil {
		s.log.Error("workflow archive failed", "workflow_id", id, "error", err)
		return nil, apperr.Internal()
	}
	return w, nil
}

// Validate runs graph validation and persists the resulting status
// (valid or invalid). Archived workflows cannot be validated.
func (s *WorkflowService) Validate(ctx context.Context, tenantID, id string) (*models.Workflow, graph.Result, error) {
	w, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, graph.Result{}, err
	}
	if w.Status == models.WorkflowArchived {
		return nil, graph.Result{}, apperr.WorkflowArchived(id)
	}

	result := s.revalidate(w)
	w.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, w); err != nil {
		s.log.Error("workflow validation persist failed", "workflow_id", id, "error", err)
		return nil, graph.Result{}, apperr.Internal()
	}

	s.log.Info("workflow validated",
		"workflow_id", id,
		"valid", result.Valid,
		"error_count", len(result.Errors))
	return w, result, nil
}

// revalidate recomputes the stored validation status from the current
// definition
func (s *WorkflowService) revalidate(w *models.Workflow) graph.Result {
	result := graph.ValidateWorkflow(w, s.registry)
	if result.Valid {
		w.Status = models.WorkflowValid
	} else {
		w.Status = models.WorkflowInvalid
	}
	return result
}

// ValidateDefinition validates an unsaved node/edge set without touching
// any stored workflow
func (s *WorkflowService) ValidateDefinition(nodes []models.Node, edges []models.Edge) (graph.Result, error) {
	if err := checkUniqueIDs(nodes, edges); err != nil {
		return graph.Result{}, err
	}
	w := &models.Workflow{Nodes: nodes, Edges: edges}
	return graph.ValidateWorkflow(w, s.registry), nil
}

func checkUniqueIDs(nodes []models.Node, edges []models.Edge) error {
	nodeIDs := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return apperr.Validation("node id cannot be empty")
		}
		if nodeIDs[n.ID] {
			return apperr.Validation("duplicate node id: %s", n.ID)
		}
		nodeIDs[n.ID] = true
	}

	edgeIDs := make(map[string]bool, len(edges))
	for _, e := range edges {
		if e.ID == "" {
			return apperr.Validation("edge id cannot be empty")
		}
		if edgeIDs[e.ID] {
			return apperr.Validation("duplicate edge id: %s", e.ID)
		}
		edgeIDs[e.ID] = true
	}
	return nil
}

// ValidationDetails converts graph errors to API error details
func ValidationDetails(errs []graph.ValidationError) []apperr.Detail {
	details := make([]apperr.Detail, 0, len(errs))
	for _, e := range errs {
		metadata := map[string]any{"code": string(e.Code)}
		if len(e.NodeIDs) > 0 {
			metadata["node_ids"] = e.NodeIDs
		}
		if len(e.EdgeIDs) > 0 {
			metadata["edge_ids"] = e.EdgeIDs
		}
		details = append(details, apperr.Detail{
			Message:  e.Message,
			Metadata: metadata,
		})
	}
	return details
}
