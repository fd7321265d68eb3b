package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentforge/engine/common/models"
)

// MemoryWorkflowRepository is the in-process workflow store
type MemoryWorkflowRepository struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
}

// NewMemoryWorkflowRepository creates an empty workflow store
func NewMemoryWorkflowRepository() *MemoryWorkflowRepository {
	return &MemoryWorkflowRepository{workflows: make(map[string]*models.Workflow)}
}

func (r *MemoryWorkflowRepository) Create(ctx context.Context, w *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[w.ID]; exists {
		return fmt.Errorf("workflow already exists: %s", w.ID)
	}
	r.workflows[w.ID] = w.Clone()
	return nil
}

func (r *MemoryWorkflowRepository) Get(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.workflows[id]
	if !exists || w.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return w.Clone(), nil
}

func (r *MemoryWorkflowRepository) Update(ctx context.Context, w *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.workflows[w.ID]
	if !exists || existing.TenantID != w.TenantID {
		return ErrNotFound
	}
	r.workflows[w.ID] = w.Clone()
	return nil
}

func (r *MemoryWorkflowRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Workflow
	for _, w := range r.workflows {
		if w.TenantID == tenantID {
			result = append(result, w.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// MemoryExecutionRepository is the in-process execution store
type MemoryExecutionRepository struct {
	mu         sync.RWMutex
	executions map[string]*models.Execution
}

// NewMemoryExecutionRepository creates an empty execution store
func NewMemoryExecutionRepository() *MemoryExecutionRepository {
	return &MemoryExecutionRepository{executions: make(map[string]*models.Execution)}
}

func (r *MemoryExecutionRepository) Create(ctx context.Context, e *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executions[e.ID]; exists {
		return fmt.Errorf("execution already exists: %s", e.ID)
	}
	r.executions[e.ID] = e.Clone()
	return nil
}

func (r *MemoryExecutionRepository) Get(ctx context.Context, tenantID, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.executions[id]
	if !exists || e.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (r *MemoryExecutionRepository) Update(ctx context.Context, e *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.executions[e.ID]
	if !exists || existing.TenantID != e.TenantID {
		return ErrNotFound
	}
	r.executions[e.ID] = e.Clone()
	return nil
}

func (r *MemoryExecutionRepository) ListByTenant(ctx context.Context, tenantID, workflowID string) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Execution
	for _, e := range r.executions {
		if e.TenantID != tenantID {
			continue
		}
		if workflowID != "" && e.WorkflowID != workflowID {
			continue
		}
		result = append(result, e.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}
