// Package repository defines the storage contracts for workflows and
// executions, with an in-memory backend for development and tests and a
// postgres backend for persistence.
package repository

import (
	"context"
	"errors"

	"github.com/agentforge/engine/common/models"
)

// ErrNotFound is returned when no record matches the lookup. Callers map
// it to the appropriate domain error; the repository never distinguishes
// "missing" from "belongs to another tenant".
var ErrNotFound = errors.New("record not found")

// WorkflowRepository stores workflow definitions
type WorkflowRepository interface {
	Create(ctx context.Context, w *models.Workflow) error
	// Get returns the workflow only when it belongs to tenantID
	Get(ctx context.Context, tenantID, id string) (*models.Workflow, error)
	Update(ctx context.Context, w *models.Workflow) error
	// ListByTenant returns all workflows of a tenant, newest first
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error)
}

// ExecutionRepository stores execution records
type ExecutionRepository interface {
	Create(ctx context.Context, e *models.Execution) error
	// Get returns the execution only when it belongs to tenantID
	Get(ctx context.Context, tenantID, id string) (*models.Execution, error)
	Update(ctx context.Context, e *models.Execution) error
	// ListByTenant returns a tenant's executions, newest first,
	// optionally filtered to one workflow
	ListByTenant(ctx context.Context, tenantID, workflowID string) ([]*models.Execution, error)
}
