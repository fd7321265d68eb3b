package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentforge/engine/common/db"
	"github.com/agentforge/engine/common/models"
)

var workflowSchema = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		doc        JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_tenant
		ON workflows (tenant_id, created_at DESC)`,
}

var executionSchema = []string{
	`CREATE TABLE IF NOT EXISTS executions (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		workflow_id TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		doc         JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_tenant
		ON executions (tenant_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_workflow
		ON executions (tenant_id, workflow_id, created_at DESC)`,
}

// PostgresWorkflowRepository stores workflows as JSONB documents
type PostgresWorkflowRepository struct {
	db *db.DB
}

// NewPostgresWorkflowRepository creates the repository and ensures its table
func NewPostgresWorkflowRepository(ctx context.Context, database *db.DB) (*PostgresWorkflowRepository, error) {
	for _, stmt := range workflowSchema {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init workflows table: %w", err)
		}
	}
	return &PostgresWorkflowRepository{db: database}, nil
}

func (r *PostgresWorkflowRepository) Create(ctx context.Context, w *models.Workflow) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}

	query := `INSERT INTO workflows (id, tenant_id, created_at, doc) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, query, w.ID, w.TenantID, w.CreatedAt, doc); err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

func (r *PostgresWorkflowRepository) Get(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	query := `SELECT doc FROM workflows WHERE id = $1 AND tenant_id = $2`

	var doc []byte
	err := r.db.QueryRow(ctx, query, id, tenantID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	var w models.Workflow
	if err := json.Unmarshal(doc, &w); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}
	return &w, nil
}

func (r *PostgresWorkflowRepository) Update(ctx context.Context, w *models.Workflow) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}

	query := `UPDATE workflows SET doc = $1 WHERE id = $2 AND tenant_id = $3`
	tag, err := r.db.Exec(ctx, query, doc, w.ID, w.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresWorkflowRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	query := `SELECT doc FROM workflows WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var result []*models.Workflow
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		var w models.Workflow
		if err := json.Unmarshal(doc, &w); err != nil {
			return nil, fmt.Errorf("unmarshal workflow: %w", err)
		}
		result = append(result, &w)
	}
	return result, rows.Err()
}

// PostgresExecutionRepository stores executions as JSONB documents
type PostgresExecutionRepository struct {
	db *db.DB
}

// NewPostgresExecutionRepository creates the repository and ensures its table
func NewPostgresExecutionRepository(ctx context.Context, database *db.DB) (*PostgresExecutionRepository, error) {
	for _, stmt := range executionSchema {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init executions table: %w", err)
		}
	}
	return &PostgresExecutionRepository{db: database}, nil
}

func (r *PostgresExecutionRepository) Create(ctx context.Context, e *models.Execution) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}

	query := `INSERT INTO executions (id, tenant_id, workflow_id, created_at, doc) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.Exec(ctx, query, e.ID, e.TenantID, e.WorkflowID, e.CreatedAt, doc); err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

func (r *PostgresExecutionRepository) Get(ctx context.Context, tenantID, id string) (*models.Execution, error) {
	query := `SELECT doc FROM executions WHERE id = $1 AND tenant_id = $2`

	var doc []byte
	err := r.db.QueryRow(ctx, query, id, tenantID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	var e models.Execution
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return &e, nil
}

func (r *PostgresExecutionRepository) Update(ctx context.Context, e *models.Execution) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}

	query := `UPDATE executions SET doc = $1 WHERE id = $2 AND tenant_id = $3`
	tag, err := r.db.Exec(ctx, query, doc, e.ID, e.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresExecutionRepository) ListByTenant(ctx context.Context, tenantID, workflowID string) ([]*models.Execution, error) {
	query := `SELECT doc FROM executions WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{tenantID}
	if workflowID != "" {
		query = `SELECT doc FROM executions WHERE tenant_id = $1 AND workflow_id = $2 ORDER BY created_at DESC, id DESC`
		args = append(args, workflowID)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var result []*models.Execution
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		var e models.Execution
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("unmarshal execution: %w", err)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
