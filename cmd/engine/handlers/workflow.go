package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/agentforge/engine/cmd/engine/middleware"
	"github.com/agentforge/engine/cmd/engine/service"
	"github.com/agentforge/engine/common/apperr"
	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/models"
)

// WorkflowHandler handles workflow CRUD and validation requests
type WorkflowHandler struct {
	workflows *service.WorkflowService
	log       *logger.Logger
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflows *service.WorkflowService, log *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, log: log}
}

// Create creates a new draft workflow
// POST /api/v1/workflows
func (h *WorkflowHandler) Create(c echo.Context) error {
	identity := middleware.GetIdentity(c)

	var in service.CreateWorkflowInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}

	w, err := h.workflows.Create(c.Request().Context(), identity.TenantID, identity.UserID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, w)
}

// Get returns one workflow
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c echo.Context) error {
	identity := middleware.GetIdentity(c)

	w, err := h.workflows.Get(c.Request().Context(), identity.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

// List returns a page of the tenant's workflows
// GET /api/v1/workflows?status=&cursor=&limit=
func (h *WorkflowHandler) List(c echo.Context) error {
	identity := middleware.GetIdentity(c)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	page, err := h.workflows.List(c.Request().Context(),
		identity.TenantID, c.QueryParam("status"), c.QueryParam("cursor"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Update replaces workflow fields with optimistic concurrency
// PUT /api/v1/workflows/:id
func (h *WorkflowHandler) Update(c echo.Context) error {
	identity := middleware.GetIdentity(c)

	var in service.UpdateWorkflowInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}

	w, err := h.workflows.Update(c.Request().Context(), identity.TenantID, c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

// Patch applies an RFC 6902 JSON patch to the workflow
// PATCH /api/v1/workflows/:id?expected_version=
func (h *WorkflowHandler) Patch(c echo.Context) error {
	identity := middleware.GetIdentity(c)

	expectedVersion, err := strconv.Atoi(c.QueryParam("expected_version"))
	if err != nil {
		return apperr.Validation("expected_version query parameter is required")
	}

	patch, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperr.Validation("cannot read request body: %v", err)
	}

	w, err := h.workflows.Patch(c.Request().Context(), identity.TenantID, c.Param("id"), expectedVersion, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

// Archive soft-deletes the workflow
// DELETE /api/v1/workflows/:id
func (h *WorkflowHandler) Archive(c echo.Context) error {
	identity := middleware.GetIdentity(c)

	w, err := h.workflows.Archive(c.Request().Context(), identity.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

type validateDefinitionRequest struct {
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

// ValidateDefinition validates an inline node/edge set without saving it
// POST /api/v1/workflows/validate
func (h *WorkflowHandler) ValidateDefinition(c echo.Context) error {
	var req validateDefinitionRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}

	result, err := h.workflows.ValidateDefinition(req.Nodes, req.Edges)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"valid":           result.Valid,
		"errors":          result.Errors,
		"execution_order": result.ExecutionOrder,
	})
}

// Validate runs graph validation and persists the outcome
// POST /api/v1/workflows/:id/validate
func (h *WorkflowHandler) Validate(c echo.Context) error {
	identity := middleware.GetIdentity(c)

	w, result, err := h.workflows.Validate(c.Request().Context(), identity.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"workflow_id":     w.ID,
		"status":          w.Status,
		"valid":           result.Valid,
		"errors":          result.Errors,
		"execution_order": result.ExecutionOrder,
	})
}
