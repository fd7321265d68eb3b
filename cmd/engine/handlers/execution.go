package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/agentforge/engine/cmd/engine/hub"
	"github.com/agentforge/engine/cmd/engine/middleware"
	"github.com/agentforge/engine/cmd/engine/orchestrator"
	"github.com/agentforge/engine/cmd/engine/service"
	"github.com/agentforge/engine/common/apperr"
	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/models"
)

// ExecutionHandler handles execution lifecycle requests
type ExecutionHandler struct {
	workflows  *service.WorkflowService
	executions *service.ExecutionService
	orch       *orchestrator.Orchestrator
	hub        *hub.Hub
	log        *logger.Logger
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(
	workflows *service.WorkflowService,
	executions *service.ExecutionService,
	orch *orchestrator.Orchestrator,
	h *hub.Hub,
	log *logger.Logger,
) *ExecutionHandler {
	return &ExecutionHandler{
		workflows:  workflows,
		executions: executions,
		orch:       orch,
		hub:        h,
		log:        log,
	}
}

type startExecutionRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// Start creates and starts an execution of a valid workflow
// POST /api/v1/workflows/:id/executions
func (h *ExecutionHandler) Start(c echo.Context) error {
	identity := middleware.GetIdentity(c)
	ctx := c.Request().Context()

	var req startExecutionRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}

	w, err := h.workflows.Get(ctx, identity.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	switch w.Status {
	case models.WorkflowArchived:
		return apperr.WorkflowArchived(w.ID)
	case models.WorkflowValid:
	default:
		return apperr.WorkflowInvalid([]apperr.Detail{{
			Message: "workflow must be validated before execution",
		}})
	}

	e, err := h.executions.Create(ctx, w, identity.TenantID, identity.UserID, req.Inputs)
	if err != nil {
		return err
	}
	h.hub.RegisterExecutionTenant(e.ID, e.TenantID)

	if err := h.orch.StartExecution(ctx, w, e); err != nil {
		return err
	}

	started, err := h.executions.Get(ctx, identity.TenantID, e.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, started)
}

// Get returns one execution with its node states
// GET /api/v1/executions/:id
func (h *ExecutionHandler) Get(c echo.Context) error {
	identity := middleware.GetIdentity(c)

	e, err := h.executions.Get(c.Request().Context(), identity.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

// List returns a page of the tenant's executions
// GET /api/v1/executions?workflow_id=&status=&cursor=&limit=
func (h *ExecutionHandler) List(c echo.Context) error {
	identity := middleware.GetIdentity(c)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	page, err := h.executions.List(c.Request().Context(),
		identity.TenantID, c.QueryParam("workflow_id"), c.QueryParam("status"),
		c.QueryParam("cursor"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Cancel stops a running execution
// POST /api/v1/executions/:id/cancel
func (h *ExecutionHandler) Cancel(c echo.Context) error {
	identity := middleware.GetIdentity(c)

	e, err := h.orch.CancelExecution(c.Request().Context(),
		identity.TenantID, c.Param("id"), identity.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

type resumeRequest struct {
	StartNodeID string `json:"start_node_id"`
}

// Resume creates a child execution that reruns from a chosen node
// POST /api/v1/executions/:id/resume
func (h *ExecutionHandler) Resume(c echo.Context) error {
	identity := middleware.GetIdentity(c)
	ctx := c.Request().Context()

	var req resumeRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	if req.StartNodeID == "" {
		return apperr.Validation("start_node_id is required")
	}

	parent, err := h.executions.Get(ctx, identity.TenantID, c.Param("id"))
	if err != nil {
		return err
	}

	w, err := h.workflows.Get(ctx, identity.TenantID, parent.WorkflowID)
	if err != nil {
		return err
	}
	if w.Version != parent.WorkflowVersion {
		return apperr.VersionConflict(parent.WorkflowVersion, w.Version)
	}

	resumed, err := h.executions.CreateResumed(ctx, w, parent, req.StartNodeID, identity.UserID)
	if err != nil {
		return err
	}
	h.hub.RegisterExecutionTenant(resumed.ID, resumed.TenantID)

	if err := h.orch.StartExecution(ctx, w, resumed); err != nil {
		return err
	}

	started, err := h.executions.Get(ctx, identity.TenantID, resumed.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, started)
}

// NodeOutput returns one completed node's output
// GET /api/v1/executions/:id/nodes/:nodeId/output
func (h *ExecutionHandler) NodeOutput(c echo.Context) error {
	identity := middleware.GetIdentity(c)

	output, err := h.executions.GetNodeOutput(c.Request().Context(),
		identity.TenantID, c.Param("id"), c.Param("nodeId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"execution_id": c.Param("id"),
		"node_id":      c.Param("nodeId"),
		"output":       output,
	})
}
