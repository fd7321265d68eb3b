package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentforge/engine/common/db"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db *db.DB // nil for the memory backend
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(database *db.DB) *HealthHandler {
	return &HealthHandler{db: database}
}

// Health reports liveness
// GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready reports readiness, including the database when configured
// GET /ready
func (h *HealthHandler) Ready(c echo.Context) error {
	if h.db != nil {
		if err := h.db.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": "database unreachable",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
