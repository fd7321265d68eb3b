// Package routes binds the engine's HTTP surface to its handlers.
package routes

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/agentforge/engine/cmd/engine/container"
	"github.com/agentforge/engine/cmd/engine/handlers"
	"github.com/agentforge/engine/cmd/engine/middleware"
)

// Register wires all routes onto the echo instance
func Register(e *echo.Echo, c *container.Container) {
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.HTTPErrorHandler = handlers.HTTPErrorHandler(c.Log)

	// probes are unauthenticated
	e.GET("/health", c.HealthHandler.Health)
	e.GET("/ready", c.HealthHandler.Ready)

	api := e.Group("/api/v1", middleware.Auth(c.Config.Auth.JWTSecret))

	workflows := api.Group("/workflows")
	{
		workflows.POST("", c.WorkflowHandler.Create, middleware.RequireRole(middleware.RoleMember))
		workflows.POST("/validate", c.WorkflowHandler.ValidateDefinition)
		workflows.GET("", c.WorkflowHandler.List)
		workflows.GET("/:id", c.WorkflowHandler.Get)
		workflows.PUT("/:id", c.WorkflowHandler.Update, middleware.RequireRole(middleware.RoleMember))
		workflows.PATCH("/:id", c.WorkflowHandler.Patch, middleware.RequireRole(middleware.RoleMember))
		workflows.DELETE("/:id", c.WorkflowHandler.Archive, middleware.RequireRole(middleware.RoleAdmin))
		workflows.POST("/:id/validate", c.WorkflowHandler.Validate, middleware.RequireRole(middleware.RoleMember))
		workflows.POST("/:id/executions", c.ExecutionHandler.Start, middleware.RequireRole(middleware.RoleMember))
	}

	executions := api.Group("/executions")
	{
		executions.GET("", c.ExecutionHandler.List)
		executions.GET("/:id", c.ExecutionHandler.Get)
		executions.POST("/:id/cancel", c.ExecutionHandler.Cancel, middleware.RequireRole(middleware.RoleMember))
		executions.POST("/:id/resume", c.ExecutionHandler.Resume, middleware.RequireRole(middleware.RoleMember))
		executions.GET("/:id/nodes/:nodeId/output", c.ExecutionHandler.NodeOutput)
	}

	api.GET("/stream", c.StreamHandler.Stream)
}
