// Package handlers exposes the engine's HTTP and websocket endpoints.
package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentforge/engine/common/apperr"
	"github.com/agentforge/engine/common/logger"
)

// HTTPErrorHandler converts errors into the engine's structured error
// responses. Unknown errors are masked as INTERNAL_ERROR.
func HTTPErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		requestID := c.Response().Header().Get(echo.HeaderXRequestID)

		if appErr, ok := apperr.As(err); ok {
			if writeErr := c.JSON(appErr.Status, appErr.ToResponse(requestID)); writeErr != nil {
				log.Error("error response write failed", "error", writeErr)
			}
			return
		}

		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code := apperr.CodeValidationError
			if echoErr.Code == http.StatusNotFound {
				code = apperr.CodeWorkflowNotFound
			}
			appErr := apperr.New(code, echoErr.Code, "%v", echoErr.Message)
			if writeErr := c.JSON(appErr.Status, appErr.ToResponse(requestID)); writeErr != nil {
				log.Error("error response write failed", "error", writeErr)
			}
			return
		}

		log.Error("unhandled error", "path", c.Path(), "error", err)
		internal := apperr.Internal()
		if writeErr := c.JSON(internal.Status, internal.ToResponse(requestID)); writeErr != nil {
			log.Error("error response write failed", "error", writeErr)
		}
	}
}
