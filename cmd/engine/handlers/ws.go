package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/agentforge/engine/cmd/engine/hub"
	"github.com/agentforge/engine/cmd/engine/middleware"
	"github.com/agentforge/engine/common/apperr"
	"github.com/agentforge/engine/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced at the gateway
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler upgrades clients to the event stream websocket
type StreamHandler struct {
	hub *hub.Hub
	log *logger.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(h *hub.Hub, log *logger.Logger) *StreamHandler {
	return &StreamHandler{hub: h, log: log}
}

// Stream upgrades the connection and serves the session until disconnect
// GET /api/v1/stream
func (h *StreamHandler) Stream(c echo.Context) error {
	identity := middleware.GetIdentity(c)
	if identity == nil {
		return apperr.Unauthorized("not authenticated")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return apperr.Validation("websocket upgrade failed: %v", err)
	}

	sink := hub.NewWSSink(conn)
	session := h.hub.Connect(uuid.NewString(), identity.TenantID, identity.UserID, string(identity.Role), sink)

	hub.ServeSession(h.hub, session, sink, h.log)
	return nil
}
