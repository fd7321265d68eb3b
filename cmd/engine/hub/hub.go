// Package hub fans execution events out to websocket clients. Sessions
// subscribe to execution ids; subscriptions are tenant-gated so a client
// can only stream executions belonging to its own tenant.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/agentforge/engine/common/events"
	"github.com/agentforge/engine/common/logger"
)

// Sink delivers serialized frames to one connected client. Send must not
// block; it reports false when the client cannot keep up or is gone.
type Sink interface {
	Send(frame []byte) bool
	Close()
}

// ClientMessage is an inbound control frame from a client
type ClientMessage struct {
	Action      string `json:"action"` // "subscribe" or "unsubscribe"
	ExecutionID string `json:"executionId"`
}

// ControlReply is an outbound control frame (CONNECTED, ACK or ERROR).
// The discriminator shares the "event" key with streamed events.
type ControlReply struct {
	Type         string `json:"event"`
	Action       string `json:"action,omitempty"`
	ExecutionID  string `json:"executionId,omitempty"`
	Message      string `json:"message,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`
	UserID       string `json:"userId,omitempty"`
	TenantID     string `json:"tenantId,omitempty"`
	Role         string `json:"role,omitempty"`
}

// Session is one connected client with its caller identity and the set
// of executions it streams
type Session struct {
	ID       string
	TenantID string
	UserID   string
	Role     string
	sink     Sink

	mu            sync.Mutex
	subscriptions map[string]bool
}

// Hub routes emitted events to subscribed sessions
type Hub struct {
	mu              sync.RWMutex
	sessions        map[string]*Session
	byExecution     map[string]map[string]*Session // execution id -> session id -> session
	executionTenant map[string]string              // execution id -> owning tenant

	log *logger.Logger
}

// New creates a hub and attaches it to the emitter's global stream
func New(emitter *events.Emitter, log *logger.Logger) *Hub {
	h := &Hub{
		sessions:        make(map[string]*Session),
		byExecution:     make(map[string]map[string]*Session),
		executionTenant: make(map[string]string),
		log:             log,
	}
	emitter.SubscribeAll(h.onEvent)
	return h
}

// RegisterExecutionTenant records which tenant owns an execution so later
// subscriptions can be gated. Called when an execution is created.
func (h *Hub) RegisterExecutionTenant(executionID, tenantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executionTenant[executionID] = tenantID
}

// Connect registers a new client session and confirms it with a
// CONNECTED frame carrying the caller's identity
func (h *Hub) Connect(sessionID, tenantID, userID, role string, sink Sink) *Session {
	session := &Session{
		ID:            sessionID,
		TenantID:      tenantID,
		UserID:        userID,
		Role:          role,
		sink:          sink,
		subscriptions: make(map[string]bool),
	}

	h.mu.Lock()
	h.sessions[sessionID] = session
	h.mu.Unlock()

	h.reply(session, ControlReply{
		Type:         "CONNECTED",
		ConnectionID: sessionID,
		UserID:       userID,
		TenantID:     tenantID,
		Role:         role,
	})
	h.log.Debug("client connected", "session_id", sessionID, "tenant_id", tenantID)
	return session
}

// Disconnect removes a session and all its subscriptions
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	session, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
		for executionID := range session.subscriptions {
			if subs, exists := h.byExecution[executionID]; exists {
				delete(subs, sessionID)
				if len(subs) == 0 {
					delete(h.byExecution, executionID)
				}
			}
		}
	}
	h.mu.Unlock()

	if ok {
		session.sink.Close()
		h.log.Debug("client disconnected", "session_id", sessionID)
	}
}

// HandleMessage processes one inbound control frame and replies on the
// session's sink
func (h *Hub) HandleMessage(session *Session, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(session, ControlReply{Type: "ERROR", Message: "malformed message"})
		return
	}

	switch msg.Action {
	case "subscribe":
		h.subscribe(session, msg.ExecutionID)
	case "unsubscribe":
		h.unsubscribe(session, msg.ExecutionID)
		h.reply(session, ControlReply{Type: "ACK", Action: "unsubscribe", ExecutionID: msg.ExecutionID})
	default:
		h.reply(session, ControlReply{Type: "ERROR", Message: "unknown action: " + msg.Action})
	}
}

// subscribe gates on tenant ownership before wiring the session to an
// execution's stream. Unknown executions are denied the same way as
// foreign ones.
func (h *Hub) subscribe(session *Session, executionID string) {
	h.mu.Lock()
	owner, known := h.executionTenant[executionID]
	if !known || owner != session.TenantID {
		h.mu.Unlock()
		h.reply(session, ControlReply{Type: "ERROR", ExecutionID: executionID, Message: "access denied"})
		return
	}

	if h.byExecution[executionID] == nil {
		h.byExecution[executionID] = make(map[string]*Session)
	}
	h.byExecution[executionID][session.ID] = session
	h.mu.Unlock()

	session.mu.Lock()
	session.subscriptions[executionID] = true
	session.mu.Unlock()

	h.reply(session, ControlReply{Type: "ACK", Action: "subscribe", ExecutionID: executionID})
}

func (h *Hub) unsubscribe(session *Session, executionID string) {
	h.mu.Lock()
	if subs, ok := h.byExecution[executionID]; ok {
		delete(subs, session.ID)
		if len(subs) == 0 {
			delete(h.byExecution, executionID)
		}
	}
	h.mu.Unlock()

	session.mu.Lock()
	delete(session.subscriptions, executionID)
	session.mu.Unlock()
}

// onEvent relays an emitted event to every subscribed session. A session
// whose sink rejects the frame is disconnected.
func (h *Hub) onEvent(ev events.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("event marshal failed", "event", string(ev.Type), "error", err)
		return
	}

	h.mu.RLock()
	var stale []string
	for _, session := range h.byExecution[ev.ExecutionID] {
		if !session.sink.Send(frame) {
			stale = append(stale, session.ID)
		}
	}
	h.mu.RUnlock()

	for _, sessionID := range stale {
		h.log.Warn("client cannot keep up, disconnecting", "session_id", sessionID)
		h.Disconnect(sessionID)
	}
}

func (h *Hub) reply(session *Session, reply ControlReply) {
	frame, err := json.Marshal(reply)
	if err != nil {
		return
	}
	if !session.sink.Send(frame) {
		h.Disconnect(session.ID)
	}
}

// SessionCount reports connected sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
