package events

import (
	"sync"

	"github.com/agentforge/engine/common/logger"
)

// Handler receives emitted events. Handlers run synchronously on the
// emitting goroutine so per-execution event order is preserved; a handler
// that blocks stalls emission, so handlers should only hand off (e.g.
// enqueue onto a session's send channel).
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Emitter fans execution events out to global and per-execution
// subscribers. A panicking handler is recovered and logged so one bad
// subscriber cannot take down the dispatch path.
type Emitter struct {
	mu          sync.RWMutex
	nextID      int
	global      []subscription
	byExecution map[string][]subscription
	log         *logger.Logger
}

// NewEmitter creates an emitter with no subscribers
func NewEmitter(log *logger.Logger) *Emitter {
	return &Emitter{
		byExecution: make(map[string][]subscription),
		log:         log,
	}
}

// SubscribeAll registers a handler for every event. The returned function
// removes the subscription.
func (e *Emitter) SubscribeAll(h Handler) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.global = append(e.global, subscription{id: id, handler: h})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.global = removeSubscription(e.global, id)
	}
}

// Subscribe registers a handler for one execution's events. The returned
// function removes the subscription.
func (e *Emitter) Subscribe(executionID string, h Handler) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.byExecution[executionID] = append(e.byExecution[executionID], subscription{id: id, handler: h})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := removeSubscription(e.byExecution[executionID], id)
		if len(subs) == 0 {
			delete(e.byExecution, executionID)
		} else {
			e.byExecution[executionID] = subs
		}
	}
}

// Emit delivers an event to all matching subscribers in registration order
func (e *Emitter) Emit(event Event) {
	e.mu.RLock()
	handlers := make([]subscription, 0, len(e.global)+len(e.byExecution[event.ExecutionID]))
	handlers = append(handlers, e.global...)
	handlers = append(handlers, e.byExecution[event.ExecutionID]...)
	e.mu.RUnlock()

	for _, sub := range handlers {
		e.deliver(sub, event)
	}
}

func (e *Emitter) deliver(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("event handler panicked",
				"event", string(event.Type),
				"execution_id", event.ExecutionID,
				"panic", r)
		}
	}()
	sub.handler(event)
}

// ClearExecution drops all per-execution subscriptions for executionID.
// Called when an execution reaches a terminal state.
func (e *Emitter) ClearExecution(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byExecution, executionID)
}

// SubscriberCount reports how many handlers would see an event for
// executionID
func (e *Emitter) SubscriberCount(executionID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.global) + len(e.byExecution[executionID])
}

func removeSubscription(subs []subscription, id int) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
