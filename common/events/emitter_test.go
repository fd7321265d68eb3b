package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/engine/common/logger"
)

func TestEmitter_SubscribeAndReceive(t *testing.T) {
	e := NewEmitter(logger.NewNop())

	var received []Event
	unsubscribe := e.Subscribe("exec-1", func(ev Event) {
		received = append(received, ev)
	})

	e.Emit(New(NodeQueued, "exec-1", NodePayload{NodeID: "a"}))
	e.Emit(New(NodeRunning, "exec-1", NodePayload{NodeID: "a"}))
	// different execution is not delivered
	e.Emit(New(NodeQueued, "exec-2", NodePayload{NodeID: "x"}))

	require.Len(t, received, 2)
	assert.Equal(t, NodeQueued, received[0].Type)
	assert.Equal(t, NodeRunning, received[1].Type)

	unsubscribe()
	e.Emit(New(NodeCompleted, "exec-1", nil))
	assert.Len(t, received, 2)
}

func TestEmitter_SubscribeAll(t *testing.T) {
	e := NewEmitter(logger.NewNop())

	var count int
	unsubscribe := e.SubscribeAll(func(Event) { count++ })
	defer unsubscribe()

	e.Emit(New(ExecutionStarted, "exec-1", nil))
	e.Emit(New(ExecutionStarted, "exec-2", nil))

	assert.Equal(t, 2, count)
}

func TestEmitter_OrderPreserved(t *testing.T) {
	e := NewEmitter(logger.NewNop())

	var order []Type
	e.Subscribe("exec-1", func(ev Event) { order = append(order, ev.Type) })

	sequence := []Type{ExecutionStarted, NodeQueued, NodeRunning, NodeCompleted, ExecutionCompleted}
	for _, eventType := range sequence {
		e.Emit(New(eventType, "exec-1", nil))
	}

	assert.Equal(t, sequence, order)
}

func TestEmitter_PanickingHandlerIsolated(t *testing.T) {
	e := NewEmitter(logger.NewNop())

	var received int
	e.Subscribe("exec-1", func(Event) { panic("bad subscriber") })
	e.Subscribe("exec-1", func(Event) { received++ })

	e.Emit(New(NodeQueued, "exec-1", nil))

	assert.Equal(t, 1, received)
}

func TestEmitter_ClearExecution(t *testing.T) {
	e := NewEmitter(logger.NewNop())

	var received int
	e.Subscribe("exec-1", func(Event) { received++ })
	require.Equal(t, 1, e.SubscriberCount("exec-1"))

	e.ClearExecution("exec-1")
	assert.Zero(t, e.SubscriberCount("exec-1"))

	e.Emit(New(NodeQueued, "exec-1", nil))
	assert.Zero(t, received)
}
