package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/engine/common/models"
)

// Invoker executes an agent node and returns its raw output
type Invoker interface {
	Invoke(ctx context.Context, job *models.Job) (any, error)
}

// InvokeFunc adapts a function to the Invoker interface
type InvokeFunc func(ctx context.Context, job *models.Job) (any, error)

func (f InvokeFunc) Invoke(ctx context.Context, job *models.Job) (any, error) {
	return f(ctx, job)
}

// MockInvoker is a deterministic agent invoker used in development and
// tests. By default it echoes the job's inputs; per-node overrides allow
// scripting outputs and failures.
type MockInvoker struct {
	mu        sync.RWMutex
	overrides map[string]InvokeFunc // by node id
	latency   time.Duration
}

// NewMockInvoker creates a mock invoker with no overrides
func NewMockInvoker() *MockInvoker {
	return &MockInvoker{overrides: make(map[string]InvokeFunc)}
}

// WithLatency makes every invocation sleep for d first
func (m *MockInvoker) WithLatency(d time.Duration) *MockInvoker {
	m.latency = d
	return m
}

// Script installs a custom behavior for one node id
func (m *MockInvoker) Script(nodeID string, fn InvokeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[nodeID] = fn
}

func (m *MockInvoker) Invoke(ctx context.Context, job *models.Job) (any, error) {
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.RLock()
	fn, ok := m.overrides[job.NodeID]
	m.mu.RUnlock()
	if ok {
		return fn(ctx, job)
	}

	return map[string]any{
		"agent_id": job.AgentID,
		"node_id":  job.NodeID,
		"result":   fmt.Sprintf("output of %s", job.NodeID),
		"inputs":   job.Inputs,
	}, nil
}
