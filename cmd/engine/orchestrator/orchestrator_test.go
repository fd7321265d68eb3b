package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/engine/cmd/engine/repository"
	"github.com/agentforge/engine/cmd/engine/service"
	"github.com/agentforge/engine/common/cache"
	"github.com/agentforge/engine/common/config"
	"github.com/agentforge/engine/common/events"
	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/models"
	"github.com/agentforge/engine/common/queue"
	"github.com/agentforge/engine/common/runtime"
)

// harness wires a full engine out of in-memory parts
type harness struct {
	t        *testing.T
	execSvc  *service.ExecutionService
	orch     *Orchestrator
	queue    *queue.JobQueue
	emitter  *events.Emitter
	invoker  *runtime.MockInvoker
	cache    *cache.MemoryCache
	recorded *eventRecorder
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
	waiters map[string]chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{waiters: make(map[string]chan struct{})}
}

func (r *eventRecorder) record(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)

	switch ev.Type {
	case events.ExecutionCompleted, events.ExecutionFailed, events.ExecutionCancelled:
		if ch, ok := r.waiters[ev.ExecutionID]; ok {
			close(ch)
			delete(r.waiters, ev.ExecutionID)
		}
	}
}

func (r *eventRecorder) terminalSignal(executionID string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{})
	r.waiters[executionID] = ch
	return ch
}

func (r *eventRecorder) forExecution(executionID string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.ExecutionID == executionID {
			out = append(out, ev)
		}
	}
	return out
}

func types(evs []events.Event) []events.Type {
	out := make([]events.Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func countType(evs []events.Event, t events.Type) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := logger.NewNop()
	emitter := events.NewEmitter(log)
	recorder := newEventRecorder()
	emitter.SubscribeAll(recorder.record)

	resultCache := cache.NewMemoryCache(log)
	invoker := runtime.NewMockInvoker()
	rt := runtime.New(resultCache, invoker, emitter, log)

	q := queue.New(rt.Execute, log)
	execSvc := service.NewExecutionService(repository.NewMemoryExecutionRepository(), log)

	cfg := config.QueueConfig{MaxRetries: 3, RetryBackoffMS: 1}
	orch := New(q, execSvc, emitter, cfg, log)

	q.StartWorker(context.Background())
	t.Cleanup(q.StopWorker)

	return &harness{
		t:        t,
		execSvc:  execSvc,
		orch:     orch,
		queue:    q,
		emitter:  emitter,
		invoker:  invoker,
		cache:    resultCache,
		recorded: recorder,
	}
}

func (h *harness) start(w *models.Workflow, inputs map[string]any) *models.Execution {
	h.t.Helper()
	ctx := context.Background()

	e, err := h.execSvc.Create(ctx, w, w.TenantID, "user-1", inputs)
	require.NoError(h.t, err)

	done := h.recorded.terminalSignal(e.ID)
	require.NoError(h.t, h.orch.StartExecution(ctx, w, e))
	h.waitTerminal(done)
	return e
}

func (h *harness) waitTerminal(done chan struct{}) {
	h.t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for terminal event")
	}
}

func (h *harness) final(e *models.Execution) *models.Execution {
	h.t.Helper()
	got, err := h.execSvc.Get(context.Background(), e.TenantID, e.ID)
	require.NoError(h.t, err)
	return got
}

func linear(tenantID string, ids ...string) *models.Workflow {
	w := &models.Workflow{
		ID:       "wf-" + ids[0],
		TenantID: tenantID,
		Name:     "linear",
		Status:   models.WorkflowValid,
		Version:  1,
	}
	for _, id := range ids {
		w.Nodes = append(w.Nodes, models.Node{
			ID:     id,
			Type:   models.NodeAgent,
			Config: models.NodeConfig{AgentID: "agent-" + id},
		})
	}
	for i := 0; i < len(ids)-1; i++ {
		w.Edges = append(w.Edges, models.Edge{
			ID:     fmt.Sprintf("e-%s-%s", ids[i], ids[i+1]),
			Source: ids[i],
			Target: ids[i+1],
		})
	}
	return w
}

func TestOrchestrator_LinearExecutionCompletes(t *testing.T) {
	h := newHarness(t)
	w := linear("tenant-1", "a", "b", "c")

	e := h.start(w, map[string]any{"topic": "news"})

	final := h.final(e)
	assert.Equal(t, models.ExecutionCompleted, final.Status)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)
	for _, ns := range final.NodeStates {
		assert.Equal(t, models.NodeCompleted, ns.Status)
		assert.NotNil(t, ns.Output)
	}

	evs := h.recorded.forExecution(e.ID)
	assert.Equal(t, events.ExecutionStarted, evs[0].Type)
	assert.Equal(t, events.ExecutionCompleted, evs[len(evs)-1].Type)
	assert.Equal(t, 3, countType(evs, events.NodeCompleted))

	// per-node ordering: queued before running before completed
	var aSequence []events.Type
	for _, ev := range evs {
		if payload, ok := ev.Payload.(events.NodePayload); ok && payload.NodeID == "a" {
			aSequence = append(aSequence, ev.Type)
		}
		if payload, ok := ev.Payload.(events.NodeCompletedPayload); ok && payload.NodeID == "a" {
			aSequence = append(aSequence, ev.Type)
		}
	}
	assert.Equal(t, []events.Type{events.NodeQueued, events.NodeRunning, events.NodeCompleted}, aSequence)
}

func TestOrchestrator_FailureSkipsDescendants(t *testing.T) {
	h := newHarness(t)
	w := linear("tenant-1", "a", "b", "c")

	h.invoker.Script("b", func(ctx context.Context, job *models.Job) (any, error) {
		return nil, fmt.Errorf("agent exploded")
	})

	e := h.start(w, nil)

	final := h.final(e)
	assert.Equal(t, models.ExecutionFailed, final.Status)

	states := final.NodeStateMap()
	assert.Equal(t, models.NodeCompleted, states["a"].Status)
	assert.Equal(t, models.NodeFailed, states["b"].Status)
	assert.Equal(t, models.NodeSkipped, states["c"].Status)
	assert.Equal(t, "Skipped due to upstream failure: b", states["c"].Error)

	evs := h.recorded.forExecution(e.ID)
	assert.Equal(t, events.ExecutionFailed, evs[len(evs)-1].Type)
	assert.Equal(t, 1, countType(evs, events.NodeSkipped))

	failPayload, ok := evs[len(evs)-1].Payload.(events.ExecutionFailedPayload)
	require.True(t, ok)
	assert.Contains(t, failPayload.Error, "agent exploded")
	assert.Equal(t, []string{"b"}, failPayload.FailedNodes)
}

func TestOrchestrator_DiamondPartialSkip(t *testing.T) {
	h := newHarness(t)
	w := &models.Workflow{
		ID: "wf-diamond", TenantID: "tenant-1", Name: "diamond",
		Status: models.WorkflowValid, Version: 1,
		Nodes: []models.Node{
			{ID: "a", Type: models.NodeAgent, Config: models.NodeConfig{AgentID: "ag-a"}},
			{ID: "b", Type: models.NodeAgent, Config: models.NodeConfig{AgentID: "ag-b"}},
			{ID: "c", Type: models.NodeAgent, Config: models.NodeConfig{AgentID: "ag-c"}},
			{ID: "d", Type: models.NodeAgent, Config: models.NodeConfig{AgentID: "ag-d"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "c"},
			{ID: "e3", Source: "b", Target: "d"},
			{ID: "e4", Source: "c", Target: "d"},
		},
	}

	h.invoker.Script("b", func(ctx context.Context, job *models.Job) (any, error) {
		return nil, fmt.Errorf("branch b failed")
	})

	e := h.start(w, nil)

	final := h.final(e)
	states := final.NodeStateMap()
	assert.Equal(t, models.ExecutionFailed, final.Status)
	assert.Equal(t, models.NodeCompleted, states["a"].Status)
	assert.Equal(t, models.NodeFailed, states["b"].Status)
	// c is not downstream of b and still runs
	assert.Equal(t, models.NodeCompleted, states["c"].Status)
	assert.Equal(t, models.NodeSkipped, states["d"].Status)
}

func TestOrchestrator_RetryThenSuccess(t *testing.T) {
	h := newHarness(t)
	w := linear("tenant-1", "a")

	attempts := 0
	h.invoker.Script("a", func(ctx context.Context, job *models.Job) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, fmt.Errorf("transient %d", attempts)
		}
		return map[string]any{"result": "finally"}, nil
	})

	e := h.start(w, nil)

	final := h.final(e)
	assert.Equal(t, models.ExecutionCompleted, final.Status)
	states := final.NodeStateMap()
	assert.Equal(t, models.NodeCompleted, states["a"].Status)
	assert.Equal(t, 2, states["a"].RetryCount)

	evs := h.recorded.forExecution(e.ID)
	assert.Equal(t, 2, countType(evs, events.NodeRetrying))
	// the two intermediate failures carry willRetry=true
	willRetry := 0
	for _, ev := range evs {
		if payload, ok := ev.Payload.(events.NodeFailedPayload); ok && payload.WillRetry {
			willRetry++
		}
	}
	assert.Equal(t, 2, willRetry)
}

func TestOrchestrator_RetriesExhausted(t *testing.T) {
	h := newHarness(t)
	w := linear("tenant-1", "a", "b")

	h.invoker.Script("a", func(ctx context.Context, job *models.Job) (any, error) {
		return nil, fmt.Errorf("permanently broken")
	})

	e := h.start(w, nil)

	final := h.final(e)
	assert.Equal(t, models.ExecutionFailed, final.Status)
	states := final.NodeStateMap()
	assert.Equal(t, models.NodeFailed, states["a"].Status)
	assert.Equal(t, 3, states["a"].RetryCount)
	assert.Equal(t, models.NodeSkipped, states["b"].Status)
}

func TestOrchestrator_CacheHitOnSecondExecution(t *testing.T) {
	h := newHarness(t)
	w := linear("tenant-1", "a", "b")

	first := h.start(w, map[string]any{"q": "same"})
	firstFinal := h.final(first)
	require.Equal(t, models.ExecutionCompleted, firstFinal.Status)

	second := h.start(w, map[string]any{"q": "same"})
	secondFinal := h.final(second)
	require.Equal(t, models.ExecutionCompleted, secondFinal.Status)

	evs := h.recorded.forExecution(second.ID)
	assert.Equal(t, 2, countType(evs, events.NodeCacheHit))
	for _, ev := range evs {
		if payload, ok := ev.Payload.(events.NodeCompletedPayload); ok {
			assert.True(t, payload.Cached, payload.NodeID)
		}
	}

	// outputs identical across runs
	firstStates := firstFinal.NodeStateMap()
	secondStates := secondFinal.NodeStateMap()
	assert.Equal(t, firstStates["a"].Output, secondStates["a"].Output)

	stats := h.cache.Stats(context.Background())
	assert.Equal(t, int64(2), stats.Hits)
}

func TestOrchestrator_TenantCacheIsolation(t *testing.T) {
	h := newHarness(t)

	wa := linear("tenant-a", "a")
	wb := linear("tenant-a", "a")
	wb.TenantID = "tenant-b"
	wb.ID = "wf-b"

	h.start(wa, map[string]any{"q": "same"})
	second := h.start(wb, map[string]any{"q": "same"})

	evs := h.recorded.forExecution(second.ID)
	assert.Zero(t, countType(evs, events.NodeCacheHit))
}

func TestOrchestrator_Cancellation(t *testing.T) {
	h := newHarness(t)
	w := linear("tenant-1", "a", "b", "c")

	release := make(chan struct{})
	h.invoker.Script("a", func(ctx context.Context, job *models.Job) (any, error) {
		<-release
		return "slow", nil
	})

	ctx := context.Background()
	e, err := h.execSvc.Create(ctx, w, "tenant-1", "user-1", nil)
	require.NoError(t, err)

	done := h.recorded.terminalSignal(e.ID)
	require.NoError(t, h.orch.StartExecution(ctx, w, e))

	// cancel while node a is still running
	cancelled, err := h.orch.CancelExecution(ctx, "tenant-1", e.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCancelled, cancelled.Status)
	close(release)
	h.waitTerminal(done)

	final := h.final(e)
	assert.Equal(t, models.ExecutionCancelled, final.Status)
	states := final.NodeStateMap()
	assert.Equal(t, models.NodeSkipped, states["b"].Status)
	assert.Equal(t, models.NodeSkipped, states["c"].Status)

	// the terminal status survives the in-flight job completing afterwards
	assert.Equal(t, models.ExecutionCancelled, h.final(e).Status)
}

func TestOrchestrator_CancelInterruptsRunningNode(t *testing.T) {
	h := newHarness(t)
	w := linear("tenant-1", "a", "b")

	started := make(chan struct{})
	h.invoker.Script("a", func(ctx context.Context, job *models.Job) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx := context.Background()
	e, err := h.execSvc.Create(ctx, w, "tenant-1", "user-1", nil)
	require.NoError(t, err)
	require.NoError(t, h.orch.StartExecution(ctx, w, e))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("node a never started")
	}

	cancelled, err := h.orch.CancelExecution(ctx, "tenant-1", e.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCancelled, cancelled.Status)

	// the interrupted worker frees up for the next execution
	next := linear("tenant-1", "x")
	after := h.start(next, nil)
	assert.Equal(t, models.ExecutionCompleted, h.final(after).Status)
}

func TestOrchestrator_ResumeFromFailedNode(t *testing.T) {
	h := newHarness(t)
	w := linear("tenant-1", "a", "b", "c")

	failing := true
	h.invoker.Script("b", func(ctx context.Context, job *models.Job) (any, error) {
		if failing {
			return nil, fmt.Errorf("flaky dependency down")
		}
		return map[string]any{"result": "recovered"}, nil
	})

	parent := h.start(w, map[string]any{"q": "x"})
	parentFinal := h.final(parent)
	require.Equal(t, models.ExecutionFailed, parentFinal.Status)

	// dependency recovers; resume from the failed node
	failing = false
	ctx := context.Background()
	resumed, err := h.execSvc.CreateResumed(ctx, w, parentFinal, "b", "user-2")
	require.NoError(t, err)

	done := h.recorded.terminalSignal(resumed.ID)
	require.NoError(t, h.orch.StartExecution(ctx, w, resumed))
	h.waitTerminal(done)

	final := h.final(resumed)
	assert.Equal(t, models.ExecutionCompleted, final.Status)

	states := final.NodeStateMap()
	assert.Equal(t, models.NodeCompleted, states["a"].Status)
	assert.Equal(t, models.NodeCompleted, states["b"].Status)
	assert.Equal(t, models.NodeCompleted, states["c"].Status)

	// RESUME_COMPLETE trails the terminal event
	require.Eventually(t, func() bool {
		return countType(h.recorded.forExecution(resumed.ID), events.ResumeComplete) == 1
	}, 2*time.Second, 5*time.Millisecond)

	evs := h.recorded.forExecution(resumed.ID)
	assert.Equal(t, 1, countType(evs, events.ResumeStart))
	assert.Equal(t, 1, countType(evs, events.NodeOutputReused))
	completedAt, resumeCompleteAt := -1, -1
	for i, ev := range evs {
		switch ev.Type {
		case events.ExecutionCompleted:
			completedAt = i
		case events.ResumeComplete:
			resumeCompleteAt = i
		}
	}
	require.GreaterOrEqual(t, completedAt, 0)
	assert.Greater(t, resumeCompleteAt, completedAt)
	// node a did not rerun
	reran := false
	for _, ev := range evs {
		if payload, ok := ev.Payload.(events.NodePayload); ok && payload.NodeID == "a" && ev.Type == events.NodeQueued {
			reran = true
		}
	}
	assert.False(t, reran)

	resumePayload, ok := evs[0].Payload.(events.ResumeStartPayload)
	require.True(t, ok)
	assert.Equal(t, parent.ID, resumePayload.ParentExecutionID)
	assert.Equal(t, 1, resumePayload.ReusedCount)
	assert.Equal(t, 2, resumePayload.RerunCount)
}

func TestOrchestrator_MissingRequiredInputs(t *testing.T) {
	h := newHarness(t)
	w := &models.Workflow{
		ID: "wf-in", TenantID: "tenant-1", Name: "inputs",
		Status: models.WorkflowValid, Version: 1,
		Nodes: []models.Node{
			{ID: "in", Type: models.NodeInput, Config: models.NodeConfig{
				Parameters: map[string]any{"required": true, "key": "topic"},
			}},
		},
	}

	ctx := context.Background()
	e, err := h.execSvc.Create(ctx, w, "tenant-1", "user-1", map[string]any{"other": 1})
	require.NoError(t, err)

	err = h.orch.StartExecution(ctx, w, e)
	require.Error(t, err)

	// the rejected execution must not linger as pending
	got, err := h.execSvc.Get(ctx, "tenant-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, got.Status)
}
