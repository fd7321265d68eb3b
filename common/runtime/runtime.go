// Package runtime executes individual node jobs: resolving outputs from
// the result cache, invoking agents, evaluating tool expressions and
// passing through input/output nodes.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/agentforge/engine/common/cache"
	"github.com/agentforge/engine/common/events"
	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/models"
)

// Runtime turns a job into a JobResult. It is safe for use as the queue's
// processor.
type Runtime struct {
	cache   cache.ResultCache // nil disables caching
	invoker Invoker
	expr    *ExprEvaluator
	emitter *events.Emitter
	log     *logger.Logger
}

// New creates a runtime. A nil resultCache disables result caching.
func New(resultCache cache.ResultCache, invoker Invoker, emitter *events.Emitter, log *logger.Logger) *Runtime {
	return &Runtime{
		cache:   resultCache,
		invoker: invoker,
		expr:    NewExprEvaluator(),
		emitter: emitter,
		log:     log,
	}
}

// cacheable reports whether a node type's results may be cached
func cacheable(nodeType models.NodeType) bool {
	return nodeType == models.NodeAgent || nodeType == models.NodeTool
}

// Execute runs one job attempt. A non-nil error marks the failure
// retryable; terminal classification is the queue's concern.
func (r *Runtime) Execute(ctx context.Context, job *models.Job) (*models.JobResult, error) {
	// cache lookup only on the first attempt: a retry means the previous
	// attempt failed after a miss, so the answer cannot have appeared
	if r.cache != nil && job.RetryCount == 0 && cacheable(job.NodeType) && job.TenantID != "" {
		key := r.cacheKey(job)
		if entry, ok := r.cache.Get(ctx, key); ok {
			r.log.Debug("cache hit, skipping execution",
				"node_id", job.NodeID, "execution_id", job.ExecutionID)
			r.emitter.Emit(events.New(events.NodeCacheHit, job.ExecutionID, events.NodeCacheHitPayload{
				NodeID:             job.NodeID,
				OriginalDurationMS: entry.DurationMS,
				Message:            "Using cached result",
			}))
			return &models.JobResult{
				JobID:       job.ID,
				NodeID:      job.NodeID,
				ExecutionID: job.ExecutionID,
				Success:     true,
				Output:      entry.Output,
				DurationMS:  0,
				Cached:      true,
			}, nil
		}
	}

	// NODE_RUNNING marks actual execution; a cache hit never emits it
	r.emitter.Emit(events.New(events.NodeRunning, job.ExecutionID, events.NodePayload{NodeID: job.NodeID}))

	started := time.Now()
	output, err := r.run(ctx, job)
	duration := time.Since(started).Milliseconds()

	if err != nil {
		return &models.JobResult{
			JobID:       job.ID,
			NodeID:      job.NodeID,
			ExecutionID: job.ExecutionID,
			Success:     false,
			Error:       err.Error(),
			DurationMS:  duration,
		}, err
	}

	if r.cache != nil && cacheable(job.NodeType) && job.TenantID != "" {
		r.cache.Set(ctx, r.cacheKey(job), cache.Entry{
			Output:     output,
			DurationMS: duration,
			CachedAt:   time.Now().UTC(),
		})
	}

	return &models.JobResult{
		JobID:       job.ID,
		NodeID:      job.NodeID,
		ExecutionID: job.ExecutionID,
		Success:     true,
		Output:      output,
		DurationMS:  duration,
	}, nil
}

func (r *Runtime) run(ctx context.Context, job *models.Job) (any, error) {
	switch job.NodeType {
	case models.NodeInput, models.NodeOutput:
		// pass-through: inputs flow out unchanged
		return job.Inputs, nil

	case models.NodeTool:
		if expr := configString(job.NodeConfig, "expression"); expr != "" {
			r.emitter.Emit(events.New(events.LogEmitted, job.ExecutionID, events.LogEmittedPayload{
				NodeID:  job.NodeID,
				Level:   "info",
				Message: "evaluating tool expression",
			}))
			return r.expr.Evaluate(expr, job.Inputs)
		}
		return r.invoker.Invoke(ctx, job)

	case models.NodeAgent:
		r.emitter.Emit(events.New(events.LogEmitted, job.ExecutionID, events.LogEmittedPayload{
			NodeID:  job.NodeID,
			Level:   "info",
			Message: fmt.Sprintf("invoking agent %s", job.AgentID),
		}))
		return r.invoker.Invoke(ctx, job)

	default:
		return nil, fmt.Errorf("unknown node type: %s", job.NodeType)
	}
}

func (r *Runtime) cacheKey(job *models.Job) cache.Key {
	version := configString(job.NodeConfig, "agent_version")
	if version == "" {
		version = "1.0.0"
	}
	agentID := job.AgentID
	if agentID == "" {
		agentID = configString(job.NodeConfig, "tool_id")
	}
	return cache.NewKey(job.TenantID, agentID, version, job.Inputs)
}

func configString(config map[string]any, key string) string {
	if config == nil {
		return ""
	}
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}
