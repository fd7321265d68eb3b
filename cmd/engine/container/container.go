// Package container initializes the engine's components once and holds
// them for the lifetime of the process.
package container

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agentforge/engine/cmd/engine/handlers"
	"github.com/agentforge/engine/cmd/engine/hub"
	"github.com/agentforge/engine/cmd/engine/orchestrator"
	"github.com/agentforge/engine/cmd/engine/repository"
	"github.com/agentforge/engine/cmd/engine/service"
	"github.com/agentforge/engine/common/cache"
	"github.com/agentforge/engine/common/config"
	"github.com/agentforge/engine/common/db"
	"github.com/agentforge/engine/common/events"
	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/queue"
	"github.com/agentforge/engine/common/runtime"
)

// Container holds all initialized services and repositories
type Container struct {
	Config *config.Config
	Log    *logger.Logger

	DB    *db.DB        // nil for the memory backend
	Redis *redis.Client // nil for the memory cache backend

	WorkflowRepo  repository.WorkflowRepository
	ExecutionRepo repository.ExecutionRepository

	Emitter      *events.Emitter
	ResultCache  cache.ResultCache
	Queue        *queue.JobQueue
	Runtime      *runtime.Runtime
	Hub          *hub.Hub
	Orchestrator *orchestrator.Orchestrator

	WorkflowService  *service.WorkflowService
	ExecutionService *service.ExecutionService

	WorkflowHandler  *handlers.WorkflowHandler
	ExecutionHandler *handlers.ExecutionHandler
	StreamHandler    *handlers.StreamHandler
	HealthHandler    *handlers.HealthHandler
}

// New initializes all components bottom-up: storage, cache, events,
// runtime, queue, orchestrator, services, handlers.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: log}

	if err := c.initStorage(ctx); err != nil {
		return nil, err
	}
	if err := c.initCache(); err != nil {
		return nil, err
	}

	c.Emitter = events.NewEmitter(log)
	c.Hub = hub.New(c.Emitter, log)

	invoker := runtime.NewMockInvoker()
	c.Runtime = runtime.New(c.ResultCache, invoker, c.Emitter, log)
	c.Queue = queue.New(c.Runtime.Execute, log)

	c.ExecutionService = service.NewExecutionService(c.ExecutionRepo, log)
	c.WorkflowService = service.NewWorkflowService(c.WorkflowRepo, nil, log)
	c.Orchestrator = orchestrator.New(c.Queue, c.ExecutionService, c.Emitter, cfg.Queue, log)

	c.WorkflowHandler = handlers.NewWorkflowHandler(c.WorkflowService, log)
	c.ExecutionHandler = handlers.NewExecutionHandler(
		c.WorkflowService, c.ExecutionService, c.Orchestrator, c.Hub, log)
	c.StreamHandler = handlers.NewStreamHandler(c.Hub, log)
	c.HealthHandler = handlers.NewHealthHandler(c.DB)

	return c, nil
}

func (c *Container) initStorage(ctx context.Context) error {
	switch c.Config.Database.Backend {
	case "postgres":
		database, err := db.New(ctx, c.Config, c.Log)
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		c.DB = database

		workflowRepo, err := repository.NewPostgresWorkflowRepository(ctx, database)
		if err != nil {
			return err
		}
		executionRepo, err := repository.NewPostgresExecutionRepository(ctx, database)
		if err != nil {
			return err
		}
		c.WorkflowRepo = workflowRepo
		c.ExecutionRepo = executionRepo

	default:
		c.WorkflowRepo = repository.NewMemoryWorkflowRepository()
		c.ExecutionRepo = repository.NewMemoryExecutionRepository()
	}
	return nil
}

func (c *Container) initCache() error {
	if !c.Config.Cache.Enabled {
		c.Log.Info("result cache disabled")
		return nil
	}

	switch c.Config.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.Config.RedisAddr(),
			Password: c.Config.Cache.Redis.Password,
			DB:       c.Config.Cache.Redis.DB,
		})
		c.Redis = client
		c.ResultCache = cache.NewRedisCache(client, c.Log)
		c.Log.Info("result cache using redis", "addr", c.Config.RedisAddr())

	default:
		c.ResultCache = cache.NewMemoryCache(c.Log)
		c.Log.Info("result cache using memory backend")
	}
	return nil
}

// Start launches the background workers
func (c *Container) Start(ctx context.Context) {
	c.Queue.StartWorker(ctx)
}

// Shutdown stops workers and closes connections
func (c *Container) Shutdown(ctx context.Context) {
	c.Queue.StopWorker()
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Log.Error("redis close failed", "error", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
