package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/agentforge/engine/cmd/engine/container"
	"github.com/agentforge/engine/cmd/engine/routes"
	"github.com/agentforge/engine/common/config"
	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	// Initialize service container (singleton pattern - all services created once)
	c, err := container.New(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	routes.Register(e, c)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	c.Start(workerCtx)

	srv := server.New(cfg.Service.Name, cfg.Service.Port, e, log)
	srv.OnShutdown(func(shutdownCtx context.Context) {
		stopWorker()
		c.Shutdown(shutdownCtx)
	})

	if err := srv.Start(); err != nil {
		log.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}
