package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/app/handler"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/broadcast"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/jobs"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/orchestrator"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/recovery"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/scheduler"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/telemetry"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/config"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/notification"
	asynqqueue "github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/queue/asynq"
	redisstore "github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/store/redis"
)

// Application manages the lifecycle of the entire application
type Application struct {
	// Infrastructure components
	config         *config.Config
	redisClient    *redisstore.RedisClient
	capabilityRepo *redisstore.CapabilityRepository
	queueManager   *asynqqueue.Manager
	notifier       *notification.WebhookNotifier

	// Core components
	sink         *telemetry.Sink
	processor    *telemetry.Processor
	scheduler    *scheduler.Scheduler
	coordinator  *recovery.Coordinator
	broadcaster  *broadcast.Broadcaster
	orchestrator *orchestrator.Orchestrator

	// Handler layer
	jobHandler       *handler.JobHandler
	scheduleHandler  *handler.ScheduleHandler
	printerHandler   *handler.PrinterHandler
	telemetryHandler *handler.TelemetryHandler
	recoveryHandler  *handler.RecoveryHandler
	wsHandler        *handler.WSHandler

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine

	// Background tasks
	jobsManager *jobs.Manager

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Background task cleanup functions
	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	var err error

	// Initialize components in order
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"Redis", app.initRedis},
		{"Job Queue", app.initQueue},
		{"Core Components", app.initCore},
		{"Background Tasks", app.initJobs},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.Infof("Initializing %s...", step.name)
		if err = step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		logger.Infof("%s initialized successfully", step.name)
	}

	logger.Info("Application initialization completed")
	return nil
}

// Start starts all application components
func (app *Application) Start() error {
	logger.Info("Starting application components...")

	// 1. Start the event orchestrator
	app.orchestrator.Start()

	// 2. Start background tasks
	if app.jobsManager != nil {
		logger.Info("Starting background task manager")
		app.jobsManager.Start()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.jobsManager.Wait()
		}()
	}

	// 3. Start HTTP server
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		addr := fmt.Sprintf(":%d", app.config.Server.Port)
		logger.Infof("HTTP server listening on: %s", addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.Infof("Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Cancel all background tasks
	logger.Info("Canceling background tasks...")
	app.cancel()
	if app.jobsManager != nil {
		app.jobsManager.Stop()
	}

	// 2. Stop HTTP server (stop accepting new requests)
	logger.Info("Shutting down HTTP server...")
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	// 3. Wait for all background tasks to complete
	logger.Info("Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All background tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout, some tasks may not have completed")
	}

	// 4. Stop the orchestrator and flush the broadcaster
	app.orchestrator.Stop()
	app.broadcaster.Close()

	// 5. Execute all cleanup functions (in reverse registration order)
	logger.Info("Executing cleanup functions...")
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	// 6. Sync logs
	logger.Sync()

	logger.Info("Graceful shutdown completed")
	return nil
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
