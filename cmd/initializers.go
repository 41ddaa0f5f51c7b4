package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/app/handler"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/app/router"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/broadcast"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/orchestrator"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/recovery"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/scheduler"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/telemetry"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/command"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/config"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/notification"
	asynqqueue "github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/queue/asynq"
	redisstore "github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/store/redis"
)

func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.config = config.GlobalConfig
	return nil
}

func (app *Application) initLogger() error {
	return logger.Init()
}

func (app *Application) initRedis() error {
	redisClient, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}
	app.redisClient = redisClient
	app.capabilityRepo = redisstore.NewCapabilityRepository(redisClient)
	app.registerCleanup(func() {
		if err := redisClient.Close(); err != nil {
			logger.Warnf("failed to close redis client: %v", err)
		}
	})
	return nil
}

func (app *Application) initQueue() error {
	queueManager, err := asynqqueue.NewManager(app.config)
	if err != nil {
		return err
	}
	app.queueManager = queueManager
	app.registerCleanup(func() {
		if err := queueManager.Close(); err != nil {
			logger.Warnf("failed to close queue manager: %v", err)
		}
	})
	return nil
}

// initCore wires the scheduler, telemetry processor, recovery coordinator,
// broadcaster and orchestrator together. Components communicate only through
// the orchestrator-owned event subscriptions.
func (app *Application) initCore() error {
	cfg := app.config

	app.sink = telemetry.NewSink(cfg.Telemetry.BufferCapacity)
	app.processor = telemetry.NewProcessor(app.sink, telemetry.Config{
		TempWindow:        time.Duration(cfg.Telemetry.TempWindowMinutes) * time.Minute,
		ProgressWindow:    time.Duration(cfg.Telemetry.ProgressWindowMinutes) * time.Minute,
		VarianceThreshold: cfg.Telemetry.VarianceThreshold,
		MinProgressRate:   cfg.Telemetry.MinProgressRate,
		MaxProgressRate:   cfg.Telemetry.MaxProgressRate,
		HistoryRetention:  time.Duration(cfg.Telemetry.HistoryRetentionHours) * time.Hour,
	})

	commands := command.NewRedisCommandChannel(app.redisClient.GetClient())
	app.notifier = notification.NewWebhookNotifier()

	app.coordinator = recovery.NewCoordinator(recovery.Config{
		HistoryCap:            cfg.Recovery.HistoryCap,
		HistoryBlacklistTotal: cfg.Recovery.HistoryBlacklistTotal,
		ConsecutiveThreshold:  cfg.Recovery.ConsecutiveThreshold,
		ConsecutiveWindow:     time.Duration(cfg.Recovery.ConsecutiveWindowMin) * time.Minute,
		BlacklistCooldown:     time.Duration(cfg.Recovery.BlacklistCooldownMin) * time.Minute,
	}, commands, app.notifier)

	app.scheduler = scheduler.New(scheduler.Config{
		PowerPerJobKWh:       cfg.Scheduler.PowerPerJobKWh,
		Retention:            time.Duration(cfg.Scheduler.RetentionHours) * time.Hour,
		GenerateAlternatives: cfg.Scheduler.GenerateAlternatives,
	}, app.queueManager, app.coordinator)

	if cfg.Scheduler.WorkEndHour > cfg.Scheduler.WorkStartHour {
		app.scheduler.UpdateSchedulingConstraints(model.SchedulingConstraints{
			WorkStartHour: cfg.Scheduler.WorkStartHour,
			WorkEndHour:   cfg.Scheduler.WorkEndHour,
			Timezone:      cfg.Scheduler.Timezone,
		})
	}

	// Seed the scheduler's capability table from the registry.
	capabilities, err := app.capabilityRepo.GetAll(app.ctx)
	if err != nil {
		return fmt.Errorf("failed to load printer capabilities: %w", err)
	}
	seed := make([]model.PrinterCapability, 0, len(capabilities))
	for _, c := range capabilities {
		seed = append(seed, *c)
	}
	app.scheduler.UpdatePrinterCapabilities(seed)
	logger.Infof("loaded %d printer capability records", len(seed))

	app.broadcaster = broadcast.New(broadcast.Config{
		BatchSize:         cfg.Broadcast.BatchSize,
		BatchWindow:       time.Duration(cfg.Broadcast.BatchWindowMs) * time.Millisecond,
		RateLimitPerSec:   cfg.Broadcast.RateLimitPerSec,
		CompressThreshold: cfg.Broadcast.CompressThreshold,
	})

	app.orchestrator = orchestrator.New(app.processor, app.scheduler, app.coordinator, app.broadcaster, commands)
	return nil
}

func (app *Application) initHandlers() error {
	app.jobHandler = handler.NewJobHandler(app.queueManager)
	app.scheduleHandler = handler.NewScheduleHandler(app.scheduler)
	app.printerHandler = handler.NewPrinterHandler(app.capabilityRepo, app.scheduler)
	app.telemetryHandler = handler.NewTelemetryHandler(app.processor)
	app.recoveryHandler = handler.NewRecoveryHandler(app.orchestrator, app.coordinator)
	app.wsHandler = handler.NewWSHandler(app.broadcaster)
	return nil
}

func (app *Application) initHTTPServer() error {
	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()

	r := router.NewRouter(
		app.jobHandler,
		app.scheduleHandler,
		app.printerHandler,
		app.telemetryHandler,
		app.recoveryHandler,
		app.wsHandler,
	)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}
	return nil
}
