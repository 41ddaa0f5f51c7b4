package router

import (
	"github.com/gin-gonic/gin"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/app/handler"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/app/middleware"
)

// Router Router
type Router struct {
	jobHandler       *handler.JobHandler
	scheduleHandler  *handler.ScheduleHandler
	printerHandler   *handler.PrinterHandler
	telemetryHandler *handler.TelemetryHandler
	recoveryHandler  *handler.RecoveryHandler
	wsHandler        *handler.WSHandler
}

// NewRouter creates a new Router
func NewRouter(
	jobHandler *handler.JobHandler,
	scheduleHandler *handler.ScheduleHandler,
	printerHandler *handler.PrinterHandler,
	telemetryHandler *handler.TelemetryHandler,
	recoveryHandler *handler.RecoveryHandler,
	wsHandler *handler.WSHandler,
) *Router {
	return &Router{
		jobHandler:       jobHandler,
		scheduleHandler:  scheduleHandler,
		printerHandler:   printerHandler,
		telemetryHandler: telemetryHandler,
		recoveryHandler:  recoveryHandler,
		wsHandler:        wsHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	// V1 API - fleet coordination interface
	v1 := engine.Group("/v1")
	{
		// Job queue
		jobs := v1.Group("/jobs")
		jobs.Use(middleware.AuthMiddleware())
		{
			jobs.POST("", r.jobHandler.Submit)
			jobs.GET("", r.jobHandler.List)
			jobs.POST("/:job_id/cancel", r.jobHandler.Cancel)
		}

		// Scheduling
		schedules := v1.Group("/schedules")
		{
			schedules.GET("", r.scheduleHandler.List)
			schedules.GET("/:schedule_id", r.scheduleHandler.Get)
			schedules.POST("/optimize", middleware.AuthMiddleware(), r.scheduleHandler.Optimize)
			schedules.POST("/reschedule", middleware.AuthMiddleware(), r.scheduleHandler.Reschedule)
			schedules.PUT("/constraints", middleware.AuthMiddleware(), r.scheduleHandler.UpdateConstraints)
		}

		// Printer capability registry
		printers := v1.Group("/printers")
		{
			printers.GET("", r.printerHandler.List)
			printers.GET("/:printer_id", r.printerHandler.Get)
			printers.PUT("", middleware.AuthMiddleware(), r.printerHandler.Register)
			printers.DELETE("/:printer_id", middleware.AuthMiddleware(), r.printerHandler.Remove)
		}

		// Telemetry
		telemetry := v1.Group("/telemetry")
		{
			telemetry.GET("/aggregate", r.telemetryHandler.GetAggregate)
			telemetry.POST("/:device_id", r.telemetryHandler.Ingest)
			telemetry.GET("/:device_id", r.telemetryHandler.GetProcessed)
			telemetry.GET("/:device_id/history", r.telemetryHandler.GetHistory)
			telemetry.GET("/:device_id/series", r.telemetryHandler.GetSeries)
		}

		// Device errors and recovery
		devices := v1.Group("/devices")
		{
			devices.POST("/:device_id/errors", r.recoveryHandler.ReportError)
			devices.GET("/:device_id/errors", r.recoveryHandler.GetErrorHistory)
			devices.GET("/:device_id/blacklist", r.recoveryHandler.GetBlacklistStatus)
		}
		v1.GET("/recovery/stats", r.recoveryHandler.GetStats)

		// Event stream
		v1.GET("/events/stats", r.wsHandler.GetConnectionStats)
	}

	// Live event stream (WebSocket)
	engine.GET("/ws", r.wsHandler.Serve)

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
