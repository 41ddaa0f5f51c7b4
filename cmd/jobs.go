package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/jobs"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/recovery"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/scheduler"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/telemetry"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/lock"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

func (app *Application) initJobs() error {
	if app.scheduler == nil || app.processor == nil || app.coordinator == nil {
		return fmt.Errorf("core components not initialized")
	}

	manager := jobs.NewManager(app.ctx)

	reoptimizeInterval := time.Duration(app.config.Scheduler.ReoptimizeInterval) * time.Second
	if reoptimizeInterval <= 0 {
		reoptimizeInterval = 15 * time.Minute
	}

	// Re-optimization is fleet-wide work; only one replica should run it.
	var redisClient *redis.Client
	if app.redisClient != nil {
		redisClient = app.redisClient.GetClient()
	}
	reoptimizeLock := lock.NewRedisDistributedLock(redisClient, "scheduler:reoptimize-lock")
	retentionLock := lock.NewRedisDistributedLock(redisClient, "scheduler:retention-lock")

	manager.Register(newReoptimizeJob(reoptimizeInterval, app.scheduler, reoptimizeLock))
	manager.Register(newTelemetryTickJob(app.config.Telemetry.TickDuration(), app.processor))
	manager.Register(newBlacklistReinstateJob(time.Minute, app.coordinator))
	manager.Register(newScheduleRetentionJob(time.Hour, app.scheduler, retentionLock))

	app.jobsManager = manager
	return nil
}

// reoptimizeJob recomputes the schedule from the pending job set on a fixed
// interval, from scratch rather than patching the previous plan.
type reoptimizeJob struct {
	interval        time.Duration
	scheduler       *scheduler.Scheduler
	distributedLock lock.DistributedLock
}

func newReoptimizeJob(interval time.Duration, sched *scheduler.Scheduler, l lock.DistributedLock) jobs.Job {
	return &reoptimizeJob{
		interval:        interval,
		scheduler:       sched,
		distributedLock: l,
	}
}

func (j *reoptimizeJob) Name() string {
	return "schedule-reoptimize"
}

func (j *reoptimizeJob) Interval() time.Duration {
	return j.interval
}

func (j *reoptimizeJob) Run(ctx context.Context) error {
	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.Debugf("another instance is running re-optimization, skipping this cycle")
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	schedule, err := j.scheduler.Optimize(ctx, nil, nil)
	if err != nil {
		return fmt.Errorf("re-optimization failed: %w", err)
	}
	logger.Infof("re-optimization complete: schedule %s, %d assigned, %d unassigned",
		schedule.ID, len(schedule.Assignments), len(schedule.Unassigned))
	return nil
}

// telemetryTickJob runs one processing pass over every device with samples.
type telemetryTickJob struct {
	interval  time.Duration
	processor *telemetry.Processor
}

func newTelemetryTickJob(interval time.Duration, processor *telemetry.Processor) jobs.Job {
	return &telemetryTickJob{interval: interval, processor: processor}
}

func (j *telemetryTickJob) Name() string {
	return "telemetry-tick"
}

func (j *telemetryTickJob) Interval() time.Duration {
	return j.interval
}

func (j *telemetryTickJob) Run(ctx context.Context) error {
	return j.processor.ProcessAll(ctx)
}

// blacklistReinstateJob reverts devices whose cooldown elapsed.
type blacklistReinstateJob struct {
	interval    time.Duration
	coordinator *recovery.Coordinator
}

func newBlacklistReinstateJob(interval time.Duration, coordinator *recovery.Coordinator) jobs.Job {
	return &blacklistReinstateJob{interval: interval, coordinator: coordinator}
}

func (j *blacklistReinstateJob) Name() string {
	return "blacklist-reinstate"
}

func (j *blacklistReinstateJob) Interval() time.Duration {
	return j.interval
}

func (j *blacklistReinstateJob) Run(ctx context.Context) error {
	if n := j.coordinator.ReinstateExpired(); n > 0 {
		logger.Infof("reinstated %d devices from blacklist", n)
	}
	return nil
}

// scheduleRetentionJob sweeps schedules past the retention window.
type scheduleRetentionJob struct {
	interval        time.Duration
	scheduler       *scheduler.Scheduler
	distributedLock lock.DistributedLock
}

func newScheduleRetentionJob(interval time.Duration, sched *scheduler.Scheduler, l lock.DistributedLock) jobs.Job {
	return &scheduleRetentionJob{
		interval:        interval,
		scheduler:       sched,
		distributedLock: l,
	}
}

func (j *scheduleRetentionJob) Name() string {
	return "schedule-retention"
}

func (j *scheduleRetentionJob) Interval() time.Duration {
	return j.interval
}

// AlignToInterval runs the sweep on the hour.
func (j *scheduleRetentionJob) AlignToInterval() bool {
	return true
}

func (j *scheduleRetentionJob) Run(ctx context.Context) error {
	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	if n := j.scheduler.EvictExpired(); n > 0 {
		logger.Infof("evicted %d expired schedules", n)
	}
	return nil
}
