package asynq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/config"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

const (
	TypePrintJob = "print:job"

	queueName = "default"
)

// Manager is the durable print-job transport backed by asynq. At-least-once
// delivery and retry bookkeeping stay inside asynq; the scheduler only pulls
// pending jobs from here.
type Manager struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redisOpt  asynq.RedisClientOpt
}

// NewManager creates the queue manager from Redis settings.
func NewManager(cfg *config.Config) (*Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	return &Manager{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redisOpt:  redisOpt,
	}, nil
}

// Enqueue submits a print job. The job id doubles as the asynq task id so
// cancellation and inspection work by job id.
func (m *Manager) Enqueue(ctx context.Context, job *model.PrintJob) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	task := asynq.NewTask(TypePrintJob, payload)

	opts := []asynq.Option{
		asynq.TaskID(job.ID),
		asynq.Timeout(time.Duration(config.GlobalConfig.Queue.JobTimeout) * time.Second),
		asynq.MaxRetry(config.GlobalConfig.Queue.MaxRetry),
	}

	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	logger.Infof("print job enqueued, job_id: %s, queue: %s", job.ID, info.Queue)
	return info.ID, nil
}

// PendingJobs lists the jobs currently waiting for assignment. Scheduled
// (delayed) tasks are included; running and archived ones are not.
func (m *Manager) PendingJobs(ctx context.Context) ([]model.PrintJob, error) {
	pending, err := m.inspector.ListPendingTasks(queueName, asynq.PageSize(500))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	scheduled, err := m.inspector.ListScheduledTasks(queueName, asynq.PageSize(500))
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled jobs: %w", err)
	}

	jobs := make([]model.PrintJob, 0, len(pending)+len(scheduled))
	for _, task := range append(pending, scheduled...) {
		if task.Type != TypePrintJob {
			continue
		}
		var job model.PrintJob
		if err := json.Unmarshal(task.Payload, &job); err != nil {
			logger.Warnf("skipping undecodable job payload, task_id: %s: %v", task.ID, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Cancel removes a queued job by id.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	if err := m.inspector.DeleteTask(queueName, jobID); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	logger.Infof("print job cancelled, job_id: %s", jobID)
	return nil
}

// GetJobInfo retrieves transport-level state for one job.
func (m *Manager) GetJobInfo(jobID string) (*asynq.TaskInfo, error) {
	info, err := m.inspector.GetTaskInfo(queueName, jobID)
	if err != nil {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return info, nil
}

// GetPendingJobCount retrieves the pending job count.
func (m *Manager) GetPendingJobCount() (int, error) {
	stats, err := m.inspector.GetQueueInfo(queueName)
	if err != nil {
		return 0, err
	}
	return stats.Pending, nil
}

// Close closes the client and inspector connections.
func (m *Manager) Close() error {
	if err := m.inspector.Close(); err != nil {
		logger.Warnf("failed to close queue inspector: %v", err)
	}
	return m.client.Close()
}
