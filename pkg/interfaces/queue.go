package interfaces

import (
	"context"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

// JobQueue durable print-job transport.
// At-least-once delivery with retry/backoff is the transport's responsibility.
type JobQueue interface {
	// Enqueue submits a job; returns an opaque job handle.
	Enqueue(ctx context.Context, job *model.PrintJob) (string, error)

	// PendingJobs returns the jobs currently waiting for assignment.
	// Used by periodic re-optimization.
	PendingJobs(ctx context.Context) ([]model.PrintJob, error)

	// Cancel removes a queued job.
	Cancel(ctx context.Context, jobID string) error

	// Close closes the queue connection.
	Close() error
}

// CapabilityStore read/write access to PrinterCapability records, keyed by device id.
type CapabilityStore interface {
	Save(ctx context.Context, capability *model.PrinterCapability) error
	Get(ctx context.Context, printerID string) (*model.PrinterCapability, error)
	GetAll(ctx context.Context) ([]*model.PrinterCapability, error)
	Delete(ctx context.Context, printerID string) error
}
