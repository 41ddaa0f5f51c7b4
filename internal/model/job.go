package model

import (
	"time"
)

// JobStatus print job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"    // Waiting for assignment
	JobStatusAssigned  JobStatus = "ASSIGNED"  // Assigned to a printer
	JobStatusPrinting  JobStatus = "PRINTING"  // Currently printing
	JobStatusCompleted JobStatus = "COMPLETED" // Finished successfully
	JobStatusFailed    JobStatus = "FAILED"    // Terminal failure
	JobStatusCancelled JobStatus = "CANCELLED" // Cancelled by user
)

// PrintJob is a queued print request waiting for a printer slot.
type PrintJob struct {
	ID                string        `json:"id"`
	ProjectID         string        `json:"project_id"`
	Priority          int           `json:"priority"` // higher = more urgent
	QueuedAt          time.Time     `json:"queued_at"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	RequiredHotendTemp float64      `json:"required_hotend_temp,omitempty"` // 0 = unspecified
	RequiredBedTemp    float64      `json:"required_bed_temp,omitempty"`    // 0 = unspecified
	QualityProfile     string       `json:"quality_profile,omitempty"`      // preferred printer type
	Status             JobStatus    `json:"status"`
}

// SubmitJobRequest submit job request
type SubmitJobRequest struct {
	ProjectID          string  `json:"project_id"`
	Priority           int     `json:"priority"`
	EstimatedMinutes   int     `json:"estimated_minutes" binding:"required"`
	RequiredHotendTemp float64 `json:"required_hotend_temp,omitempty"`
	RequiredBedTemp    float64 `json:"required_bed_temp,omitempty"`
	QualityProfile     string  `json:"quality_profile,omitempty"`
}

// Assignment binds one job to one printer time slot. Immutable once emitted.
type Assignment struct {
	JobID          string    `json:"job_id"`
	PrinterID      string    `json:"printer_id"`
	EstimatedStart time.Time `json:"estimated_start"`
	EstimatedEnd   time.Time `json:"estimated_end"`
	Priority       int       `json:"priority"`
	Confidence     float64   `json:"confidence"` // 0..1 suitability estimate
}

// ScheduleMetrics derived metrics for one scheduling pass.
type ScheduleMetrics struct {
	AverageWaitMinutes float64            `json:"average_wait_minutes"`
	UtilizationPercent map[string]float64 `json:"utilization_percent"` // per printer, capped at 100
	CompletionTime     time.Time          `json:"completion_time"`     // fleet-wide estimate
	PowerEstimateKWh   float64            `json:"power_estimate_kwh"`
}

// OptimizedSchedule is the output of one scheduling pass.
type OptimizedSchedule struct {
	ID           string               `json:"id"`
	GeneratedAt  time.Time            `json:"generated_at"`
	Assignments  []Assignment         `json:"assignments"`
	Unassigned   []string             `json:"unassigned,omitempty"` // job ids with no eligible printer
	Metrics      ScheduleMetrics      `json:"metrics"`
	Alternatives []*OptimizedSchedule `json:"alternatives,omitempty"`
}

// MaintenanceWindow blocks a set of printers for a time range.
type MaintenanceWindow struct {
	Start      time.Time `json:"start" yaml:"start"`
	End        time.Time `json:"end" yaml:"end"`
	PrinterIDs []string  `json:"printer_ids" yaml:"printer_ids"` // empty = all printers
}

// SchedulingConstraints optional filters for one scheduling invocation.
// Zero values mean "no restriction".
type SchedulingConstraints struct {
	MaxPrintTime       time.Duration       `json:"max_print_time,omitempty"`
	RequiredPrinters   []string            `json:"required_printers,omitempty"`
	PreferredPrinters  []string            `json:"preferred_printers,omitempty"`
	ExcludedPrinters   []string            `json:"excluded_printers,omitempty"`
	AllowedTypes       []string            `json:"allowed_types,omitempty"`
	PowerLimitKWh      float64             `json:"power_limit_kwh,omitempty"`
	WorkStartHour      int                 `json:"work_start_hour,omitempty"`
	WorkEndHour        int                 `json:"work_end_hour,omitempty"` // 0 = no working-hours window
	Timezone           string              `json:"timezone,omitempty"`
	MaintenanceWindows []MaintenanceWindow `json:"maintenance_windows,omitempty"`
}

// HasWorkingHours reports whether a working-hours window is configured.
func (c *SchedulingConstraints) HasWorkingHours() bool {
	return c.WorkEndHour > c.WorkStartHour
}
