package model

import (
	"time"
)

// Metric names recorded per device.
const (
	MetricHotendTemp = "hotend_temperature"
	MetricBedTemp    = "bed_temperature"
	MetricProgress   = "progress"
)

// TimeSeriesPoint one raw telemetry sample.
type TimeSeriesPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AnomalySeverity qualitative urgency tier.
type AnomalySeverity string

const (
	SeverityLow    AnomalySeverity = "low"
	SeverityMedium AnomalySeverity = "medium"
	SeverityHigh   AnomalySeverity = "high"
)

// Anomaly kinds emitted by the processor.
const (
	AnomalyTemperatureSpike    = "temperature_spike"
	AnomalyProgressStall       = "progress_stall"
	AnomalyUnusualProgressRate = "unusual_progress_rate"
)

// Anomaly is the output of one detection pass. Ephemeral; consumers
// persist or broadcast as needed.
type Anomaly struct {
	Kind      string          `json:"kind"`
	Severity  AnomalySeverity `json:"severity"`
	Message   string          `json:"message"`
	Value     float64         `json:"value"`
	Threshold float64         `json:"threshold"`
	Timestamp time.Time       `json:"timestamp"`
}

// TemperatureStats current reading plus temporal variance over the window.
type TemperatureStats struct {
	Current  float64 `json:"current"`
	Variance float64 `json:"variance"` // population std-dev of windowed readings
}

// ProcessedSnapshot per-device derived state for one processing tick.
// Superseded, not merged, by the next tick.
type ProcessedSnapshot struct {
	DeviceID            string           `json:"device_id"`
	Timestamp           time.Time        `json:"timestamp"`
	HotendTemp          TemperatureStats `json:"hotend_temp"`
	BedTemp             TemperatureStats `json:"bed_temp"`
	Progress            float64          `json:"progress"`
	ProgressRate        float64          `json:"progress_rate"` // percent per minute
	EstimatedCompletion *time.Time       `json:"estimated_completion,omitempty"`
	EfficiencyScore     float64          `json:"efficiency_score"` // 0..1
	Anomalies           []Anomaly        `json:"anomalies,omitempty"`
}

// AggregateMetrics fleet-wide view over a set of devices.
type AggregateMetrics struct {
	DeviceCount        int     `json:"device_count"`
	ActiveDevices      int     `json:"active_devices"` // progress > 0
	AvgProgress        float64 `json:"avg_progress"`   // mean among active devices
	AvgHotendTemp      float64 `json:"avg_hotend_temp"`
	HotendTempVariance float64 `json:"hotend_temp_variance"`
	AvgBedTemp         float64 `json:"avg_bed_temp"`
	BedTempVariance    float64 `json:"bed_temp_variance"`
	TotalAnomalies     int     `json:"total_anomalies"`
}
