package telemetry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// Config thresholds and windows for one processor instance.
type Config struct {
	TempWindow        time.Duration // lookback for temperature metrics
	ProgressWindow    time.Duration // lookback for progress (longer)
	VarianceThreshold float64       // degrees C; spike above this
	MinProgressRate   float64       // percent per minute
	MaxProgressRate   float64       // percent per minute
	HistoryRetention  time.Duration // processed snapshot history
}

// DefaultConfig returns the documented processor defaults.
func DefaultConfig() Config {
	return Config{
		TempWindow:        5 * time.Minute,
		ProgressWindow:    15 * time.Minute,
		VarianceThreshold: 5.0,
		MinProgressRate:   0.1,
		MaxProgressRate:   10.0,
		HistoryRetention:  24 * time.Hour,
	}
}

// Processor consumes sink snapshots on a periodic tick and derives
// per-device ProcessedSnapshots with anomaly detection.
type Processor struct {
	mu      sync.RWMutex
	sink    *Sink
	cfg     Config
	latest  map[string]*model.ProcessedSnapshot
	history map[string][]model.ProcessedSnapshot
	events  chan model.Event
	now     func() time.Time
}

// NewProcessor creates a processor over the given sink.
func NewProcessor(sink *Sink, cfg Config) *Processor {
	if cfg.TempWindow <= 0 {
		cfg.TempWindow = 5 * time.Minute
	}
	if cfg.ProgressWindow <= 0 {
		cfg.ProgressWindow = 15 * time.Minute
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 24 * time.Hour
	}
	return &Processor{
		sink:    sink,
		cfg:     cfg,
		latest:  make(map[string]*model.ProcessedSnapshot),
		history: make(map[string][]model.ProcessedSnapshot),
		events:  make(chan model.Event, 256),
		now:     time.Now,
	}
}

// Events exposes the processor's outbound event stream. The orchestrator
// owns the subscription.
func (p *Processor) Events() <-chan model.Event {
	return p.events
}

// Ingest records one raw sample. Fire-and-forget.
func (p *Processor) Ingest(deviceID, metric string, value float64) {
	p.sink.Record(deviceID, metric, value, nil)
}

// ProcessAll runs one processing tick over every device with buffered samples.
func (p *Processor) ProcessAll(ctx context.Context) error {
	for _, deviceID := range p.sink.Devices() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.ProcessDevice(deviceID)
	}
	return nil
}

// ProcessDevice computes one snapshot for a device. Returns nil when either
// temperature stream has no samples in the window (insufficient data).
func (p *Processor) ProcessDevice(deviceID string) *model.ProcessedSnapshot {
	now := p.now()
	hotend := p.sink.Window(deviceID, model.MetricHotendTemp, now.Add(-p.cfg.TempWindow))
	bed := p.sink.Window(deviceID, model.MetricBedTemp, now.Add(-p.cfg.TempWindow))
	if len(hotend) == 0 || len(bed) == 0 {
		return nil
	}
	progress := p.sink.Window(deviceID, model.MetricProgress, now.Add(-p.cfg.ProgressWindow))

	snapshot := &model.ProcessedSnapshot{
		DeviceID:  deviceID,
		Timestamp: now,
		HotendTemp: model.TemperatureStats{
			Current:  hotend[len(hotend)-1].Value,
			Variance: stdDev(values(hotend)),
		},
		BedTemp: model.TemperatureStats{
			Current:  bed[len(bed)-1].Value,
			Variance: stdDev(values(bed)),
		},
	}

	if len(progress) > 0 {
		snapshot.Progress = progress[len(progress)-1].Value
	}
	// A single sample yields no rate; a zero ProgressRate then means
	// "unknown", not "stalled".
	rateKnown := len(progress) >= 2
	if rateKnown {
		first, last := progress[0], progress[len(progress)-1]
		elapsed := last.Timestamp.Sub(first.Timestamp).Minutes()
		if elapsed > 0 {
			snapshot.ProgressRate = (last.Value - first.Value) / elapsed
		}
		if snapshot.ProgressRate > 0 && snapshot.Progress < 100 {
			eta := now.Add(time.Duration((100-snapshot.Progress)/snapshot.ProgressRate * float64(time.Minute)))
			snapshot.EstimatedCompletion = &eta
		}
	}

	snapshot.Anomalies = p.detectAnomalies(snapshot, rateKnown)
	snapshot.EfficiencyScore = efficiencyScore(snapshot.Anomalies)

	p.store(snapshot)
	p.publishAnomalies(snapshot)
	return snapshot
}

// detectAnomalies evaluates each rule independently; zero or more may fire.
// The progress rules are skipped when the rate could not be computed.
func (p *Processor) detectAnomalies(s *model.ProcessedSnapshot, rateKnown bool) []model.Anomaly {
	var anomalies []model.Anomaly

	for _, temp := range []struct {
		name  string
		stats model.TemperatureStats
	}{
		{"hotend", s.HotendTemp},
		{"bed", s.BedTemp},
	} {
		if p.cfg.VarianceThreshold > 0 && temp.stats.Variance > p.cfg.VarianceThreshold {
			severity := model.SeverityMedium
			if temp.stats.Variance > 2*p.cfg.VarianceThreshold {
				severity = model.SeverityHigh
			}
			anomalies = append(anomalies, model.Anomaly{
				Kind:      model.AnomalyTemperatureSpike,
				Severity:  severity,
				Message:   fmt.Sprintf("%s temperature variance %.2f exceeds threshold %.2f", temp.name, temp.stats.Variance, p.cfg.VarianceThreshold),
				Value:     temp.stats.Variance,
				Threshold: p.cfg.VarianceThreshold,
				Timestamp: s.Timestamp,
			})
		}
	}

	// Progress rules only apply mid-print, and only once a rate exists.
	if rateKnown && s.Progress > 0 && s.Progress < 100 {
		if s.ProgressRate < p.cfg.MinProgressRate {
			severity := model.SeverityMedium
			if s.ProgressRate == 0 {
				severity = model.SeverityHigh
			}
			anomalies = append(anomalies, model.Anomaly{
				Kind:      model.AnomalyProgressStall,
				Severity:  severity,
				Message:   fmt.Sprintf("progress rate %.3f%%/min below minimum %.3f%%/min", s.ProgressRate, p.cfg.MinProgressRate),
				Value:     s.ProgressRate,
				Threshold: p.cfg.MinProgressRate,
				Timestamp: s.Timestamp,
			})
		}
		if p.cfg.MaxProgressRate > 0 && s.ProgressRate > p.cfg.MaxProgressRate {
			anomalies = append(anomalies, model.Anomaly{
				Kind:      model.AnomalyUnusualProgressRate,
				Severity:  model.SeverityMedium,
				Message:   fmt.Sprintf("progress rate %.3f%%/min above maximum %.3f%%/min", s.ProgressRate, p.cfg.MaxProgressRate),
				Value:     s.ProgressRate,
				Threshold: p.cfg.MaxProgressRate,
				Timestamp: s.Timestamp,
			})
		}
	}

	return anomalies
}

// store keeps the latest snapshot and appends it to the device history,
// pruning entries older than the retention period. Retention is enforced
// lazily at write time.
func (p *Processor) store(s *model.ProcessedSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest[s.DeviceID] = s

	cutoff := s.Timestamp.Add(-p.cfg.HistoryRetention)
	history := p.history[s.DeviceID]
	kept := history[:0]
	for _, h := range history {
		if h.Timestamp.After(cutoff) {
			kept = append(kept, h)
		}
	}
	p.history[s.DeviceID] = append(kept, *s)
}

func (p *Processor) publishAnomalies(s *model.ProcessedSnapshot) {
	for _, a := range s.Anomalies {
		event := model.Event{
			Type:      model.EventAnomalyDetected,
			Payload:   a,
			Timestamp: a.Timestamp,
			DeviceID:  s.DeviceID,
			Severity:  a.Severity,
		}
		select {
		case p.events <- event:
		default:
			logger.Warnf("telemetry event channel full, dropping %s anomaly for device %s", a.Kind, s.DeviceID)
		}
	}
}

// GetProcessedData returns the latest snapshot for a device.
func (p *Processor) GetProcessedData(deviceID string) (*model.ProcessedSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.latest[deviceID]
	if !ok {
		return nil, false
	}
	copied := *s
	return &copied, true
}

// GetMetricsHistory returns snapshots recorded within the last N hours.
func (p *Processor) GetMetricsHistory(deviceID string, hours int) []model.ProcessedSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cutoff := p.now().Add(-time.Duration(hours) * time.Hour)
	var out []model.ProcessedSnapshot
	for _, s := range p.history[deviceID] {
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// GetTimeSeriesData returns raw samples for one metric over the last N hours.
func (p *Processor) GetTimeSeriesData(deviceID, metric string, hours int) []model.TimeSeriesPoint {
	return p.sink.Window(deviceID, metric, p.now().Add(-time.Duration(hours)*time.Hour))
}

// values extracts the sample values from a window.
func values(points []model.TimeSeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// stdDev population standard deviation: mean of squared deviations, then
// square root. This is temporal variance of repeated readings; a steady
// setpoint reads near zero.
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// efficiencyScore degrades from 1.0 with each detected anomaly.
func efficiencyScore(anomalies []model.Anomaly) float64 {
	score := 1.0
	for _, a := range anomalies {
		switch a.Severity {
		case model.SeverityHigh:
			score -= 0.25
		case model.SeverityMedium:
			score -= 0.1
		default:
			score -= 0.05
		}
	}
	return math.Max(0, score)
}
