package scheduler

import (
	"time"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

// computeMetrics derives schedule-level metrics from one pass.
// Utilization is committed busy time over a 24h horizon, capped at 100%.
// The power estimate is a flat per-job coefficient, not device-specific.
func computeMetrics(assignments []model.Assignment, available map[string]time.Time, now time.Time, powerPerJobKWh float64) model.ScheduleMetrics {
	metrics := model.ScheduleMetrics{
		UtilizationPercent: make(map[string]float64, len(available)),
		CompletionTime:     now,
		PowerEstimateKWh:   float64(len(assignments)) * powerPerJobKWh,
	}

	busy := make(map[string]time.Duration, len(available))
	waitSum := 0.0
	for _, a := range assignments {
		waitSum += a.EstimatedStart.Sub(now).Minutes()
		busy[a.PrinterID] += a.EstimatedEnd.Sub(a.EstimatedStart)
	}
	if len(assignments) > 0 {
		metrics.AverageWaitMinutes = waitSum / float64(len(assignments))
	}

	const horizon = 24 * time.Hour
	for printerID := range available {
		utilization := busy[printerID].Hours() / horizon.Hours() * 100
		if utilization > 100 {
			utilization = 100
		}
		metrics.UtilizationPercent[printerID] = utilization
	}

	for _, next := range available {
		if next.After(metrics.CompletionTime) {
			metrics.CompletionTime = next
		}
	}
	return metrics
}
