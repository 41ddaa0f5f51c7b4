package telemetry

import (
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

// CalculateAggregateMetrics computes a fleet-wide view over the given devices,
// based on each device's latest snapshot. Devices without a snapshot are counted
// but contribute no temperature or progress data.
func (p *Processor) CalculateAggregateMetrics(deviceIDs []string) model.AggregateMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	agg := model.AggregateMetrics{DeviceCount: len(deviceIDs)}

	var hotendTemps, bedTemps []float64
	var progressSum float64

	for _, id := range deviceIDs {
		s, ok := p.latest[id]
		if !ok {
			continue
		}
		hotendTemps = append(hotendTemps, s.HotendTemp.Current)
		bedTemps = append(bedTemps, s.BedTemp.Current)
		agg.TotalAnomalies += len(s.Anomalies)
		if s.Progress > 0 {
			agg.ActiveDevices++
			progressSum += s.Progress
		}
	}

	if agg.ActiveDevices > 0 {
		agg.AvgProgress = progressSum / float64(agg.ActiveDevices)
	}
	agg.AvgHotendTemp = mean(hotendTemps)
	agg.HotendTempVariance = stdDev(hotendTemps)
	agg.AvgBedTemp = mean(bedTemps)
	agg.BedTempVariance = stdDev(bedTemps)
	return agg
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
