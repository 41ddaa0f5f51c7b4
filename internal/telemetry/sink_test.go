package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

func TestSinkCapacityEvictsOldest(t *testing.T) {
	sink := NewSink(3)
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		sink.RecordPoint("dev-1", model.MetricProgress, model.TimeSeriesPoint{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Value:     float64(i),
		})
	}

	assert.Equal(t, 3, sink.Len("dev-1", model.MetricProgress))

	points := sink.Window("dev-1", model.MetricProgress, time.Time{})
	require.Len(t, points, 3)
	// Oldest-first, with the two earliest samples evicted.
	assert.Equal(t, 2.0, points[0].Value)
	assert.Equal(t, 4.0, points[2].Value)
}

func TestSinkWindowFiltersBySince(t *testing.T) {
	sink := NewSink(10)
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		sink.RecordPoint("dev-1", model.MetricHotendTemp, model.TimeSeriesPoint{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     200 + float64(i),
		})
	}

	points := sink.Window("dev-1", model.MetricHotendTemp, base.Add(2*time.Minute))
	require.Len(t, points, 2)
	assert.Equal(t, 202.0, points[0].Value)
}

func TestSinkLatest(t *testing.T) {
	sink := NewSink(10)

	_, ok := sink.Latest("dev-1", model.MetricBedTemp)
	assert.False(t, ok)

	sink.Record("dev-1", model.MetricBedTemp, 60, nil)
	sink.Record("dev-1", model.MetricBedTemp, 61, nil)

	latest, ok := sink.Latest("dev-1", model.MetricBedTemp)
	require.True(t, ok)
	assert.Equal(t, 61.0, latest.Value)
}

func TestSinkDevicesSorted(t *testing.T) {
	sink := NewSink(10)
	sink.Record("zeta", model.MetricProgress, 1, nil)
	sink.Record("alpha", model.MetricProgress, 1, nil)

	assert.Equal(t, []string{"alpha", "zeta"}, sink.Devices())
}
