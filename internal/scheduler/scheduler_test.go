package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func newTestScheduler(printers ...model.PrinterCapability) *Scheduler {
	s := New(Config{}, nil, nil)
	s.now = func() time.Time { return testNow }
	s.UpdatePrinterCapabilities(printers)
	return s
}

func unlimitedPrinter(id string) model.PrinterCapability {
	return model.PrinterCapability{
		ID:            id,
		Type:          "FDM",
		MaxHotendTemp: 500,
		MaxBedTemp:    200,
	}
}

func testJob(id string, priority int, queuedAt time.Time, duration time.Duration) model.PrintJob {
	return model.PrintJob{
		ID:                id,
		Priority:          priority,
		QueuedAt:          queuedAt,
		EstimatedDuration: duration,
		Status:            model.JobStatusQueued,
	}
}

func TestSchedulePriorityThenFIFO(t *testing.T) {
	s := newTestScheduler(unlimitedPrinter("P1"), unlimitedPrinter("P2"))

	t0 := testNow.Add(-3 * time.Minute)
	t1 := testNow.Add(-2 * time.Minute)
	t2 := testNow.Add(-time.Minute)

	jobs := []model.PrintJob{
		testJob("job-a", 5, t0, time.Hour),
		testJob("job-b", 9, t1, time.Hour),
		testJob("job-c", 5, t2, time.Hour),
	}

	schedule := s.Schedule(jobs, nil)
	require.Len(t, schedule.Assignments, 3)
	assert.Empty(t, schedule.Unassigned)

	// Priority 9 first, then the two priority-5 jobs in queued order.
	assert.Equal(t, "job-b", schedule.Assignments[0].JobID)
	assert.Equal(t, "job-a", schedule.Assignments[1].JobID)
	assert.Equal(t, "job-c", schedule.Assignments[2].JobID)

	// The priority-9 job starts immediately on the first printer in id order.
	assert.Equal(t, "P1", schedule.Assignments[0].PrinterID)
	assert.Equal(t, testNow, schedule.Assignments[0].EstimatedStart)

	// First priority-5 job takes the still-idle P2, the second waits on the
	// earliest next-available slot.
	assert.Equal(t, "P2", schedule.Assignments[1].PrinterID)
	assert.Equal(t, testNow, schedule.Assignments[1].EstimatedStart)
	assert.Equal(t, testNow.Add(time.Hour), schedule.Assignments[2].EstimatedStart)
}

func TestScheduleDeterministic(t *testing.T) {
	jobs := []model.PrintJob{
		testJob("job-1", 3, testNow.Add(-4*time.Minute), 30*time.Minute),
		testJob("job-2", 3, testNow.Add(-3*time.Minute), 45*time.Minute),
		testJob("job-3", 7, testNow.Add(-2*time.Minute), time.Hour),
		testJob("job-4", 1, testNow.Add(-time.Minute), 20*time.Minute),
	}

	s1 := newTestScheduler(unlimitedPrinter("P1"), unlimitedPrinter("P2"), unlimitedPrinter("P3"))
	s2 := newTestScheduler(unlimitedPrinter("P1"), unlimitedPrinter("P2"), unlimitedPrinter("P3"))

	first := s1.Schedule(jobs, nil)
	second := s2.Schedule(jobs, nil)

	require.Equal(t, len(first.Assignments), len(second.Assignments))
	for i := range first.Assignments {
		assert.Equal(t, first.Assignments[i].JobID, second.Assignments[i].JobID)
		assert.Equal(t, first.Assignments[i].PrinterID, second.Assignments[i].PrinterID)
		assert.Equal(t, first.Assignments[i].EstimatedStart, second.Assignments[i].EstimatedStart)
	}
}

func TestScheduleNoPrintersReportsUnassigned(t *testing.T) {
	s := newTestScheduler()

	schedule := s.Schedule([]model.PrintJob{
		testJob("job-1", 5, testNow, time.Hour),
		testJob("job-2", 1, testNow, time.Hour),
	}, nil)

	assert.Empty(t, schedule.Assignments)
	assert.ElementsMatch(t, []string{"job-1", "job-2"}, schedule.Unassigned)
}

func TestScheduleExcludedPrinter(t *testing.T) {
	s := newTestScheduler(unlimitedPrinter("P1"), unlimitedPrinter("P2"))

	schedule := s.Schedule(
		[]model.PrintJob{testJob("job-1", 5, testNow, time.Hour)},
		&model.SchedulingConstraints{ExcludedPrinters: []string{"P1"}},
	)

	require.Len(t, schedule.Assignments, 1)
	assert.Equal(t, "P2", schedule.Assignments[0].PrinterID)
}

func TestScheduleTemperatureCapability(t *testing.T) {
	cold := model.PrinterCapability{ID: "cold", Type: "FDM", MaxHotendTemp: 200, MaxBedTemp: 60}
	hot := model.PrinterCapability{ID: "hot", Type: "FDM", MaxHotendTemp: 300, MaxBedTemp: 120}
	s := newTestScheduler(cold, hot)

	job := testJob("abs-job", 5, testNow, time.Hour)
	job.RequiredHotendTemp = 250
	job.RequiredBedTemp = 100

	schedule := s.Schedule([]model.PrintJob{job}, nil)
	require.Len(t, schedule.Assignments, 1)
	assert.Equal(t, "hot", schedule.Assignments[0].PrinterID)
}

func TestScheduleTypeAllowList(t *testing.T) {
	fdm := unlimitedPrinter("P1")
	sla := unlimitedPrinter("P2")
	sla.Type = "SLA"
	s := newTestScheduler(fdm, sla)

	schedule := s.Schedule(
		[]model.PrintJob{testJob("job-1", 5, testNow, time.Hour)},
		&model.SchedulingConstraints{AllowedTypes: []string{"SLA"}},
	)

	require.Len(t, schedule.Assignments, 1)
	assert.Equal(t, "P2", schedule.Assignments[0].PrinterID)
}

func TestScheduleMaxPrintTime(t *testing.T) {
	s := newTestScheduler(unlimitedPrinter("P1"))

	schedule := s.Schedule(
		[]model.PrintJob{testJob("long-job", 5, testNow, 10*time.Hour)},
		&model.SchedulingConstraints{MaxPrintTime: 2 * time.Hour},
	)

	assert.Empty(t, schedule.Assignments)
	assert.Equal(t, []string{"long-job"}, schedule.Unassigned)
}

func TestScheduleMaintenanceWindow(t *testing.T) {
	s := newTestScheduler(unlimitedPrinter("P1"), unlimitedPrinter("P2"))

	// P1 is down for the next two hours; the job must land on P2.
	constraints := &model.SchedulingConstraints{
		MaintenanceWindows: []model.MaintenanceWindow{
			{Start: testNow, End: testNow.Add(2 * time.Hour), PrinterIDs: []string{"P1"}},
		},
	}

	schedule := s.Schedule([]model.PrintJob{testJob("job-1", 5, testNow, time.Hour)}, constraints)
	require.Len(t, schedule.Assignments, 1)
	assert.Equal(t, "P2", schedule.Assignments[0].PrinterID)
}

func TestScheduleWorkingHours(t *testing.T) {
	s := newTestScheduler(unlimitedPrinter("P1"))

	// testNow is 10:00 UTC; a 2h job fits inside 9-17 but not inside 9-11.
	fits := s.Schedule(
		[]model.PrintJob{testJob("job-1", 5, testNow, 2*time.Hour)},
		&model.SchedulingConstraints{WorkStartHour: 9, WorkEndHour: 17, Timezone: "UTC"},
	)
	require.Len(t, fits.Assignments, 1)

	tight := s.Schedule(
		[]model.PrintJob{testJob("job-2", 5, testNow, 2*time.Hour)},
		&model.SchedulingConstraints{WorkStartHour: 9, WorkEndHour: 11, Timezone: "UTC"},
	)
	assert.Empty(t, tight.Assignments)
	assert.Equal(t, []string{"job-2"}, tight.Unassigned)
}

func TestSchedulePowerLimit(t *testing.T) {
	s := newTestScheduler(unlimitedPrinter("P1"), unlimitedPrinter("P2"))

	jobs := []model.PrintJob{
		testJob("job-1", 9, testNow.Add(-2*time.Minute), time.Hour),
		testJob("job-2", 5, testNow.Add(-time.Minute), time.Hour),
	}
	// 0.5 kWh per job; a 0.6 kWh cap admits exactly one.
	schedule := s.Schedule(jobs, &model.SchedulingConstraints{PowerLimitKWh: 0.6})

	require.Len(t, schedule.Assignments, 1)
	assert.Equal(t, "job-1", schedule.Assignments[0].JobID)
	assert.Equal(t, []string{"job-2"}, schedule.Unassigned)
}

func TestScheduleBlacklistedPrinterSkipped(t *testing.T) {
	s := New(Config{}, nil, blacklistFunc(func(id string) bool { return id == "P1" }))
	s.now = func() time.Time { return testNow }
	s.UpdatePrinterCapabilities([]model.PrinterCapability{unlimitedPrinter("P1"), unlimitedPrinter("P2")})

	schedule := s.Schedule([]model.PrintJob{testJob("job-1", 5, testNow, time.Hour)}, nil)
	require.Len(t, schedule.Assignments, 1)
	assert.Equal(t, "P2", schedule.Assignments[0].PrinterID)
}

type blacklistFunc func(string) bool

func (f blacklistFunc) IsBlacklisted(deviceID string) bool { return f(deviceID) }

func TestScheduleAlternativeIsDeterministic(t *testing.T) {
	s := New(Config{GenerateAlternatives: true}, nil, nil)
	s.now = func() time.Time { return testNow }
	s.UpdatePrinterCapabilities([]model.PrinterCapability{unlimitedPrinter("P1")})

	jobs := []model.PrintJob{
		testJob("short", 5, testNow.Add(-time.Minute), 30*time.Minute),
		testJob("long", 5, testNow.Add(-2*time.Minute), 2*time.Hour),
	}

	schedule := s.Schedule(jobs, nil)
	require.Len(t, schedule.Alternatives, 1)

	// Primary pass keeps FIFO order within a tier; the alternative prefers
	// shorter jobs first.
	assert.Equal(t, "long", schedule.Assignments[0].JobID)
	assert.Equal(t, "short", schedule.Alternatives[0].Assignments[0].JobID)

	again := s.Schedule(jobs, nil)
	assert.Equal(t, schedule.Alternatives[0].Assignments[0].JobID, again.Alternatives[0].Assignments[0].JobID)
}

func TestScheduleConfidence(t *testing.T) {
	cap := model.PrinterCapability{ID: "P1", Type: "high_detail", MaxHotendTemp: 300, MaxBedTemp: 110}
	s := newTestScheduler(cap)

	job := testJob("job-1", 5, testNow, time.Hour)
	job.QualityProfile = "high_detail"
	job.RequiredHotendTemp = 210
	job.RequiredBedTemp = 60

	schedule := s.Schedule([]model.PrintJob{job}, nil)
	require.Len(t, schedule.Assignments, 1)
	// 0.5 base + 0.2 type match + 0.1 hotend headroom + 0.1 bed headroom.
	assert.InDelta(t, 0.9, schedule.Assignments[0].Confidence, 1e-9)
}

func TestScheduleMetrics(t *testing.T) {
	s := newTestScheduler(unlimitedPrinter("P1"), unlimitedPrinter("P2"))

	jobs := []model.PrintJob{
		testJob("job-1", 5, testNow.Add(-time.Minute), 6*time.Hour),
	}
	schedule := s.Schedule(jobs, nil)

	require.Len(t, schedule.Assignments, 1)
	assert.Equal(t, 0.0, schedule.Metrics.AverageWaitMinutes)
	assert.InDelta(t, 25.0, schedule.Metrics.UtilizationPercent["P1"], 1e-9)
	assert.Equal(t, 0.0, schedule.Metrics.UtilizationPercent["P2"])
	assert.Equal(t, testNow.Add(6*time.Hour), schedule.Metrics.CompletionTime)
	assert.InDelta(t, 0.5, schedule.Metrics.PowerEstimateKWh, 1e-9)
}

func TestScheduleRetention(t *testing.T) {
	s := newTestScheduler(unlimitedPrinter("P1"))

	schedule := s.Schedule([]model.PrintJob{testJob("job-1", 5, testNow, time.Hour)}, nil)

	_, ok := s.GetActiveSchedule(schedule.ID)
	require.True(t, ok)

	// Move time past the retention window and sweep.
	s.now = func() time.Time { return testNow.Add(25 * time.Hour) }
	assert.Equal(t, 1, s.EvictExpired())

	_, ok = s.GetActiveSchedule(schedule.ID)
	assert.False(t, ok)
}

func TestMergeConstraints(t *testing.T) {
	defaults := model.SchedulingConstraints{
		WorkStartHour: 9,
		WorkEndHour:   17,
		PowerLimitKWh: 5,
	}

	merged := mergeConstraints(defaults, &model.SchedulingConstraints{
		ExcludedPrinters: []string{"P9"},
	})
	assert.Equal(t, 9, merged.WorkStartHour)
	assert.Equal(t, 17, merged.WorkEndHour)
	assert.Equal(t, 5.0, merged.PowerLimitKWh)
	assert.Equal(t, []string{"P9"}, merged.ExcludedPrinters)

	overridden := mergeConstraints(defaults, &model.SchedulingConstraints{
		WorkStartHour: 0,
		WorkEndHour:   23,
		PowerLimitKWh: 2,
	})
	assert.Equal(t, 23, overridden.WorkEndHour)
	assert.Equal(t, 2.0, overridden.PowerLimitKWh)
}
