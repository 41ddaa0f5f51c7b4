package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/interfaces"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// BlacklistChecker answers whether a device is currently excluded from
// scheduling. Wired to the recovery coordinator by the orchestrator.
type BlacklistChecker interface {
	IsBlacklisted(deviceID string) bool
}

// Config scheduler tunables.
type Config struct {
	PowerPerJobKWh       float64       // fixed per-job power coefficient
	Retention            time.Duration // schedule retention before sweep
	GenerateAlternatives bool          // emit one second-best greedy alternative
}

// Scheduler produces assignment plans for queued jobs against the printer
// capability table. All state is owned by the scheduler; callers get copies.
type Scheduler struct {
	mu           sync.RWMutex
	capabilities map[string]model.PrinterCapability
	defaults     model.SchedulingConstraints
	schedules    map[string]*model.OptimizedSchedule
	cfg          Config
	blacklist    BlacklistChecker
	queue        interfaces.JobQueue
	events       chan model.Event
	now          func() time.Time
}

// New creates a scheduler. queue and blacklist may be nil; Optimize and
// Reschedule require a queue.
func New(cfg Config, queue interfaces.JobQueue, blacklist BlacklistChecker) *Scheduler {
	if cfg.PowerPerJobKWh <= 0 {
		cfg.PowerPerJobKWh = 0.5
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Scheduler{
		capabilities: make(map[string]model.PrinterCapability),
		schedules:    make(map[string]*model.OptimizedSchedule),
		cfg:          cfg,
		blacklist:    blacklist,
		queue:        queue,
		events:       make(chan model.Event, 64),
		now:          time.Now,
	}
}

// Events exposes the scheduler's outbound event stream.
func (s *Scheduler) Events() <-chan model.Event {
	return s.events
}

// Schedule runs one scheduling pass over the given jobs. A pass never fails:
// with no registered printers it returns a schedule with zero assignments and
// every job reported unassigned.
func (s *Scheduler) Schedule(jobs []model.PrintJob, constraints *model.SchedulingConstraints) *model.OptimizedSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := mergeConstraints(s.defaults, constraints)
	now := s.now()

	schedule := s.buildSchedule(jobs, merged, now, byPriorityThenFIFO)
	if s.cfg.GenerateAlternatives {
		alt := s.buildSchedule(jobs, merged, now, byPriorityThenDuration)
		schedule.Alternatives = []*model.OptimizedSchedule{alt}
	}

	s.schedules[schedule.ID] = schedule
	s.publish(model.Event{
		Type:      model.EventScheduleGenerated,
		Payload:   schedule,
		Timestamp: now,
	})

	logger.Infof("schedule %s generated: %d assigned, %d unassigned",
		schedule.ID, len(schedule.Assignments), len(schedule.Unassigned))
	return schedule
}

// buildSchedule is one greedy pass with the given job ordering.
func (s *Scheduler) buildSchedule(jobs []model.PrintJob, c model.SchedulingConstraints, now time.Time, order jobOrder) *model.OptimizedSchedule {
	sorted := make([]model.PrintJob, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, j int) bool { return order(sorted[i], sorted[j]) })

	// Every known, non-blacklisted printer starts available now.
	available := make(map[string]time.Time, len(s.capabilities))
	for id := range s.capabilities {
		if s.blacklist != nil && s.blacklist.IsBlacklisted(id) {
			continue
		}
		available[id] = now
	}

	schedule := &model.OptimizedSchedule{
		ID:          uuid.New().String(),
		GeneratedAt: now,
	}

	for _, job := range sorted {
		if c.PowerLimitKWh > 0 && float64(len(schedule.Assignments)+1)*s.cfg.PowerPerJobKWh > c.PowerLimitKWh {
			schedule.Unassigned = append(schedule.Unassigned, job.ID)
			continue
		}

		assignment, ok := s.assignJob(job, available, c)
		if !ok {
			schedule.Unassigned = append(schedule.Unassigned, job.ID)
			continue
		}

		schedule.Assignments = append(schedule.Assignments, assignment)
		if assignment.EstimatedEnd.After(available[assignment.PrinterID]) {
			available[assignment.PrinterID] = assignment.EstimatedEnd
		}
	}

	schedule.Metrics = computeMetrics(schedule.Assignments, available, now, s.cfg.PowerPerJobKWh)
	return schedule
}

// assignJob picks the eligible printer yielding the earliest projected start.
// Ties go to the first eligible printer encountered; eligible printers are
// visited in sorted id order so a pass is deterministic for equal inputs.
func (s *Scheduler) assignJob(job model.PrintJob, available map[string]time.Time, c model.SchedulingConstraints) (model.Assignment, bool) {
	eligible := eligiblePrinters(job, s.capabilities, c)
	sort.Strings(eligible)

	var best string
	var bestStart time.Time
	found := false

	for _, printerID := range eligible {
		start, ok := available[printerID]
		if !ok {
			continue // blacklisted or unknown
		}
		end := start.Add(job.EstimatedDuration)
		if !windowAllowed(printerID, start, end, job.EstimatedDuration, c) {
			continue
		}
		if !found || start.Before(bestStart) {
			best, bestStart, found = printerID, start, true
		}
	}

	if !found {
		return model.Assignment{}, false
	}

	cap := s.capabilities[best]
	return model.Assignment{
		JobID:          job.ID,
		PrinterID:      best,
		EstimatedStart: bestStart,
		EstimatedEnd:   bestStart.Add(job.EstimatedDuration),
		Priority:       job.Priority,
		Confidence:     confidence(job, cap),
	}, true
}

// Optimize pulls the currently pending jobs and recomputes from scratch.
// A non-empty printerIDs restricts candidacy to those printers.
func (s *Scheduler) Optimize(ctx context.Context, printerIDs []string, constraints *model.SchedulingConstraints) (*model.OptimizedSchedule, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("job queue not configured")
	}
	jobs, err := s.queue.PendingJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pull pending jobs: %w", err)
	}

	effective := constraints
	if len(printerIDs) > 0 {
		restricted := model.SchedulingConstraints{PreferredPrinters: printerIDs}
		if constraints != nil {
			restricted = *constraints
			restricted.PreferredPrinters = printerIDs
		}
		effective = &restricted
	}

	return s.Schedule(jobs, effective), nil
}

// Reschedule recomputes assignments for the given jobs (or all pending jobs
// when jobIDs is empty) and reports the reason as a queue event.
func (s *Scheduler) Reschedule(ctx context.Context, reason string, jobIDs []string) (*model.OptimizedSchedule, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("job queue not configured")
	}
	jobs, err := s.queue.PendingJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pull pending jobs: %w", err)
	}

	if len(jobIDs) > 0 {
		wanted := toSet(jobIDs)
		filtered := jobs[:0]
		for _, j := range jobs {
			if _, ok := wanted[j.ID]; ok {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}

	logger.Infof("rescheduling %d jobs: %s", len(jobs), reason)
	schedule := s.Schedule(jobs, nil)

	s.publish(model.Event{
		Type:      model.EventQueueUpdated,
		Payload:   map[string]interface{}{"reason": reason, "schedule_id": schedule.ID, "jobs": len(jobs)},
		Timestamp: schedule.GeneratedAt,
	})
	return schedule, nil
}

// UpdatePrinterCapabilities upserts capability records. Read-only during a
// scheduling pass; updates apply to subsequent passes.
func (s *Scheduler) UpdatePrinterCapabilities(capabilities []model.PrinterCapability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range capabilities {
		s.capabilities[c.ID] = c
	}
}

// RemovePrinter drops a device from the capability table.
func (s *Scheduler) RemovePrinter(printerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.capabilities, printerID)
}

// UpdateSchedulingConstraints replaces the process-wide default constraints.
func (s *Scheduler) UpdateSchedulingConstraints(c model.SchedulingConstraints) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = c
}

// GetActiveSchedule returns a retained schedule by id.
func (s *Scheduler) GetActiveSchedule(id string) (*model.OptimizedSchedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return nil, false
	}
	copied := *schedule
	return &copied, true
}

// GetAllActiveSchedules returns every retained schedule, newest first.
func (s *Scheduler) GetAllActiveSchedules() []*model.OptimizedSchedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.OptimizedSchedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		copied := *schedule
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	return out
}

// EvictExpired drops schedules older than the retention window. Called by
// the periodic sweep job; returns the number evicted.
func (s *Scheduler) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.cfg.Retention)
	evicted := 0
	for id, schedule := range s.schedules {
		if schedule.GeneratedAt.Before(cutoff) {
			delete(s.schedules, id)
			evicted++
		}
	}
	return evicted
}

func (s *Scheduler) publish(event model.Event) {
	select {
	case s.events <- event:
	default:
		logger.Warnf("scheduler event channel full, dropping %s event", event.Type)
	}
}

// jobOrder is a strict-weak ordering over jobs for one greedy pass.
type jobOrder func(a, b model.PrintJob) bool

// byPriorityThenFIFO: priority descending, queued-at ascending within a tier.
func byPriorityThenFIFO(a, b model.PrintJob) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.QueuedAt.Before(b.QueuedAt)
}

// byPriorityThenDuration: the alternative-schedule tie-break; shorter jobs
// first within a priority tier.
func byPriorityThenDuration(a, b model.PrintJob) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.EstimatedDuration != b.EstimatedDuration {
		return a.EstimatedDuration < b.EstimatedDuration
	}
	return a.QueuedAt.Before(b.QueuedAt)
}
