package broadcast

import (
	"sync"
	"time"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

// rateLimiter enforces a per-event-type sliding one-second window.
// Excess events are dropped by the caller, never queued.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps map[model.EventType][]time.Time
	now    func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		stamps: make(map[model.EventType][]time.Time),
		now:    time.Now,
	}
}

// allow records one event of the given type and reports whether it fits
// inside the rolling window.
func (r *rateLimiter) allow(eventType model.EventType) bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	stamps := r.stamps[eventType]
	kept := stamps[:0]
	for _, t := range stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.limit {
		r.stamps[eventType] = kept
		return false
	}
	r.stamps[eventType] = append(kept, now)
	return true
}
