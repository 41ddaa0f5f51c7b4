package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

// ring is a fixed-capacity buffer of samples. Oldest points are
// overwritten once capacity is reached.
type ring struct {
	points []model.TimeSeriesPoint
	next   int
	size   int
}

func newRing(capacity int) *ring {
	return &ring{points: make([]model.TimeSeriesPoint, capacity)}
}

func (r *ring) add(p model.TimeSeriesPoint) {
	r.points[r.next] = p
	r.next = (r.next + 1) % len(r.points)
	if r.size < len(r.points) {
		r.size++
	}
}

// ordered returns the buffered points oldest-first.
func (r *ring) ordered() []model.TimeSeriesPoint {
	out := make([]model.TimeSeriesPoint, 0, r.size)
	start := r.next - r.size
	if start < 0 {
		start += len(r.points)
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.points[(start+i)%len(r.points)])
	}
	return out
}

// Sink holds per-(device, metric) rolling buffers of raw telemetry samples.
type Sink struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[string]map[string]*ring // device -> metric -> buffer
	now      func() time.Time
}

// NewSink creates a sink with the given per-key buffer capacity.
func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = 500
	}
	return &Sink{
		capacity: capacity,
		buffers:  make(map[string]map[string]*ring),
		now:      time.Now,
	}
}

// Record ingests one sample, stamped with the current time.
// Fire-and-forget; never blocks.
func (s *Sink) Record(deviceID, metric string, value float64, metadata map[string]string) {
	s.RecordPoint(deviceID, metric, model.TimeSeriesPoint{
		Timestamp: s.now(),
		Value:     value,
		Metadata:  metadata,
	})
}

// RecordPoint ingests a sample with an explicit timestamp.
func (s *Sink) RecordPoint(deviceID, metric string, point model.TimeSeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics, ok := s.buffers[deviceID]
	if !ok {
		metrics = make(map[string]*ring)
		s.buffers[deviceID] = metrics
	}
	buf, ok := metrics[metric]
	if !ok {
		buf = newRing(s.capacity)
		metrics[metric] = buf
	}
	buf.add(point)
}

// Window returns the buffered samples for a key at or after since, oldest-first.
func (s *Sink) Window(deviceID, metric string, since time.Time) []model.TimeSeriesPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics, ok := s.buffers[deviceID]
	if !ok {
		return nil
	}
	buf, ok := metrics[metric]
	if !ok {
		return nil
	}

	var out []model.TimeSeriesPoint
	for _, p := range buf.ordered() {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out
}

// Latest returns the most recent sample for a key.
func (s *Sink) Latest(deviceID, metric string) (model.TimeSeriesPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics, ok := s.buffers[deviceID]
	if !ok {
		return model.TimeSeriesPoint{}, false
	}
	buf, ok := metrics[metric]
	if !ok || buf.size == 0 {
		return model.TimeSeriesPoint{}, false
	}
	points := buf.ordered()
	return points[len(points)-1], true
}

// Len returns the number of buffered samples for a key.
func (s *Sink) Len(deviceID, metric string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if metrics, ok := s.buffers[deviceID]; ok {
		if buf, ok := metrics[metric]; ok {
			return buf.size
		}
	}
	return 0
}

// Devices returns all device ids with at least one buffered sample, sorted.
func (s *Sink) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]string, 0, len(s.buffers))
	for id := range s.buffers {
		devices = append(devices, id)
	}
	sort.Strings(devices)
	return devices
}
