package model

import (
	"time"
)

// EventType broadcast event type tag.
type EventType string

const (
	EventPrinterStatus     EventType = "printer:status"
	EventPrinterProgress   EventType = "printer:progress"
	EventPrinterError      EventType = "printer:error"
	EventAnomalyDetected   EventType = "anomaly:detected"
	EventRecoveryOutcome   EventType = "recovery:outcome"
	EventDeviceBlacklisted EventType = "recovery:blacklisted"
	EventScheduleGenerated EventType = "schedule:generated"
	EventQueueUpdated      EventType = "queue:updated"
	EventSystemAlert       EventType = "system:alert"
)

// Event is the unit flowing from the core components to the broadcaster.
// Either delivered immediately (high severity) or buffered in a batch window.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Type      EventType       `json:"type"`
	Payload   interface{}     `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Room      string          `json:"room,omitempty"`      // explicit target room
	DeviceID  string          `json:"device_id,omitempty"` // subscription routing key
	Severity  AnomalySeverity `json:"severity,omitempty"`
}

// HighSeverity reports whether the event bypasses batching.
func (e *Event) HighSeverity() bool {
	if e.Severity == SeverityHigh {
		return true
	}
	return e.Type == EventSystemAlert
}
