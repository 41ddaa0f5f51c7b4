package model

import (
	"time"
)

// Well-known device error codes with default recovery strategies.
const (
	ErrorMinTemp       = "MINTEMP"
	ErrorMaxTemp       = "MAXTEMP"
	ErrorCommunication = "COMMUNICATION_ERROR"
	ErrorBedLeveling   = "BED_LEVELING_FAILED"
	ErrorFilamentOut   = "FILAMENT_RUNOUT"
	ErrorPowerLoss     = "POWER_LOSS"
	ErrorGeneric       = "GENERIC_ERROR"
)

// DeviceError one error event raised by device I/O.
type DeviceError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Context   map[string]string `json:"context,omitempty"`
}

// ActionType typed recovery action kinds.
type ActionType string

const (
	ActionCommand   ActionType = "command" // send a G-code/command to the device
	ActionReset     ActionType = "reset"
	ActionPause     ActionType = "pause"
	ActionCancel    ActionType = "cancel"
	ActionReconnect ActionType = "reconnect"
	ActionNotify    ActionType = "notification"
)

// RecoveryAction one step of a recovery sequence. A failing critical action
// aborts the remaining sequence; a failing non-critical one is skipped.
type RecoveryAction struct {
	Type     ActionType        `json:"type"`
	Command  string            `json:"command,omitempty"` // for ActionCommand
	Message  string            `json:"message,omitempty"` // for ActionNotify
	Params   map[string]string `json:"params,omitempty"`
	Critical bool              `json:"critical,omitempty"`
	Delay    time.Duration     `json:"delay,omitempty"` // wait before the next action
}

// RecoveryOutcome reported to observers after each recovery attempt.
type RecoveryOutcome struct {
	DeviceID  string      `json:"device_id"`
	Error     DeviceError `json:"error"`
	Strategy  string      `json:"strategy"`
	Attempt   int         `json:"attempt"`
	Recovered bool        `json:"recovered"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// RecoveryStats per-device recovery counters.
type RecoveryStats struct {
	DeviceID     string     `json:"device_id"`
	TotalErrors  int        `json:"total_errors"`
	Successes    int        `json:"successes"`
	Failures     int        `json:"failures"`
	Blacklisted  bool       `json:"blacklisted"`
	ReinstateAt  *time.Time `json:"reinstate_at,omitempty"`
	LastErrorAt  *time.Time `json:"last_error_at,omitempty"`
}
