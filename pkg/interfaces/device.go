package interfaces

import (
	"context"
)

// CommandChannel is the fire-and-forget request path to physical devices.
// Delivery confirmation is a transport concern, not the core's.
type CommandChannel interface {
	// SendCommand sends a raw command (e.g. G-code) to a device.
	SendCommand(ctx context.Context, deviceID, command string, params map[string]string) error

	// Reconnect re-establishes the device connection.
	Reconnect(ctx context.Context, deviceID string) error

	// ResetDevice performs a soft reset of the device.
	ResetDevice(ctx context.Context, deviceID string) error

	// PausePrint pauses the active print on a device.
	PausePrint(ctx context.Context, deviceID string) error

	// CancelPrint cancels the active print on a device.
	CancelPrint(ctx context.Context, deviceID string) error
}

// Notifier delivers human-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, deviceID, message, level string) error
}
