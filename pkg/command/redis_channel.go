package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

const channelPrefix = "device:commands:"

// RedisCommandChannel publishes device command requests over Redis pub/sub.
// Device agents subscribe to their own channel; delivery confirmation is the
// agent's problem, matching the fire-and-forget contract.
type RedisCommandChannel struct {
	client *redis.Client
}

// NewRedisCommandChannel creates the command channel.
func NewRedisCommandChannel(client *redis.Client) *RedisCommandChannel {
	return &RedisCommandChannel{client: client}
}

type commandMessage struct {
	Action    string            `json:"action"` // command, reconnect, reset, pause, cancel
	Command   string            `json:"command,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func (r *RedisCommandChannel) publish(ctx context.Context, deviceID string, msg commandMessage) error {
	msg.Timestamp = time.Now()
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	if err := r.client.Publish(ctx, channelPrefix+deviceID, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish command to device %s: %w", deviceID, err)
	}
	logger.Debugf("command %s published to device %s", msg.Action, deviceID)
	return nil
}

// SendCommand sends a raw command (e.g. G-code) to a device.
func (r *RedisCommandChannel) SendCommand(ctx context.Context, deviceID, command string, params map[string]string) error {
	return r.publish(ctx, deviceID, commandMessage{Action: "command", Command: command, Params: params})
}

// Reconnect re-establishes the device connection.
func (r *RedisCommandChannel) Reconnect(ctx context.Context, deviceID string) error {
	return r.publish(ctx, deviceID, commandMessage{Action: "reconnect"})
}

// ResetDevice performs a soft reset of the device.
func (r *RedisCommandChannel) ResetDevice(ctx context.Context, deviceID string) error {
	return r.publish(ctx, deviceID, commandMessage{Action: "reset"})
}

// PausePrint pauses the active print on a device.
func (r *RedisCommandChannel) PausePrint(ctx context.Context, deviceID string) error {
	return r.publish(ctx, deviceID, commandMessage{Action: "pause"})
}

// CancelPrint cancels the active print on a device.
func (r *RedisCommandChannel) CancelPrint(ctx context.Context, deviceID string) error {
	return r.publish(ctx, deviceID, commandMessage{Action: "cancel"})
}
