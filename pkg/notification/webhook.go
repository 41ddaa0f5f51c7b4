package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/config"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// WebhookNotifier posts device notifications to a configured webhook.
// With no URL configured every call is a silent no-op so recovery
// notification actions still succeed.
type WebhookNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
// Priority: config file > environment variable.
func NewWebhookNotifier() *WebhookNotifier {
	var webhookURL string
	if config.GlobalConfig != nil && config.GlobalConfig.Notification.WebhookURL != "" {
		webhookURL = config.GlobalConfig.Notification.WebhookURL
		logger.Info("Using notification webhook URL from config file")
	} else {
		webhookURL = os.Getenv("NOTIFICATION_WEBHOOK_URL")
		if webhookURL != "" {
			logger.Info("Using notification webhook URL from environment variable")
		}
	}

	if webhookURL == "" {
		logger.Warn("notification webhook URL not configured (check config file or NOTIFICATION_WEBHOOK_URL env), notifications will be disabled")
	}

	return &WebhookNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookMessage struct {
	DeviceID  string    `json:"device_id"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Notify posts one notification.
func (w *WebhookNotifier) Notify(ctx context.Context, deviceID, message, level string) error {
	if w.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(webhookMessage{
		DeviceID:  deviceID,
		Message:   message,
		Level:     level,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}

	logger.Infof("notification sent for device %s (level %s)", deviceID, level)
	return nil
}
