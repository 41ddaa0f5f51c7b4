package recovery

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/interfaces"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// Config blacklist thresholds and history bounds.
type Config struct {
	HistoryCap            int           // per-device error history bound
	HistoryBlacklistTotal int           // blacklist when total history reaches this
	ConsecutiveThreshold  int           // errors within ConsecutiveWindow that trigger blacklisting
	ConsecutiveWindow     time.Duration
	BlacklistCooldown     time.Duration
}

// DefaultConfig documented recovery defaults.
func DefaultConfig() Config {
	return Config{
		HistoryCap:            50,
		HistoryBlacklistTotal: 20,
		ConsecutiveThreshold:  5,
		ConsecutiveWindow:     5 * time.Minute,
		BlacklistCooldown:     30 * time.Minute,
	}
}

// Coordinator selects and executes recovery strategies for device errors.
// It never talks to hardware directly; actions are emitted as requests on
// the command channel and the notification sink.
type Coordinator struct {
	mu         sync.Mutex
	cfg        Config
	commands   interfaces.CommandChannel
	notifier   interfaces.Notifier
	strategies map[string]*Strategy
	fallbacks  []fallbackMatcher
	history    map[string][]model.DeviceError
	attempts   map[string]int // keyed device|code
	successes  map[string]int // per device
	failures   map[string]int // per device
	blacklist  map[string]time.Time // device -> reinstatement time
	events     chan model.Event
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewCoordinator creates a coordinator with the default strategy table.
func NewCoordinator(cfg Config, commands interfaces.CommandChannel, notifier interfaces.Notifier) *Coordinator {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 50
	}
	c := &Coordinator{
		cfg:        cfg,
		commands:   commands,
		notifier:   notifier,
		strategies: make(map[string]*Strategy),
		history:    make(map[string][]model.DeviceError),
		attempts:   make(map[string]int),
		successes:  make(map[string]int),
		failures:   make(map[string]int),
		blacklist:  make(map[string]time.Time),
		events:     make(chan model.Event, 64),
		now:        time.Now,
		sleep:      sleepCtx,
	}
	c.registerDefaults()
	return c
}

// Events exposes the coordinator's outbound event stream.
func (c *Coordinator) Events() <-chan model.Event {
	return c.events
}

// HandleError runs the recovery state machine for one device error.
// Returns true when the device recovered.
func (c *Coordinator) HandleError(ctx context.Context, deviceID string, devErr model.DeviceError) (bool, error) {
	if devErr.Timestamp.IsZero() {
		devErr.Timestamp = c.now()
	}

	c.mu.Lock()
	if c.blacklistedLocked(deviceID) {
		c.mu.Unlock()
		logger.Warnf("device %s is blacklisted, rejecting error %s", deviceID, devErr.Code)
		return false, nil
	}

	c.appendHistoryLocked(deviceID, devErr)

	if c.shouldBlacklistLocked(deviceID) {
		reinstate := c.now().Add(c.cfg.BlacklistCooldown)
		c.blacklist[deviceID] = reinstate
		c.mu.Unlock()

		logger.Warnf("device %s blacklisted until %s after repeated errors", deviceID, reinstate.Format(time.RFC3339))
		c.publish(model.Event{
			Type:      model.EventDeviceBlacklisted,
			Payload:   map[string]interface{}{"device_id": deviceID, "reinstate_at": reinstate},
			Timestamp: c.now(),
			DeviceID:  deviceID,
			Severity:  model.SeverityHigh,
		})
		return false, nil
	}

	strategy := c.selectStrategy(devErr)
	if strategy == nil {
		c.mu.Unlock()
		c.reportOutcome(deviceID, devErr, "", 0, false, "no matching strategy")
		return false, nil
	}

	key := attemptKey(deviceID, devErr.Code)
	attempt := c.attempts[key]
	if attempt >= strategy.MaxAttempts {
		c.mu.Unlock()
		c.reportOutcome(deviceID, devErr, strategy.Code, attempt, false, "attempts exhausted")
		return false, nil
	}
	c.mu.Unlock()

	// Exponential backoff before the attempt: base delay x 1.5^attempts.
	backoff := time.Duration(float64(strategy.BaseBackoff) * math.Pow(1.5, float64(attempt)))
	if backoff > 0 {
		if err := c.sleep(ctx, backoff); err != nil {
			return false, err
		}
	}

	recovered := c.executeActions(ctx, deviceID, strategy)

	c.mu.Lock()
	if recovered {
		c.attempts[key] = 0
		c.successes[deviceID]++
	} else {
		c.attempts[key]++
		c.failures[deviceID]++
	}
	c.mu.Unlock()

	reason := ""
	if !recovered {
		reason = "critical action failed"
	}
	c.reportOutcome(deviceID, devErr, strategy.Code, attempt+1, recovered, reason)
	return recovered, nil
}

// executeActions runs the strategy's actions strictly in declared order.
// A failing critical action aborts the sequence; a failing non-critical
// action is logged and skipped.
func (c *Coordinator) executeActions(ctx context.Context, deviceID string, strategy *Strategy) bool {
	for _, action := range strategy.Actions {
		if err := c.executeAction(ctx, deviceID, action); err != nil {
			if action.Critical {
				logger.Errorf("critical %s action failed for device %s: %v", action.Type, deviceID, err)
				return false
			}
			logger.Warnf("non-critical %s action failed for device %s, skipping: %v", action.Type, deviceID, err)
			continue
		}
		if action.Delay > 0 {
			if err := c.sleep(ctx, action.Delay); err != nil {
				return false
			}
		}
	}
	return true
}

func (c *Coordinator) executeAction(ctx context.Context, deviceID string, action model.RecoveryAction) error {
	switch action.Type {
	case model.ActionCommand:
		return c.commands.SendCommand(ctx, deviceID, action.Command, action.Params)
	case model.ActionReset:
		return c.commands.ResetDevice(ctx, deviceID)
	case model.ActionPause:
		return c.commands.PausePrint(ctx, deviceID)
	case model.ActionCancel:
		return c.commands.CancelPrint(ctx, deviceID)
	case model.ActionReconnect:
		return c.commands.Reconnect(ctx, deviceID)
	case model.ActionNotify:
		if c.notifier == nil {
			return nil
		}
		level := action.Params["level"]
		if level == "" {
			level = "warning"
		}
		return c.notifier.Notify(ctx, deviceID, action.Message, level)
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

// IsBlacklisted reports current blacklist membership.
func (c *Coordinator) IsBlacklisted(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blacklistedLocked(deviceID)
}

// ReinstateExpired reverts devices whose cooldown elapsed back to active.
// Reinstatement also clears the device's error history. Called by the
// periodic sweep job; returns the number reinstated.
func (c *Coordinator) ReinstateExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	reinstated := 0
	for deviceID, until := range c.blacklist {
		if now.Before(until) {
			continue
		}
		delete(c.blacklist, deviceID)
		delete(c.history, deviceID)
		reinstated++
		logger.Infof("device %s reinstated from blacklist", deviceID)
	}
	return reinstated
}

// AddStrategy registers or replaces a strategy for an error code.
func (c *Coordinator) AddStrategy(strategy *Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategies[strategy.Code] = strategy
}

// RemoveStrategy unregisters the strategy for an error code.
func (c *Coordinator) RemoveStrategy(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.strategies, code)
}

// ResetAttempts manually clears the attempt counter for a (device, code)
// pair, un-sticking an exhausted pairing.
func (c *Coordinator) ResetAttempts(deviceID, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, attemptKey(deviceID, code))
}

// GetErrorHistory returns a copy of the device's bounded error history.
func (c *Coordinator) GetErrorHistory(deviceID string) []model.DeviceError {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := c.history[deviceID]
	out := make([]model.DeviceError, len(history))
	copy(out, history)
	return out
}

// GetRecoveryStats returns per-device recovery counters.
func (c *Coordinator) GetRecoveryStats() []model.RecoveryStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{})
	for id := range c.history {
		seen[id] = struct{}{}
	}
	for id := range c.successes {
		seen[id] = struct{}{}
	}
	for id := range c.failures {
		seen[id] = struct{}{}
	}

	out := make([]model.RecoveryStats, 0, len(seen))
	for id := range seen {
		stats := model.RecoveryStats{
			DeviceID:    id,
			TotalErrors: len(c.history[id]),
			Successes:   c.successes[id],
			Failures:    c.failures[id],
		}
		if until, ok := c.blacklist[id]; ok && c.now().Before(until) {
			stats.Blacklisted = true
			reinstate := until
			stats.ReinstateAt = &reinstate
		}
		if n := len(c.history[id]); n > 0 {
			last := c.history[id][n-1].Timestamp
			stats.LastErrorAt = &last
		}
		out = append(out, stats)
	}
	return out
}

func (c *Coordinator) appendHistoryLocked(deviceID string, devErr model.DeviceError) {
	history := append(c.history[deviceID], devErr)
	if len(history) > c.cfg.HistoryCap {
		history = history[len(history)-c.cfg.HistoryCap:]
	}
	c.history[deviceID] = history
}

// shouldBlacklistLocked: total history at the hard threshold, or enough
// errors inside the consecutive window.
func (c *Coordinator) shouldBlacklistLocked(deviceID string) bool {
	history := c.history[deviceID]
	if c.cfg.HistoryBlacklistTotal > 0 && len(history) >= c.cfg.HistoryBlacklistTotal {
		return true
	}
	if c.cfg.ConsecutiveThreshold <= 0 {
		return false
	}
	cutoff := c.now().Add(-c.cfg.ConsecutiveWindow)
	recent := 0
	for _, e := range history {
		if e.Timestamp.After(cutoff) {
			recent++
		}
	}
	return recent >= c.cfg.ConsecutiveThreshold
}

func (c *Coordinator) blacklistedLocked(deviceID string) bool {
	until, ok := c.blacklist[deviceID]
	return ok && c.now().Before(until)
}

func (c *Coordinator) reportOutcome(deviceID string, devErr model.DeviceError, strategy string, attempt int, recovered bool, reason string) {
	severity := model.SeverityLow
	if !recovered {
		severity = model.SeverityMedium
	}
	c.publish(model.Event{
		Type: model.EventRecoveryOutcome,
		Payload: model.RecoveryOutcome{
			DeviceID:  deviceID,
			Error:     devErr,
			Strategy:  strategy,
			Attempt:   attempt,
			Recovered: recovered,
			Reason:    reason,
			Timestamp: c.now(),
		},
		Timestamp: c.now(),
		DeviceID:  deviceID,
		Severity:  severity,
	})
}

func (c *Coordinator) publish(event model.Event) {
	select {
	case c.events <- event:
	default:
		logger.Warnf("recovery event channel full, dropping %s event", event.Type)
	}
}

func attemptKey(deviceID, code string) string {
	return deviceID + "|" + code
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
