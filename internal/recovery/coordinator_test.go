package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

var coordNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type mockCommands struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (m *mockCommands) record(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, label)
	if m.fail != nil {
		if err, ok := m.fail[label]; ok {
			return err
		}
	}
	return nil
}

func (m *mockCommands) SendCommand(_ context.Context, _ string, command string, _ map[string]string) error {
	return m.record("command:" + command)
}
func (m *mockCommands) Reconnect(context.Context, string) error   { return m.record("reconnect") }
func (m *mockCommands) ResetDevice(context.Context, string) error { return m.record("reset") }
func (m *mockCommands) PausePrint(context.Context, string) error  { return m.record("pause") }
func (m *mockCommands) CancelPrint(context.Context, string) error { return m.record("cancel") }

func (m *mockCommands) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
	levels   []string
}

func (m *mockNotifier) Notify(_ context.Context, _ string, message, level string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	m.levels = append(m.levels, level)
	return nil
}

// newTestCoordinator pins the clock and replaces the backoff sleep with a
// recorder so tests run instantly.
func newTestCoordinator(cfg Config, commands *mockCommands) (*Coordinator, *[]time.Duration) {
	c := NewCoordinator(cfg, commands, &mockNotifier{})
	c.now = func() time.Time { return coordNow }
	slept := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return c, slept
}

func drainEvents(c *Coordinator) []model.Event {
	var out []model.Event
	for {
		select {
		case e := <-c.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestHandleErrorExecutesStrategyInOrder(t *testing.T) {
	commands := &mockCommands{}
	c, _ := newTestCoordinator(DefaultConfig(), commands)

	recovered, err := c.HandleError(context.Background(), "dev-1", model.DeviceError{Code: model.ErrorMinTemp})
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, []string{"command:M104 S0", "command:M140 S0", "pause"}, commands.callLog())

	events := drainEvents(c)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventRecoveryOutcome, events[0].Type)
	outcome := events[0].Payload.(model.RecoveryOutcome)
	assert.True(t, outcome.Recovered)
	assert.Equal(t, model.ErrorMinTemp, outcome.Strategy)
	assert.Equal(t, 1, outcome.Attempt)
}

func TestCriticalActionFailureAbortsSequence(t *testing.T) {
	commands := &mockCommands{fail: map[string]error{"pause": errors.New("device busy")}}
	c, _ := newTestCoordinator(DefaultConfig(), commands)

	recovered, err := c.HandleError(context.Background(), "dev-1", model.DeviceError{Code: model.ErrorFilamentOut})
	require.NoError(t, err)
	assert.False(t, recovered)
	// Pause is critical, so the notify action after it never runs.
	assert.Equal(t, []string{"pause"}, commands.callLog())

	events := drainEvents(c)
	require.Len(t, events, 1)
	outcome := events[0].Payload.(model.RecoveryOutcome)
	assert.False(t, outcome.Recovered)
	assert.Equal(t, "critical action failed", outcome.Reason)
}

func TestNonCriticalActionFailureIsSkipped(t *testing.T) {
	commands := &mockCommands{fail: map[string]error{"command:M140 S0": errors.New("bed offline")}}
	c, _ := newTestCoordinator(DefaultConfig(), commands)

	recovered, err := c.HandleError(context.Background(), "dev-1", model.DeviceError{Code: model.ErrorMinTemp})
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, []string{"command:M104 S0", "command:M140 S0", "pause"}, commands.callLog())
}

func TestBackoffGrowsPerAttempt(t *testing.T) {
	commands := &mockCommands{fail: map[string]error{"reconnect": errors.New("no route")}}
	c, slept := newTestCoordinator(DefaultConfig(), commands)

	devErr := model.DeviceError{Code: model.ErrorCommunication}
	for i := 0; i < 3; i++ {
		recovered, err := c.HandleError(context.Background(), "dev-1", devErr)
		require.NoError(t, err)
		assert.False(t, recovered)
	}

	// Base backoff 2s scaled by 1.5 per failed attempt.
	require.Len(t, *slept, 3)
	assert.Equal(t, 2*time.Second, (*slept)[0])
	assert.Equal(t, 3*time.Second, (*slept)[1])
	assert.Equal(t, 4500*time.Millisecond, (*slept)[2])
}

func TestSuccessResetsAttemptCounter(t *testing.T) {
	commands := &mockCommands{fail: map[string]error{"reconnect": errors.New("no route")}}
	c, slept := newTestCoordinator(DefaultConfig(), commands)

	devErr := model.DeviceError{Code: model.ErrorCommunication}
	_, err := c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)

	// The link comes back; the next attempt succeeds and resets the counter.
	commands.fail = nil
	recovered, err := c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)
	assert.True(t, recovered)

	commands.fail = map[string]error{"reconnect": errors.New("no route")}
	_, err = c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)

	// Recorded sleeps: first backoff, grown second backoff, the successful
	// reconnect's 1s action delay, then the third backoff back at the base
	// delay instead of 1.5^2 x base.
	require.Len(t, *slept, 4)
	assert.Equal(t, 3*time.Second, (*slept)[1])
	assert.Equal(t, time.Second, (*slept)[2])
	assert.Equal(t, 2*time.Second, (*slept)[3])
}

func TestAttemptsExhausted(t *testing.T) {
	commands := &mockCommands{fail: map[string]error{"pause": errors.New("device busy")}}
	cfg := DefaultConfig()
	cfg.ConsecutiveThreshold = 0
	c, _ := newTestCoordinator(cfg, commands)

	devErr := model.DeviceError{Code: model.ErrorFilamentOut} // MaxAttempts 1

	_, err := c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)
	drainEvents(c)

	recovered, err := c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)
	assert.False(t, recovered)
	// No second pause attempt was made.
	assert.Equal(t, []string{"pause"}, commands.callLog())

	events := drainEvents(c)
	require.Len(t, events, 1)
	outcome := events[0].Payload.(model.RecoveryOutcome)
	assert.Equal(t, "attempts exhausted", outcome.Reason)

	// A manual reset un-sticks the pairing.
	c.ResetAttempts("dev-1", model.ErrorFilamentOut)
	_, err = c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)
	assert.Equal(t, []string{"pause", "pause"}, commands.callLog())
}

func TestConsecutiveErrorsBlacklistDevice(t *testing.T) {
	commands := &mockCommands{}
	cfg := DefaultConfig()
	cfg.ConsecutiveThreshold = 3
	c, _ := newTestCoordinator(cfg, commands)

	devErr := model.DeviceError{Code: model.ErrorBedLeveling}
	for i := 0; i < 2; i++ {
		recovered, err := c.HandleError(context.Background(), "dev-1", devErr)
		require.NoError(t, err)
		assert.True(t, recovered)
	}
	drainEvents(c)

	// Third error within the window trips the blacklist before any strategy runs.
	recovered, err := c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.True(t, c.IsBlacklisted("dev-1"))
	assert.Len(t, commands.callLog(), 4) // two recoveries of two commands each, nothing more

	events := drainEvents(c)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventDeviceBlacklisted, events[0].Type)
	assert.Equal(t, model.SeverityHigh, events[0].Severity)

	// While blacklisted, further errors are rejected without touching history.
	before := len(c.GetErrorHistory("dev-1"))
	recovered, err = c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Len(t, c.GetErrorHistory("dev-1"), before)
}

func TestErrorsOutsideWindowDoNotBlacklist(t *testing.T) {
	commands := &mockCommands{}
	cfg := DefaultConfig()
	cfg.ConsecutiveThreshold = 3
	c, _ := newTestCoordinator(cfg, commands)

	// Three errors, but the first two are stamped outside the 5-minute window.
	old := model.DeviceError{Code: model.ErrorBedLeveling, Timestamp: coordNow.Add(-10 * time.Minute)}
	for i := 0; i < 2; i++ {
		_, err := c.HandleError(context.Background(), "dev-1", old)
		require.NoError(t, err)
	}
	_, err := c.HandleError(context.Background(), "dev-1", model.DeviceError{Code: model.ErrorBedLeveling})
	require.NoError(t, err)

	assert.False(t, c.IsBlacklisted("dev-1"))
}

func TestTotalHistoryBlacklist(t *testing.T) {
	commands := &mockCommands{}
	cfg := DefaultConfig()
	cfg.HistoryBlacklistTotal = 3
	cfg.ConsecutiveThreshold = 0
	c, _ := newTestCoordinator(cfg, commands)

	devErr := model.DeviceError{Code: model.ErrorBedLeveling, Timestamp: coordNow.Add(-time.Hour)}
	for i := 0; i < 2; i++ {
		_, err := c.HandleError(context.Background(), "dev-1", devErr)
		require.NoError(t, err)
	}
	_, err := c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)
	assert.True(t, c.IsBlacklisted("dev-1"))
}

func TestReinstateExpiredClearsHistory(t *testing.T) {
	commands := &mockCommands{}
	cfg := DefaultConfig()
	cfg.ConsecutiveThreshold = 2
	c, _ := newTestCoordinator(cfg, commands)

	devErr := model.DeviceError{Code: model.ErrorBedLeveling}
	_, err := c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)
	_, err = c.HandleError(context.Background(), "dev-1", devErr)
	require.NoError(t, err)
	require.True(t, c.IsBlacklisted("dev-1"))

	// Before the cooldown elapses nothing is reinstated.
	assert.Equal(t, 0, c.ReinstateExpired())

	c.now = func() time.Time { return coordNow.Add(cfg.BlacklistCooldown + time.Minute) }
	assert.Equal(t, 1, c.ReinstateExpired())
	assert.False(t, c.IsBlacklisted("dev-1"))
	assert.Empty(t, c.GetErrorHistory("dev-1"))
}

func TestHistoryIsBounded(t *testing.T) {
	commands := &mockCommands{}
	cfg := DefaultConfig()
	cfg.HistoryCap = 3
	cfg.HistoryBlacklistTotal = 0
	cfg.ConsecutiveThreshold = 0
	c, _ := newTestCoordinator(cfg, commands)

	for i := 0; i < 5; i++ {
		_, err := c.HandleError(context.Background(), "dev-1", model.DeviceError{
			Code:      model.ErrorBedLeveling,
			Message:   string(rune('a' + i)),
			Timestamp: coordNow.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	history := c.GetErrorHistory("dev-1")
	require.Len(t, history, 3)
	assert.Equal(t, "c", history[0].Message)
	assert.Equal(t, "e", history[2].Message)
}

func TestFallbackTemperatureMatch(t *testing.T) {
	commands := &mockCommands{}
	c, _ := newTestCoordinator(DefaultConfig(), commands)

	// Unknown code containing TEMP resolves to the MAXTEMP strategy.
	recovered, err := c.HandleError(context.Background(), "dev-1", model.DeviceError{Code: "THERMAL_TEMP_RUNAWAY"})
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Contains(t, commands.callLog(), "cancel")

	events := drainEvents(c)
	require.Len(t, events, 1)
	outcome := events[0].Payload.(model.RecoveryOutcome)
	assert.Equal(t, model.ErrorMaxTemp, outcome.Strategy)
}

func TestPermanentCommunicationFaultFallsThrough(t *testing.T) {
	commands := &mockCommands{}
	c, _ := newTestCoordinator(DefaultConfig(), commands)

	// A permanent link failure skips the reconnect fallback and lands on the
	// generic reset.
	recovered, err := c.HandleError(context.Background(), "dev-1", model.DeviceError{
		Code:    "COMM_TIMEOUT",
		Context: map[string]string{"permanent": "true"},
	})
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, []string{"reset", "command:M115"}, commands.callLog())

	events := drainEvents(c)
	require.Len(t, events, 1)
	outcome := events[0].Payload.(model.RecoveryOutcome)
	assert.Equal(t, model.ErrorGeneric, outcome.Strategy)
}

func TestTransientCommunicationFaultReconnects(t *testing.T) {
	commands := &mockCommands{}
	c, _ := newTestCoordinator(DefaultConfig(), commands)

	recovered, err := c.HandleError(context.Background(), "dev-1", model.DeviceError{Code: "COMM_TIMEOUT"})
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, []string{"reconnect", "command:M115"}, commands.callLog())
}

func TestNoMatchingStrategy(t *testing.T) {
	commands := &mockCommands{}
	c, _ := newTestCoordinator(DefaultConfig(), commands)
	c.strategies = map[string]*Strategy{}
	c.fallbacks = nil

	recovered, err := c.HandleError(context.Background(), "dev-1", model.DeviceError{Code: "UNKNOWN"})
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Empty(t, commands.callLog())

	events := drainEvents(c)
	require.Len(t, events, 1)
	outcome := events[0].Payload.(model.RecoveryOutcome)
	assert.Equal(t, "no matching strategy", outcome.Reason)
	assert.Empty(t, outcome.Strategy)
}

func TestGetRecoveryStats(t *testing.T) {
	commands := &mockCommands{fail: map[string]error{"pause": errors.New("device busy")}}
	c, _ := newTestCoordinator(DefaultConfig(), commands)

	_, err := c.HandleError(context.Background(), "dev-1", model.DeviceError{Code: model.ErrorFilamentOut})
	require.NoError(t, err)
	commands.fail = nil
	_, err = c.HandleError(context.Background(), "dev-1", model.DeviceError{Code: model.ErrorMinTemp})
	require.NoError(t, err)

	stats := c.GetRecoveryStats()
	require.Len(t, stats, 1)
	assert.Equal(t, "dev-1", stats[0].DeviceID)
	assert.Equal(t, 2, stats[0].TotalErrors)
	assert.Equal(t, 1, stats[0].Successes)
	assert.Equal(t, 1, stats[0].Failures)
	assert.False(t, stats[0].Blacklisted)
	require.NotNil(t, stats[0].LastErrorAt)
}
