package recovery

import (
	"time"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

// registerDefaults installs the built-in strategy table and fallback
// matchers. Strategies remain mutable via AddStrategy/RemoveStrategy.
func (c *Coordinator) registerDefaults() {
	c.strategies[model.ErrorMinTemp] = &Strategy{
		Code:        model.ErrorMinTemp,
		MaxAttempts: 3,
		BaseBackoff: 5 * time.Second,
		Actions: []model.RecoveryAction{
			{Type: model.ActionCommand, Command: "M104 S0", Critical: true}, // hotend heater off
			{Type: model.ActionCommand, Command: "M140 S0"},                 // bed heater off
			{Type: model.ActionPause, Critical: true},
			{Type: model.ActionNotify, Message: "minimum temperature fault, print paused"},
		},
	}

	c.strategies[model.ErrorMaxTemp] = &Strategy{
		Code:        model.ErrorMaxTemp,
		MaxAttempts: 2,
		BaseBackoff: 10 * time.Second,
		Actions: []model.RecoveryAction{
			{Type: model.ActionCommand, Command: "M104 S0", Critical: true},
			{Type: model.ActionCommand, Command: "M140 S0", Critical: true},
			{Type: model.ActionCancel, Critical: true},
			{Type: model.ActionNotify, Message: "maximum temperature fault, print cancelled"},
		},
	}

	c.strategies[model.ErrorCommunication] = &Strategy{
		Code:        model.ErrorCommunication,
		MaxAttempts: 5,
		BaseBackoff: 2 * time.Second,
		Actions: []model.RecoveryAction{
			{Type: model.ActionReconnect, Critical: true, Delay: time.Second},
			{Type: model.ActionCommand, Command: "M115"}, // firmware query to verify the link
		},
	}

	c.strategies[model.ErrorBedLeveling] = &Strategy{
		Code:        model.ErrorBedLeveling,
		MaxAttempts: 3,
		BaseBackoff: 5 * time.Second,
		Actions: []model.RecoveryAction{
			{Type: model.ActionCommand, Command: "G28", Critical: true, Delay: 2 * time.Second}, // home all axes
			{Type: model.ActionCommand, Command: "G29"},                                        // auto bed leveling
		},
	}

	c.strategies[model.ErrorFilamentOut] = &Strategy{
		Code:        model.ErrorFilamentOut,
		MaxAttempts: 1,
		BaseBackoff: 0,
		Actions: []model.RecoveryAction{
			{Type: model.ActionPause, Critical: true},
			{Type: model.ActionNotify, Message: "filament runout, print paused for reload"},
		},
	}

	c.strategies[model.ErrorPowerLoss] = &Strategy{
		Code:        model.ErrorPowerLoss,
		MaxAttempts: 3,
		BaseBackoff: 5 * time.Second,
		Actions: []model.RecoveryAction{
			{Type: model.ActionReconnect, Critical: true, Delay: 2 * time.Second},
			{Type: model.ActionCommand, Command: "M1000"}, // resume from power-loss state if the firmware supports it
		},
	}

	genericReset := &Strategy{
		Code:        model.ErrorGeneric,
		MaxAttempts: 2,
		BaseBackoff: 5 * time.Second,
		Actions: []model.RecoveryAction{
			{Type: model.ActionReset, Critical: true, Delay: 3 * time.Second},
			{Type: model.ActionCommand, Command: "M115"},
		},
	}

	c.fallbacks = []fallbackMatcher{
		{name: "temperature-fault", matches: codeContains("TEMP"), strategy: c.strategies[model.ErrorMaxTemp]},
		{
			name:    "communication-fault",
			matches: codeContains("COMM"),
			// Permanent link failures (e.g. unplugged device) are not worth retrying.
			strategy: &Strategy{
				Code:        model.ErrorCommunication,
				MaxAttempts: 5,
				BaseBackoff: 2 * time.Second,
				Actions:     c.strategies[model.ErrorCommunication].Actions,
				Applies: func(err model.DeviceError) bool {
					return err.Context["permanent"] != "true"
				},
			},
		},
		{name: "generic-reset", matches: matchAny, strategy: genericReset},
	}
}
