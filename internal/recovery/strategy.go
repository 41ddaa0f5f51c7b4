package recovery

import (
	"strings"
	"time"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

// Strategy a codified recovery sequence for one error code.
type Strategy struct {
	Code        string
	MaxAttempts int
	BaseBackoff time.Duration
	Actions     []model.RecoveryAction
	// Applies optionally gates the strategy against the concrete error.
	// A nil predicate always applies.
	Applies func(model.DeviceError) bool
}

func (s *Strategy) applies(err model.DeviceError) bool {
	return s.Applies == nil || s.Applies(err)
}

// fallbackMatcher pairs an auditable code predicate with a strategy.
// Fallbacks are evaluated in registration order; first match wins.
type fallbackMatcher struct {
	name     string
	matches  func(code string) bool
	strategy *Strategy
}

// codeContains builds a case-insensitive substring matcher.
func codeContains(fragment string) func(string) bool {
	fragment = strings.ToUpper(fragment)
	return func(code string) bool {
		return strings.Contains(strings.ToUpper(code), fragment)
	}
}

// matchAny always matches; used for the terminal generic fallback.
func matchAny(string) bool { return true }

// selectStrategy resolves the strategy for an error: exact code match first,
// then the ordered fallback list. Returns nil when nothing applies.
func (c *Coordinator) selectStrategy(err model.DeviceError) *Strategy {
	if s, ok := c.strategies[err.Code]; ok && s.applies(err) {
		return s
	}
	for _, fb := range c.fallbacks {
		if fb.matches(err.Code) && fb.strategy.applies(err) {
			return fb.strategy
		}
	}
	return nil
}
