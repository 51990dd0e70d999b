// internal/game/rules.go
package game

import (
	"fmt"
	"time"
)

// Rules holds the per-room timing knobs. Zero values fall back to the defaults below.
type Rules struct {
	ThrowInWindowMs int `json:"throwInWindowMs"` // how long attackers may throw in after a take
	VoteWindowSec   int `json:"voteWindowSec"`   // how long the rematch vote stays open
	FinishGraceSec  int `json:"finishGraceSec"`  // how long a finished room lingers before disposal
}

const (
	DefaultThrowInWindowMs = 3000
	DefaultVoteWindowSec   = 20
	DefaultFinishGraceSec  = 30
)

// DefaultRules returns the rules a room gets when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		ThrowInWindowMs: DefaultThrowInWindowMs,
		VoteWindowSec:   DefaultVoteWindowSec,
		FinishGraceSec:  DefaultFinishGraceSec,
	}
}

// Update overrides rules present in newRules. Missing or nil keys keep their old value.
func (rules *Rules) Update(newRules map[string]interface{}) error {
	assignInt := func(field *int, key string, minVal, maxVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var n int
		switch v := val.(type) {
		case float64:
			// JSON numbers decode as float64
			n = int(v)
		case int:
			n = v
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if n < minVal || n > maxVal {
			return fmt.Errorf("%s must be between %d and %d", key, minVal, maxVal)
		}
		*field = n
		return nil
	}

	if err := assignInt(&rules.ThrowInWindowMs, "throwInWindowMs", 500, 30000); err != nil {
		return err
	}
	if err := assignInt(&rules.VoteWindowSec, "voteWindowSec", 5, 120); err != nil {
		return err
	}
	if err := assignInt(&rules.FinishGraceSec, "finishGraceSec", 1, 600); err != nil {
		return err
	}
	return nil
}

// ParseRules applies a client supplied map on top of current and validates the types.
func ParseRules(rules map[string]interface{}, current Rules) (Rules, error) {
	parsed := current
	err := parsed.Update(rules)
	return parsed, err
}

func (rules Rules) withDefaults() Rules {
	def := DefaultRules()
	if rules.ThrowInWindowMs <= 0 {
		rules.ThrowInWindowMs = def.ThrowInWindowMs
	}
	if rules.VoteWindowSec <= 0 {
		rules.VoteWindowSec = def.VoteWindowSec
	}
	if rules.FinishGraceSec <= 0 {
		rules.FinishGraceSec = def.FinishGraceSec
	}
	return rules
}

func (rules Rules) throwInWindow() time.Duration {
	return time.Duration(rules.ThrowInWindowMs) * time.Millisecond
}

func (rules Rules) voteWindow() time.Duration {
	return time.Duration(rules.VoteWindowSec) * time.Second
}

func (rules Rules) finishGrace() time.Duration {
	return time.Duration(rules.FinishGraceSec) * time.Second
}
