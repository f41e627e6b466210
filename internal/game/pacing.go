// internal/game/pacing.go
package game

import (
	"fmt"
	"time"
)

// Pacing holds the tunable delays of a session. None of them affect game outcomes.
type Pacing struct {
	RevealDelay  time.Duration // both cards stay visible this long before being hidden or marked matched
	WinDelay     time.Duration // pause between the final match and the win event
	TickInterval time.Duration // game clock period; one elapsed second per tick
}

// DefaultPacing mirrors the classic board: 1s reveal, 2s before the win dialog, 1s ticks.
func DefaultPacing() Pacing {
	return Pacing{
		RevealDelay:  time.Second,
		WinDelay:     2 * time.Second,
		TickInterval: time.Second,
	}
}

// Update applies millisecond overrides from a decoded JSON object.
// Keys that are absent keep their old value. Only the presentation delays can be
// overridden; the tick interval drives the recorded time and stays server-side.
func (p *Pacing) Update(overrides map[string]interface{}) error {
	assignMillis := func(field *time.Duration, key string, minMillis int) error {
		val, exists := overrides[key]
		if !exists || val == nil {
			return nil
		}
		var millis int
		switch v := val.(type) {
		case float64:
			millis = int(v)
		case int:
			millis = v
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if millis < minMillis {
			return fmt.Errorf("%s must be at least %d", key, minMillis)
		}
		*field = time.Duration(millis) * time.Millisecond
		return nil
	}

	if err := assignMillis(&p.RevealDelay, "revealDelayMs", 0); err != nil {
		return err
	}
	if err := assignMillis(&p.WinDelay, "winDelayMs", 0); err != nil {
		return err
	}
	return nil
}

// ParsePacing returns a copy of current with overrides applied.
func ParsePacing(overrides map[string]interface{}, current Pacing) (Pacing, error) {
	pacing := current
	err := pacing.Update(overrides)
	return pacing, err
}
