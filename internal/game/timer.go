// internal/game/timer.go
package game

import (
	"fmt"
	"sync"
	"time"
)

// Ticker is a recurring tick source. *time.Ticker satisfies it through realTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker that fires every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the production TickerFactory.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// GameTimer owns at most one running tick source. Start and Stop are idempotent and
// Stop never waits on the tick goroutine, so both may be called while the caller
// holds a lock that onTick also takes.
type GameTimer struct {
	mu        sync.Mutex
	newTicker TickerFactory
	ticker    Ticker
	done      chan struct{}
}

// NewGameTimer returns a stopped timer. A nil factory falls back to NewRealTicker.
func NewGameTimer(factory TickerFactory) *GameTimer {
	if factory == nil {
		factory = NewRealTicker
	}
	return &GameTimer{newTicker: factory}
}

// Start begins calling onTick every interval. It returns false, and does nothing,
// if a tick source is already active.
func (t *GameTimer) Start(interval time.Duration, onTick func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		return false
	}
	tk := t.newTicker(interval)
	done := make(chan struct{})
	t.ticker = tk
	t.done = done

	go func() {
		for {
			select {
			case <-done:
				return
			case <-tk.C():
				// a tick racing with Stop may still land here; callers drop stale ticks
				onTick()
			}
		}
	}()
	return true
}

// Stop cancels the active tick source. Stopping a stopped timer is a no-op that returns false.
func (t *GameTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker == nil {
		return false
	}
	t.ticker.Stop()
	close(t.done)
	t.ticker = nil
	t.done = nil
	return true
}

// Running reports whether a tick source is active.
func (t *GameTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticker != nil
}

// FormatElapsed renders whole seconds as a zero-padded HH:MM:SS string.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}
