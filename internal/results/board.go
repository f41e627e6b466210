// Package results keeps the leaderboard shown to clients in sync with the
// results store. It loads once, then reloads whenever a completion message
// arrives on the notifier.
package results

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/memorygame/internal/game"
	"github.com/jason-s-yu/memorygame/internal/models"
	"github.com/jason-s-yu/memorygame/internal/notify"
	"github.com/sirupsen/logrus"
)

// DateLayout renders CompletedOn, e.g. "March 04, 2025, 07:15:09 PM".
const DateLayout = "January 02, 2006, 03:04:05 PM"

const refreshTimeout = 5 * time.Second

// Lister reads stored results in leaderboard order.
type Lister interface {
	ListResults(ctx context.Context, limit int) ([]models.GameResult, error)
}

// FormatRow converts a stored result into the row clients display.
func FormatRow(r models.GameResult, loc *time.Location) models.ResultRow {
	if loc == nil {
		loc = time.UTC
	}
	return models.ResultRow{
		Player:      r.PlayerName,
		Time:        game.FormatElapsed(r.Seconds),
		Moves:       r.Moves,
		CompletedOn: r.CompletedOn.In(loc).Format(DateLayout),
	}
}

// FormatRows converts a list, never returning nil.
func FormatRows(results []models.GameResult, loc *time.Location) []models.ResultRow {
	rows := make([]models.ResultRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, FormatRow(r, loc))
	}
	return rows
}

// Board caches the last fetched rows and fans refreshes out to subscribers.
type Board struct {
	lister   Lister
	limit    int
	location *time.Location
	logger   *logrus.Logger

	mu      sync.RWMutex
	rows    []models.ResultRow
	loaded  bool
	subs    map[int]chan []models.ResultRow
	nextSub int

	refreshMu sync.Mutex
}

func NewBoard(lister Lister, limit int, loc *time.Location, logger *logrus.Logger) *Board {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Board{
		lister:   lister,
		limit:    limit,
		location: loc,
		logger:   logger,
		subs:     make(map[int]chan []models.ResultRow),
	}
}

// Limit is the row count the board fetches.
func (b *Board) Limit() int { return b.limit }

// Rows returns the cached rows, loading them on first use.
func (b *Board) Rows(ctx context.Context) ([]models.ResultRow, error) {
	b.mu.RLock()
	if b.loaded {
		rows := append([]models.ResultRow(nil), b.rows...)
		b.mu.RUnlock()
		return rows, nil
	}
	b.mu.RUnlock()
	return b.Refresh(ctx)
}

// Refresh re-reads the store, replaces the cache and pushes the rows to every
// subscriber. On error the cache is left as it was.
func (b *Board) Refresh(ctx context.Context) ([]models.ResultRow, error) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	results, err := b.lister.ListResults(ctx, b.limit)
	if err != nil {
		return nil, err
	}
	rows := FormatRows(results, b.location)

	b.mu.Lock()
	b.rows = rows
	b.loaded = true
	for _, ch := range b.subs {
		push(ch, rows)
	}
	b.mu.Unlock()

	return append([]models.ResultRow(nil), rows...), nil
}

// push replaces any unread update so slow readers only see the latest list.
func push(ch chan []models.ResultRow, rows []models.ResultRow) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- rows:
	default:
	}
}

// Subscribe returns a channel receiving every refreshed list and a cancel func.
// Rows delivered on the channel are shared and must not be modified.
func (b *Board) Subscribe() (<-chan []models.ResultRow, func()) {
	ch := make(chan []models.ResultRow, 1)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Board) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Listen refreshes the board on every completion message from bus.
func (b *Board) Listen(ctx context.Context, bus notify.Bus) (func(), error) {
	return bus.Subscribe(ctx, func(msg notify.Message) {
		if !msg.IsGameCompleted {
			return
		}
		rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()
		if _, err := b.Refresh(rctx); err != nil {
			b.logger.WithError(err).Warn("results refresh failed")
			return
		}
		b.logger.WithField("subscribers", b.Subscribers()).Debug("results refreshed")
	})
}
