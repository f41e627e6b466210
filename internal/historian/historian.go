// Package historian drains the game action queue into Postgres in batches.
package historian

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/memorygame/internal/cache"
	"github.com/sirupsen/logrus"
)

const popTimeout = time.Second

// Source yields queued action records. A nil record with a nil error means the
// wait timed out.
type Source interface {
	PopGameAction(ctx context.Context, timeout time.Duration) (*cache.GameActionRecord, error)
}

// Sink writes one batch atomically. It must tolerate replayed records.
type Sink func(ctx context.Context, records []cache.GameActionRecord) error

type Service struct {
	source     Source
	sink       Sink
	batchSize  int
	flushDelay time.Duration
	maxBacklog int
	logger     *logrus.Logger

	batch     []cache.GameActionRecord
	lastFlush time.Time
}

// NewService builds a historian that flushes every batchSize records or every
// flushDelay, whichever comes first.
func NewService(source Source, sink Sink, batchSize int, flushDelay time.Duration, logger *logrus.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 20
	}
	if flushDelay <= 0 {
		flushDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		source:     source,
		sink:       sink,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		maxBacklog: batchSize * 50,
		logger:     logger,
		batch:      make([]cache.GameActionRecord, 0, batchSize),
	}
}

// Run pops and flushes until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) error {
	s.lastFlush = time.Now()
	s.logger.Info("historian started")
	for {
		if ctx.Err() != nil {
			s.flush(context.WithoutCancel(ctx))
			s.logger.Info("historian stopped")
			return ctx.Err()
		}

		rec, err := s.source.PopGameAction(ctx, popTimeout)
		switch {
		case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			continue
		case err != nil:
			s.logger.WithError(err).Error("failed to pop game action")
			select {
			case <-ctx.Done():
			case <-time.After(popTimeout):
			}
			continue
		case rec != nil:
			s.batch = append(s.batch, *rec)
		}

		if len(s.batch) >= s.batchSize || time.Since(s.lastFlush) >= s.flushDelay {
			s.flush(ctx)
		}
	}
}

// flush writes the pending batch. On failure the records are kept for the next
// attempt, dropping the oldest once the backlog limit is reached.
func (s *Service) flush(ctx context.Context) {
	s.lastFlush = time.Now()
	if len(s.batch) == 0 {
		return
	}

	if err := s.sink(ctx, s.batch); err != nil {
		s.logger.WithError(err).WithField("pending", len(s.batch)).Error("failed to flush game actions")
		if over := len(s.batch) - s.maxBacklog; over > 0 {
			s.logger.WithField("dropped", over).Warn("game action backlog full, dropping oldest records")
			s.batch = append(s.batch[:0], s.batch[over:]...)
		}
		return
	}

	s.logger.WithField("count", len(s.batch)).Debug("flushed game actions")
	s.batch = s.batch[:0]
}

// Pending reports how many records wait for the next flush. Not safe to call
// while Run is active.
func (s *Service) Pending() int {
	return len(s.batch)
}
