package historian

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memorygame/internal/cache"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanSource serves records from a channel, timing out like BLPop.
type chanSource struct {
	ch chan cache.GameActionRecord
}

func (s *chanSource) PopGameAction(ctx context.Context, timeout time.Duration) (*cache.GameActionRecord, error) {
	select {
	case rec := <-s.ch:
		return &rec, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]cache.GameActionRecord
	failN   int
}

func (r *recordingSink) write(ctx context.Context, records []cache.GameActionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failN > 0 {
		r.failN--
		return errors.New("db unavailable")
	}
	r.batches = append(r.batches, append([]cache.GameActionRecord(nil), records...))
	return nil
}

func (r *recordingSink) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func (r *recordingSink) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func record(gameID uuid.UUID, idx int) cache.GameActionRecord {
	return cache.GameActionRecord{
		GameID:      gameID,
		ActionIndex: idx,
		ActorUserID: uuid.New(),
		ActionType:  "action_flip",
		Timestamp:   time.Now().UnixMilli(),
	}
}

func startService(t *testing.T, src *chanSource, sink *recordingSink, batchSize int, flushDelay time.Duration) (*Service, context.CancelFunc, chan error) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	svc := NewService(src, sink.write, batchSize, flushDelay, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	return svc, cancel, done
}

func TestFlushesFullBatch(t *testing.T) {
	src := &chanSource{ch: make(chan cache.GameActionRecord, 10)}
	sink := &recordingSink{}
	_, cancel, done := startService(t, src, sink, 3, time.Hour)

	gameID := uuid.New()
	for i := 1; i <= 3; i++ {
		src.ch <- record(gameID, i)
	}
	assert.Eventually(t, func() bool { return sink.total() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, sink.batchCount())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestFlushesOnDelay(t *testing.T) {
	src := &chanSource{ch: make(chan cache.GameActionRecord, 10)}
	sink := &recordingSink{}
	_, cancel, done := startService(t, src, sink, 100, 20*time.Millisecond)
	defer func() { cancel(); <-done }()

	src.ch <- record(uuid.New(), 1)
	// the next pop times out after a second, after which the delay has passed
	assert.Eventually(t, func() bool { return sink.total() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestFlushesRemainderOnShutdown(t *testing.T) {
	src := &chanSource{ch: make(chan cache.GameActionRecord, 10)}
	sink := &recordingSink{}
	_, cancel, done := startService(t, src, sink, 100, time.Hour)

	gameID := uuid.New()
	src.ch <- record(gameID, 1)
	src.ch <- record(gameID, 2)
	require.Eventually(t, func() bool { return len(src.ch) == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 2, sink.total())
}

func TestFailedFlushIsRetried(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sink := &recordingSink{failN: 1}
	svc := NewService(&chanSource{}, sink.write, 2, time.Hour, logger)

	gameID := uuid.New()
	svc.batch = append(svc.batch, record(gameID, 1), record(gameID, 2))
	svc.flush(context.Background())
	assert.Equal(t, 2, svc.Pending())
	assert.Equal(t, 0, sink.total())

	svc.flush(context.Background())
	assert.Equal(t, 0, svc.Pending())
	assert.Equal(t, 2, sink.total())
}

func TestBacklogIsBounded(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sink := &recordingSink{failN: 1}
	svc := NewService(&chanSource{}, sink.write, 1, time.Hour, logger)
	svc.maxBacklog = 2

	gameID := uuid.New()
	for i := 1; i <= 5; i++ {
		svc.batch = append(svc.batch, record(gameID, i))
	}
	svc.flush(context.Background())
	require.Equal(t, 2, svc.Pending())
	assert.Equal(t, 4, svc.batch[0].ActionIndex)
	assert.Equal(t, 5, svc.batch[1].ActionIndex)
}
