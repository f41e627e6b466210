package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisBus publishes completion messages on a Redis pub/sub channel.
type RedisBus struct {
	rdb     *redis.Client
	channel string
}

func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{rdb: rdb, channel: channel}
}

func (b *RedisBus) NotifyGameCompleted(ctx context.Context) error {
	data, err := encodeCompleted()
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to redis channel %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe starts a goroutine delivering messages until unsubscribe is called or ctx ends.
func (b *RedisBus) Subscribe(ctx context.Context, h Handler) (func(), error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	// Receive blocks until the subscription is confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to redis channel %s: %w", b.channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				msg, err := decode([]byte(m.Payload))
				if err != nil {
					log.WithError(err).Warnf("Ignoring malformed message on %s.", b.channel)
					continue
				}
				h(msg)
			}
		}
	}()
	return cancel, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisBus) Close() error {
	return nil
}
