// internal/notify/notify.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultChannel is the Redis channel / NATS subject carrying completion messages.
const DefaultChannel = "memory_game"

// Message is the only thing ever published: a flag saying a new result exists.
type Message struct {
	IsGameCompleted bool `json:"isGameCompleted"`
}

// Handler receives decoded messages.
type Handler func(msg Message)

// Bus publishes and delivers completion messages. Publishing is broadcast with no
// acknowledgement; subscribers re-fetch whatever they display.
type Bus interface {
	NotifyGameCompleted(ctx context.Context) error
	Subscribe(ctx context.Context, h Handler) (unsubscribe func(), err error)
	Close() error
}

func encodeCompleted() ([]byte, error) {
	data, err := json.Marshal(Message{IsGameCompleted: true})
	if err != nil {
		return nil, fmt.Errorf("marshal completion message: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode completion message: %w", err)
	}
	return msg, nil
}

// LocalBus delivers messages to in-process subscribers. Used when no broker is configured.
type LocalBus struct {
	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]Handler)}
}

// NotifyGameCompleted calls every subscriber synchronously.
func (b *LocalBus) NotifyGameCompleted(ctx context.Context) error {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(Message{IsGameCompleted: true})
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}, nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[int]Handler)
	return nil
}
