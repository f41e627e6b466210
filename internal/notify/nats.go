package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// NATSBus publishes completion messages on a NATS subject.
type NATSBus struct {
	nc      *nats.Conn
	subject string
}

// ConnectNATS dials url and returns a bus on subject.
func ConnectNATS(url, subject string) (*NATSBus, error) {
	nc, err := nats.Connect(url, nats.Name("memorygame"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	if subject == "" {
		subject = DefaultChannel
	}
	return &NATSBus{nc: nc, subject: subject}, nil
}

func (b *NATSBus) NotifyGameCompleted(ctx context.Context) error {
	data, err := encodeCompleted()
	if err != nil {
		return err
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publish to nats subject %s: %w", b.subject, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, h Handler) (func(), error) {
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		msg, err := decode(m.Data)
		if err != nil {
			log.WithError(err).Warnf("Ignoring malformed message on %s.", b.subject)
			return
		}
		h(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to nats subject %s: %w", b.subject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.WithError(err).Debug("nats unsubscribe")
		}
	}, nil
}

// Close drains pending messages and closes the connection.
func (b *NATSBus) Close() error {
	return b.nc.Drain()
}
