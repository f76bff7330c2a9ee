package messaging

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("broker closed")

// Message is a payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe delivers messages until ctx is cancelled or the broker is
	// closed, then closes the returned channel.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
	Close() error
}

// Handler processes one message.
type Handler func(ctx context.Context, msg Message) error
