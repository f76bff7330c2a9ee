package messaging

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Consume subscribes to every channel and runs handler for each message
// until ctx ends. Handler errors are logged and the message is skipped.
func Consume(ctx context.Context, broker Broker, channels []string, handler Handler) error {
	var wg sync.WaitGroup
	for _, ch := range channels {
		msgs, err := broker.Subscribe(ctx, ch)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(channel string, msgs <-chan Message) {
			defer wg.Done()
			for msg := range msgs {
				if err := handler(ctx, msg); err != nil {
					log.Error().Err(err).Str("channel", channel).Msg("message handler failed")
				}
			}
		}(ch, msgs)
	}
	wg.Wait()
	return ctx.Err()
}

// LocalBroker fans messages out to in-process subscribers. It is used when
// no external broker is configured and in tests.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	closed bool
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string][]chan Message)}
}

func (b *LocalBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
	for _, sub := range b.subs[channel] {
		select {
		case sub <- msg:
		default:
			log.Warn().Str("channel", channel).Msg("local subscriber is full, message dropped")
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := make(chan Message, 64)
	b.subs[channel] = append(b.subs[channel], sub)

	go func() {
		<-ctx.Done()
		b.unsubscribe(channel, sub)
	}()
	return sub, nil
}

func (b *LocalBroker) unsubscribe(channel string, sub chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[channel]
	for i, s := range list {
		if s == sub {
			b.subs[channel] = append(list[:i], list[i+1:]...)
			close(sub)
			return
		}
	}
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, list := range b.subs {
		for _, s := range list {
			close(s)
		}
		delete(b.subs, channel)
	}
	return nil
}
