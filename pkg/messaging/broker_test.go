package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBrokerFanOut(t *testing.T) {
	b := NewLocalBroker()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := b.Subscribe(ctx, "booking.approved")
	require.NoError(t, err)
	second, err := b.Subscribe(ctx, "booking.approved")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "booking.rejected")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "booking.approved", []byte(`{"bookingId":1}`)))

	for _, ch := range []<-chan Message{first, second} {
		select {
		case msg := <-ch:
			assert.Equal(t, "booking.approved", msg.Channel)
			assert.JSONEq(t, `{"bookingId":1}`, string(msg.Payload))
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
	select {
	case <-other:
		t.Fatal("unexpected message on other channel")
	default:
	}
}

func TestLocalBrokerClosed(t *testing.T) {
	b := NewLocalBroker()
	sub, err := b.Subscribe(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, open := <-sub
	assert.False(t, open)
	assert.ErrorIs(t, b.Publish(context.Background(), "x", nil), ErrClosed)
}

func TestConsumeRunsHandlerUntilCancelled(t *testing.T) {
	b := NewLocalBroker()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		done <- Consume(ctx, b, []string{"a", "b"}, func(_ context.Context, msg Message) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, msg.Channel)
			if msg.Channel == "b" {
				return errors.New("handler failure is logged, not fatal")
			}
			return nil
		})
	}()
	<-ready

	require.Eventually(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return len(b.subs["a"]) == 1 && len(b.subs["b"]) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(ctx, "a", []byte("1")))
	require.NoError(t, b.Publish(ctx, "b", []byte("2")))
	require.NoError(t, b.Publish(ctx, "a", []byte("3")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after cancel")
	}
}
