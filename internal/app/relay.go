package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dentalbook/marketplace-api/internal/config"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/internal/service/notification"
	"github.com/dentalbook/marketplace-api/pkg/logger"
	"github.com/dentalbook/marketplace-api/pkg/messaging"
	"github.com/dentalbook/marketplace-api/pkg/metrics"
	"github.com/dentalbook/marketplace-api/pkg/worker"
)

// Relay moves outbox events onto the broker and delivers booking
// notifications from it.
type Relay struct {
	processor *worker.OutboxProcessor
	notifier  *notification.Service
	broker    messaging.Broker
	logger    *logger.Logger
	wg        sync.WaitGroup
}

func NewRelay(cfg *config.Config, store repository.Store, broker messaging.Broker, l *logger.Logger, m *metrics.Metrics) (*Relay, error) {
	processor, err := worker.NewOutboxProcessor(store, broker, cfg.Outbox.ToWorkerConfig(), l, m)
	if err != nil {
		return nil, err
	}
	return &Relay{
		processor: processor,
		notifier:  notification.NewService(store, NewMailer(cfg, l), l),
		broker:    broker,
		logger:    l,
	}, nil
}

// Start runs the relay in the background until ctx ends.
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		err := messaging.Consume(ctx, r.broker, notification.Channels, r.notifier.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error(err, "Notification consumer stopped")
		}
	}()
	go func() {
		defer r.wg.Done()
		r.processor.Start(ctx)
	}()
}

// Wait blocks until both loops have returned.
func (r *Relay) Wait() {
	r.wg.Wait()
}
