package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/pkg/logger"
	"github.com/dentalbook/marketplace-api/pkg/messaging"
	"github.com/dentalbook/marketplace-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("BatchSize must be greater than 0")
	case c.PollInterval <= 0:
		return fmt.Errorf("PollInterval must be greater than 0")
	case c.RetryAttempts <= 0:
		return fmt.Errorf("RetryAttempts must be greater than 0")
	case c.RetryDelay <= 0:
		return fmt.Errorf("RetryDelay must be greater than 0")
	}
	return nil
}

// OutboxProcessor relays pending outbox events to the broker. Each event
// is published on the channel named by its event type.
type OutboxProcessor struct {
	store   repository.Store
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	store repository.Store,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("outbox processor: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxProcessor{
		store:   store,
		broker:  broker,
		config:  config,
		logger:  log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start polls until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims up to BatchSize due events and publishes them. It
// returns how many were published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	done := p.metrics.OutboxTimer()
	defer done()

	published := 0
	err := p.store.WithTx(ctx, func(r repository.Repositories) error {
		events, err := r.Outbox().ListPending(ctx, p.config.BatchSize, p.now())
		if err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}
		p.metrics.SetOutboxBatch(len(events))

		for _, event := range events {
			ok, err := p.processEvent(ctx, r.Outbox(), event)
			if err != nil {
				return err
			}
			if ok {
				published++
			}
		}
		return nil
	})
	return published, err
}

// processEvent reports whether the event was published. The returned error
// is a storage failure that aborts the batch.
func (p *OutboxProcessor) processEvent(ctx context.Context, repo repository.OutboxRepository, event *model.OutboxEvent) (bool, error) {
	pubErr := p.broker.Publish(ctx, event.EventType, event.Payload)
	if pubErr == nil {
		p.metrics.ObserveOutbox(true)
		if err := repo.MarkProcessed(ctx, event.ID, p.now()); err != nil {
			return false, fmt.Errorf("mark event %s processed: %w", event.ID, err)
		}
		return true, nil
	}

	attempt := event.RetryCount + 1
	var retryAt *time.Time
	if attempt < p.config.RetryAttempts {
		at := p.now().Add(p.config.RetryDelay * time.Duration(attempt))
		retryAt = &at
		p.metrics.OutboxRetry(event.EventType)
		p.logger.Warn("Publish failed, will retry",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"attempt", attempt,
			"error", pubErr.Error())
	} else {
		p.metrics.ObserveOutbox(false)
		p.logger.Error(pubErr, "Publish failed, giving up",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"attempts", attempt)
	}
	if err := repo.MarkFailed(ctx, event.ID, pubErr.Error(), retryAt); err != nil {
		return false, fmt.Errorf("mark event %s failed: %w", event.ID, err)
	}
	return false, nil
}
