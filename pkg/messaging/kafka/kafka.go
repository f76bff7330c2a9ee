package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/dentalbook/marketplace-api/pkg/messaging"
	"github.com/dentalbook/marketplace-api/pkg/metrics"
)

type Config struct {
	Brokers []string
	GroupID string
}

// KafkaBroker maps broker channels to Kafka topics of the same name.
type KafkaBroker struct {
	cfg     Config
	writer  *kafka.Writer
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	readers []*kafka.Reader
}

var _ messaging.Broker = (*KafkaBroker)(nil)

func NewKafkaBroker(cfg Config, logger zerolog.Logger, m *metrics.Metrics) (*KafkaBroker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		BatchSize:              1,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaBroker{cfg: cfg, writer: writer, logger: logger, metrics: m}, nil
}

func (b *KafkaBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: channel,
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(channel)},
		},
	})
	b.metrics.ObservePublish("kafka", err)
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", channel, err)
	}
	return nil
}

func (b *KafkaBroker) Subscribe(ctx context.Context, channel string) (<-chan messaging.Message, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.cfg.Brokers,
		Topic:    channel,
		GroupID:  b.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	out := make(chan messaging.Message, 100)
	go func() {
		defer close(out)
		for {
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				b.logger.Error().Err(err).Str("topic", channel).Msg("failed to fetch message")
				continue
			}
			select {
			case out <- messaging.Message{Channel: msg.Topic, Payload: msg.Value}:
			case <-ctx.Done():
				return
			}
			if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				b.logger.Error().Err(err).Str("topic", channel).Msg("failed to commit message")
			}
		}
	}()
	return out, nil
}

func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	readers := b.readers
	b.readers = nil
	b.mu.Unlock()

	errs := []error{b.writer.Close()}
	for _, r := range readers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
