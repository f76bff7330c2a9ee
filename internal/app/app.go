// Package app wires configuration into the shared runtime pieces used by
// the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dentalbook/marketplace-api/internal/config"
	"github.com/dentalbook/marketplace-api/internal/email"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/internal/repository/memory"
	"github.com/dentalbook/marketplace-api/internal/repository/postgres"
	"github.com/dentalbook/marketplace-api/pkg/logger"
	"github.com/dentalbook/marketplace-api/pkg/messaging"
	"github.com/dentalbook/marketplace-api/pkg/messaging/kafka"
	"github.com/dentalbook/marketplace-api/pkg/messaging/redis"
	"github.com/dentalbook/marketplace-api/pkg/metrics"
)

// NewLogger builds the process logger and installs it as the global
// zerolog logger used by the HTTP middleware.
func NewLogger(cfg *config.Config) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	log.Logger = l.Zerolog()
	for _, w := range cfg.Warnings {
		l.Warn(w)
	}
	return l
}

// OpenStore connects the configured storage backend. Postgres schemas are
// migrated first when auto_migrate is set.
func OpenStore(ctx context.Context, cfg *config.Config, l *logger.Logger) (repository.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		l.Warn("Using in-memory storage; data is lost on exit")
		return memory.New(), nil
	case config.DriverPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			n, err := postgres.Migrate(ctx, db)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			l.Info("Database migrated", "applied", n)
		}
		return postgres.NewStore(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// NewBroker connects the configured message broker. Without one, events
// are relayed in-process.
func NewBroker(ctx context.Context, cfg *config.Config, l *logger.Logger, m *metrics.Metrics) (messaging.Broker, error) {
	switch cfg.Messaging.Broker {
	case config.BrokerRedis:
		b, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), l.Zerolog(), m)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BrokerKafka:
		b, err := kafka.NewKafkaBroker(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
		}, l.Zerolog(), m)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return messaging.NewLocalBroker(), nil
	}
}

// NewMailer returns an SMTP mailer, or a no-op one when no host is set.
func NewMailer(cfg *config.Config, l *logger.Logger) email.Service {
	if cfg.SMTP.Host == "" {
		l.Warn("SMTP host not configured; booking notifications are not sent")
		return email.Noop{}
	}
	return email.NewSMTPService(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}
