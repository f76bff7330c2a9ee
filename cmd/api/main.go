package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/dentalbook/marketplace-api/internal/app"
	"github.com/dentalbook/marketplace-api/internal/config"
	appointmenth "github.com/dentalbook/marketplace-api/internal/handler/appointment"
	authh "github.com/dentalbook/marketplace-api/internal/handler/auth"
	bookingh "github.com/dentalbook/marketplace-api/internal/handler/booking"
	"github.com/dentalbook/marketplace-api/internal/handler/health"
	practiceh "github.com/dentalbook/marketplace-api/internal/handler/practice"
	prometheush "github.com/dentalbook/marketplace-api/internal/handler/prometheus"
	userh "github.com/dentalbook/marketplace-api/internal/handler/user"
	"github.com/dentalbook/marketplace-api/internal/middleware"
	"github.com/dentalbook/marketplace-api/internal/repository/postgres"
	"github.com/dentalbook/marketplace-api/internal/router"
	"github.com/dentalbook/marketplace-api/internal/service/appointment"
	"github.com/dentalbook/marketplace-api/internal/service/audit"
	authsvc "github.com/dentalbook/marketplace-api/internal/service/auth"
	"github.com/dentalbook/marketplace-api/internal/service/booking"
	"github.com/dentalbook/marketplace-api/internal/service/practice"
	"github.com/dentalbook/marketplace-api/internal/service/triage"
	"github.com/dentalbook/marketplace-api/internal/service/user"
	"github.com/dentalbook/marketplace-api/pkg/auth"
	"github.com/dentalbook/marketplace-api/pkg/messaging"
	"github.com/dentalbook/marketplace-api/pkg/metrics"
	"github.com/dentalbook/marketplace-api/pkg/security"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "dentalbook-api",
		Short:        "Dental appointment marketplace API",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			l := app.NewLogger(cfg)
			if cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate requires the %s driver", config.DriverPostgres)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			db, err := postgres.NewDB(ctx, cfg.Database.URL, postgres.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := postgres.Migrate(ctx, db)
			if err != nil {
				return err
			}
			l.Info("Migrations applied", "count", n)
			return nil
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return err
	}
	l := app.NewLogger(cfg)

	if err := middleware.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	store, err := app.OpenStore(ctx, cfg, l)
	if err != nil {
		l.Error(err, "Failed to open store")
		return err
	}
	defer store.Close()

	enc, err := security.NewAESEncryptor(cfg.EncryptionKeyBytes())
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}
	jwtSvc, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry)
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}

	retention := cfg.GDPR.Retention()
	authService := authsvc.NewService(store, security.NewBcryptHasher(cfg.Security.BcryptCost), jwtSvc,
		authsvc.Config{
			MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
			LockoutDuration:  cfg.Security.LockoutDuration,
			SessionTTL:       cfg.Security.SessionTTL,
			ConsentRetention: retention,
		}, l, m)
	bookingService := booking.NewService(store, triage.NewService(enc), retention, l, m)
	userService := user.NewService(store, bookingService, retention, l)

	writer := audit.NewWriter(store.Audit(), audit.WriterConfig{
		QueueSize:    cfg.Audit.QueueSize,
		Workers:      cfg.Audit.Workers,
		WriteTimeout: cfg.Audit.WriteTimeout,
	}, l, m)
	writer.Start(ctx)

	// Without an external broker nothing outside this process can see the
	// events, so the relay runs here.
	var relay *app.Relay
	if cfg.Messaging.Broker == config.BrokerNone {
		broker := messaging.NewLocalBroker()
		defer broker.Close()
		relay, err = app.NewRelay(cfg, store, broker, l, m)
		if err != nil {
			return err
		}
		relay.Start(ctx)
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authService),
		middleware.NewAuditMiddleware(writer),
		router.Handlers{
			Auth:        authh.NewHandler(authService),
			Practice:    practiceh.NewHandler(practice.NewService(store, l)),
			Appointment: appointmenth.NewHandler(appointment.NewService(store, l)),
			Booking:     bookingh.NewHandler(bookingService),
			User:        userh.NewHandler(userService, bookingService),
			Health:      health.NewHandler(store),
			Metrics:     prometheush.New(prometheus.DefaultGatherer),
		},
		m,
		routerConfig(cfg),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info("Starting server", "port", cfg.Server.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			l.Error(err, "Server failed")
			return err
		}
	case <-ctx.Done():
	}
	l.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "Server forced to shutdown")
	}
	stop()
	if relay != nil {
		relay.Wait()
	}
	if err := writer.Close(); err != nil {
		l.Error(err, "Audit writer did not drain")
	}

	l.Info("Server exited")
	return nil
}

func routerConfig(cfg *config.Config) router.RouterConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.Security.AllowedOrigins

	secHeaders := middleware.DefaultSecurityConfig()
	secHeaders.HSTS = cfg.IsProduction()

	sizeLimit := middleware.DefaultSizeLimitConfig()
	if cfg.Security.MaxBodyBytes > 0 {
		sizeLimit.MaxBodySize = cfg.Security.MaxBodyBytes
	}

	return router.RouterConfig{
		Production:       cfg.IsProduction(),
		CORSConfig:       cors,
		Security:         secHeaders,
		SizeLimit:        sizeLimit,
		Timeout:          middleware.TimeoutConfig{Duration: cfg.Server.RequestTimeout},
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit: middleware.RateLimiterConfig{
			Rate:    rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: cfg.RateLimit.IdleTTL,
		},
		LoginRateLimit: middleware.PerMinute(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.IdleTTL),
	}
}
