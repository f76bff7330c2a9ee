package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dentalbook/marketplace-api/internal/app"
	"github.com/dentalbook/marketplace-api/internal/config"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/pkg/logger"
	"github.com/dentalbook/marketplace-api/pkg/metrics"
)

func setupHealthCheck(store repository.Store, port int, l *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	l := app.NewLogger(cfg)

	if cfg.Database.Driver == config.DriverMemory {
		l.Fatal(errors.New("memory driver not supported"), "Worker requires the postgres driver")
	}
	if cfg.Messaging.Broker == config.BrokerNone {
		l.Warn("No external broker configured; notifications are relayed in-process only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	store, err := app.OpenStore(ctx, cfg, l)
	if err != nil {
		l.Fatal(err, "Failed to open store")
	}
	defer store.Close()

	broker, err := app.NewBroker(ctx, cfg, l, m)
	if err != nil {
		l.Fatal(err, "Failed to connect to broker")
	}
	defer broker.Close()

	relay, err := app.NewRelay(cfg, store, broker, l, m)
	if err != nil {
		l.Fatal(err, "Failed to create relay")
	}

	health := setupHealthCheck(store, cfg.Worker.HealthPort, l)

	relay.Start(ctx)
	l.Info("Worker started", "broker", cfg.Messaging.Broker)

	<-ctx.Done()
	l.Info("Shutting down...")
	relay.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "Health check server forced to shutdown")
	}
}
