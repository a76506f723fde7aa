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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/booking-api/internal/config"
	"github.com/jwalitptl/booking-api/internal/handler/health"
	promHandler "github.com/jwalitptl/booking-api/internal/handler/prometheus"
	"github.com/jwalitptl/booking-api/internal/middleware"
	"github.com/jwalitptl/booking-api/internal/repository/postgres"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/messaging/redis"
	"github.com/jwalitptl/booking-api/pkg/metrics"
	"github.com/jwalitptl/booking-api/pkg/worker"
)

// healthServer serves liveness, readiness and metrics for the worker.
func healthServer(port int, db health.Pinger, registry *prometheus.Registry, m *metrics.Metrics) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	prom := promHandler.New(registry, m)
	engine.Use(middleware.Recovery(), prom.Middleware())

	health.NewHandler(db).RegisterRoutes(&engine.RouterGroup)
	engine.GET("/health/metrics", prom.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	lg := logger.Setup(cfg.Log.ToLoggerConfig()).With("component", "outbox_worker")

	if cfg.Database.Driver != config.DriverPostgres {
		lg.Fatal(fmt.Errorf("driver %q", cfg.Database.Driver), "the outbox worker needs the postgres store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		lg.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), *lg.Zerolog())
	if err != nil {
		lg.Fatal(err, "failed to create Redis broker")
	}
	defer broker.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("booking_worker", registry)

	outboxRepo := postgres.NewOutboxRepository(postgres.NewBaseRepository(db))
	processor, err := worker.NewOutboxProcessor(outboxRepo, broker, cfg.Outbox.ToWorkerConfig(), lg, m)
	if err != nil {
		lg.Fatal(err, "failed to create outbox processor")
	}

	srv := healthServer(cfg.Outbox.HealthPort, db, registry, m)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error(err, "health server failed")
			stop()
		}
	}()

	lg.Info("outbox worker started", "health_port", cfg.Outbox.HealthPort)
	processor.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error(err, "health server forced to shutdown")
		os.Exit(1)
	}
	lg.Info("outbox worker stopped")
}
