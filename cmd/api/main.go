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

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/booking-api/internal/config"
	appointmentHandler "github.com/jwalitptl/booking-api/internal/handler/appointment"
	authHandler "github.com/jwalitptl/booking-api/internal/handler/auth"
	availabilityHandler "github.com/jwalitptl/booking-api/internal/handler/availability"
	"github.com/jwalitptl/booking-api/internal/handler/health"
	promHandler "github.com/jwalitptl/booking-api/internal/handler/prometheus"
	userHandler "github.com/jwalitptl/booking-api/internal/handler/user"
	"github.com/jwalitptl/booking-api/internal/middleware"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/internal/repository/memory"
	"github.com/jwalitptl/booking-api/internal/repository/postgres"
	"github.com/jwalitptl/booking-api/internal/router"
	appointmentService "github.com/jwalitptl/booking-api/internal/service/appointment"
	authService "github.com/jwalitptl/booking-api/internal/service/auth"
	availabilityService "github.com/jwalitptl/booking-api/internal/service/availability"
	userService "github.com/jwalitptl/booking-api/internal/service/user"
	"github.com/jwalitptl/booking-api/pkg/auth"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/metrics"
	"github.com/jwalitptl/booking-api/pkg/security"
)

type repositories struct {
	actors       repository.ActorRepository
	appointments repository.AppointmentRepository
	availability repository.AvailabilityRepository
	db           *sqlx.DB
}

func openRepositories(ctx context.Context, cfg config.DatabaseConfig) (*repositories, error) {
	if cfg.Driver == config.DriverMemory {
		store := memory.NewStore()
		return &repositories{
			actors:       store.Actors(),
			appointments: store.Appointments(),
			availability: store.Availability(),
		}, nil
	}

	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	base := postgres.NewBaseRepository(db)
	return &repositories{
		actors:       postgres.NewActorRepository(base),
		appointments: postgres.NewAppointmentRepository(base),
		availability: postgres.NewAvailabilityRepository(base),
		db:           db,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Setup(cfg.Log.ToLoggerConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	var pinger health.Pinger
	if repos.db != nil {
		defer repos.db.Close()
		pinger = repos.db
	} else {
		log.Warn().Msg("running on the in-memory store; data and outbox events are not persisted")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("booking", registry)

	jwtSvc, err := auth.NewJWTService(cfg.JWT.ToAuthConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token service")
	}

	// Services
	authSvc := authService.NewService(repos.actors, jwtSvc, security.NewBcryptHasher(bcrypt.DefaultCost), m)
	userSvc := userService.NewService(repos.actors)
	appointmentSvc := appointmentService.NewService(repos.appointments, repos.actors, m)
	availabilitySvc := availabilityService.NewService(repos.appointments, repos.availability, repos.actors)

	if b := cfg.Bootstrap; b.CoordinatorEmail != "" {
		created, err := authSvc.EnsureCoordinator(ctx, b.CoordinatorEmail, b.CoordinatorPassword, b.CoordinatorName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to bootstrap coordinator")
		}
		if created {
			log.Info().Str("email", b.CoordinatorEmail).Msg("bootstrap coordinator created")
		}
	}

	if err := middleware.RegisterValidators(middleware.DefaultValidationConfig()); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORS.AllowedOrigins

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		router.Handlers{
			Auth:         authHandler.NewHandler(authSvc),
			User:         userHandler.NewHandler(userSvc),
			Appointment:  appointmentHandler.NewHandler(appointmentSvc),
			Availability: availabilityHandler.NewHandler(availabilitySvc),
			Health:       health.NewHandler(pinger),
			Metrics:      promHandler.New(registry, m),
		},
		router.RouterConfig{
			Mode:           cfg.Server.Mode,
			RateEnabled:    cfg.RateLimit.Enabled,
			RateLimit:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:      cfg.RateLimit.Burst,
			RateTTL:        cfg.RateLimit.TTL,
			RequestTimeout: cfg.Server.RequestTimeout,
			CORSConfig:     cors,
			MaxBodySize:    cfg.Server.MaxBodyBytes,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("store", cfg.Database.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server exited properly")
}
