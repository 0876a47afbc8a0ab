package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/config"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/labtest"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/patient"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/scheduling"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/staff"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/stats"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/ward"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/auth"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/cache"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/db"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/docstore"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/events"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/middleware"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/telemetry"
)

// stores holds the repositories of the configured backend.
type stores struct {
	staff      staff.Repository
	patients   patient.Repository
	messages   patient.MessageRepository
	wards      ward.Repository
	labTests   labtest.Repository
	scheduling scheduling.Store

	health echo.HandlerFunc
	close  func()
}

// services is the wired application layer.
type services struct {
	staff      *staff.Service
	patients   *patient.Service
	scheduling *scheduling.Service
	wards      *ward.Service
	labTests   *labtest.Service
	stats      *stats.Service
}

type serviceDeps struct {
	issuer    *auth.Issuer
	publisher events.Publisher
	cache     cache.Store
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	cfg       *config.Config
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func openStores(ctx context.Context, cfg *config.Config, locker cache.Locker, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, database, err := docstore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := docstore.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongodb")
		return &stores{
			staff:      staff.NewRepoMongo(database),
			patients:   patient.NewRepoMongo(database),
			messages:   patient.NewMessageRepoMongo(database),
			wards:      ward.NewRepoMongo(database),
			labTests:   labtest.NewRepoMongo(database),
			scheduling: scheduling.NewStoreMongo(database, locker),
			health:     docstore.HealthHandler(client),
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = client.Disconnect(ctx)
			},
		}, nil
	default:
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		return &stores{
			staff:      staff.NewRepoPG(pool),
			patients:   patient.NewRepoPG(pool),
			messages:   patient.NewMessageRepoPG(pool),
			wards:      ward.NewRepoPG(pool),
			labTests:   labtest.NewRepoPG(pool),
			scheduling: scheduling.NewStorePG(pool),
			health:     db.HealthHandler(pool),
			close:      pool.Close,
		}, nil
	}
}

func newServices(st *stores, deps serviceDeps) *services {
	staffSvc := staff.NewService(st.staff, deps.issuer, deps.logger)
	patientSvc := patient.NewService(st.patients, st.messages, deps.publisher, deps.logger)

	scheduler := scheduling.NewScheduler(staffSvc, st.scheduling.Bookings, scheduling.SchedulerConfig{
		Location:      deps.cfg.Location(),
		AlignToWindow: deps.cfg.ScheduleAlignToWindow,
		Cache:         deps.cache,
		CacheTTL:      deps.cfg.CacheTTL,
		Metrics:       deps.metrics,
		Logger:        deps.logger,
	})
	staffSvc.OnAvailabilityChange(func(ctx context.Context, doctorID uuid.UUID) {
		scheduler.InvalidateDoctor(ctx, doctorID)
	})
	schedulingSvc := scheduling.NewService(st.scheduling, scheduler, staffSvc, patientSvc, deps.publisher, deps.metrics, deps.logger)

	wardSvc := ward.NewService(st.wards, patientSvc, deps.publisher, deps.metrics, deps.logger)
	labSvc := labtest.NewService(st.labTests, staffSvc, patientSvc, deps.publisher, deps.logger)

	return &services{
		staff:      staffSvc,
		patients:   patientSvc,
		scheduling: schedulingSvc,
		wards:      wardSvc,
		labTests:   labSvc,
		stats:      stats.NewService(patientSvc, staffSvc, wardSvc, schedulingSvc, deps.logger),
	}
}

func newEcho(cfg *config.Config, issuer *auth.Issuer, metrics *telemetry.Metrics, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.Metrics(metrics))

	if cfg.AuthDevMode {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(issuer, auth.Skipper))
	}

	// Keyed by caller, so it runs after authentication.
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	return e
}

func registerRoutes(e *echo.Echo, svc *services, metrics *telemetry.Metrics, dbHealth echo.HandlerFunc) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if dbHealth != nil {
		e.GET("/health/db", dbHealth)
	}
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	apiV1 := e.Group("/api/v1")
	staff.NewHandler(svc.staff).RegisterRoutes(apiV1)
	patient.NewHandler(svc.patients).RegisterRoutes(apiV1)
	scheduling.NewHandler(svc.scheduling).RegisterRoutes(apiV1)
	ward.NewHandler(svc.wards).RegisterRoutes(apiV1)
	labtest.NewHandler(svc.labTests).RegisterRoutes(apiV1)
	stats.NewHandler(svc.stats).RegisterRoutes(apiV1)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.TracingConfig{
		ServiceName:  "hms-server",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}
	metrics := telemetry.NewMetrics("hms")

	// Redis backs the schedule cache and the booking locks when configured.
	var (
		store  cache.Store  = cache.NewMemory()
		locker cache.Locker = cache.NewLocalLocker()
	)
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		store = cache.NewRedisStore(rdb, "hms")
		locker = cache.NewRedisLocker(rdb)
		logger.Info().Msg("connected to redis")
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	}
	defer publisher.Close()

	st, err := openStores(ctx, cfg, locker, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer st.close()

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	svc := newServices(st, serviceDeps{
		issuer:    issuer,
		publisher: publisher,
		cache:     store,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	})

	e := newEcho(cfg, issuer, metrics, logger)
	registerRoutes(e, svc, metrics, st.health)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("driver", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
