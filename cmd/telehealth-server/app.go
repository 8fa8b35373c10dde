package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/telehealth/internal/config"
	"github.com/ehr/telehealth/internal/domain/checkout"
	"github.com/ehr/telehealth/internal/domain/prescription"
	"github.com/ehr/telehealth/internal/domain/subscription"
	"github.com/ehr/telehealth/internal/domain/workflow"
	"github.com/ehr/telehealth/internal/platform/db"
	"github.com/ehr/telehealth/internal/platform/idempotency"
	"github.com/ehr/telehealth/internal/platform/middleware"
	"github.com/ehr/telehealth/internal/platform/notification"
	"github.com/ehr/telehealth/internal/platform/reconcile"
	"github.com/ehr/telehealth/internal/platform/store"
)

// app holds the wired components of a running server.
type app struct {
	echo       *echo.Echo
	engine     *workflow.Engine
	scheduler  *workflow.Scheduler
	dispatcher *notification.Dispatcher
	reconciler *reconcile.Runner
	pool       *pgxpool.Pool
	redis      *redis.Client
	logger     zerolog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{logger: logger}

	// Record store
	var records store.Store
	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		records = store.NewPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		records = store.NewMemory()
		logger.Warn().Msg("using in-memory record store; data is lost on restart")
	}

	// Checkout idempotency
	var claims idempotency.Claimer = idempotency.NewMemory()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			a.close(ctx)
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.redis = client
		claims = idempotency.NewRedis(client)
		logger.Info().Msg("connected to redis")
	}

	catalog, err := subscription.LoadCatalog(cfg.PlanCatalogFile)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	// Notifications
	sender := notification.LogSender{Logger: logger}
	a.dispatcher = notification.NewDispatcher(sender, sender, notification.NewTemplateEngine(), logger, 2, 256)

	// Workflow
	repos := workflow.NewStoreRepositories(records)
	a.scheduler = workflow.NewScheduler(logger)
	a.engine = workflow.NewEngine(repos, a.scheduler, workflow.Delays{
		PharmacyTransmit: cfg.PharmacyTransmitDelay,
		PharmacyFill:     cfg.PharmacyFillDelay,
	}, logger)
	a.engine.SetIssuer(prescription.NewStoreIssuer(records, logger))
	a.engine.SetNotifier(workflow.NewDispatchNotifier(a.dispatcher, logger))

	a.reconciler = reconcile.NewRunner(workflow.NewReconciler(a.engine, repos.Orders, logger), time.Minute, logger)

	subs := subscription.NewService(subscription.NewStoreRepository(records), catalog, logger)
	builder := checkout.NewBuilder(repos, a.engine, subs, claims, checkout.Options{
		Currency:       cfg.Currency,
		InvoiceDueDays: cfg.InvoiceDueDays,
	}, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	// Handlers run on the timeout goroutine, so recovery must sit inside it.
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader, "Idempotency-Key"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if a.pool != nil {
		e.GET("/health/db", db.PoolHealthHandler(a.pool))
	} else {
		e.GET("/health/db", db.HealthHandler(records.Ping, nil))
	}

	apiV1 := e.Group("/api/v1", middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	workflow.NewHandler(a.engine).RegisterRoutes(apiV1)
	checkout.NewHandler(builder).RegisterRoutes(apiV1)
	subscription.NewHandler(subs).RegisterRoutes(apiV1)

	a.echo = e
	return a, nil
}

// close releases everything newApp acquired. Pending scheduled advances are
// dropped; the reconciler picks them up after restart.
func (a *app) close(ctx context.Context) {
	if a.reconciler != nil {
		if err := a.reconciler.Stop(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("reconciler did not stop cleanly")
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("scheduler did not stop cleanly")
		}
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
