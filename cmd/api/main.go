package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/keylock-io/keylock/api/routes"
	"github.com/keylock-io/keylock/internal/licensing"
	"github.com/keylock-io/keylock/pkg/config"
	"github.com/keylock-io/keylock/pkg/db"
	"github.com/keylock-io/keylock/pkg/logger"
	"github.com/keylock-io/keylock/pkg/metrics"
	"github.com/keylock-io/keylock/pkg/migrate"
	"github.com/keylock-io/keylock/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	// The store backend is chosen once at process start: Postgres when a DSN
	// is configured, otherwise the seed-only in-memory fallback.
	var store licensing.Store
	if cfg.DB.Configured() {
		dbClient, err := db.New(context.Background(), cfg.DB, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap database", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing database", err)
			}
		}()

		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}

		policy := db.Policy{
			Timeout: cfg.DB.OpTimeout,
			Retries: cfg.DB.OpRetries,
			Backoff: cfg.DB.OpBackoff,
		}
		repo, err := licensing.NewRepository(dbClient, policy)
		if err != nil {
			logg.Error(context.Background(), "failed to build license repository", err)
			os.Exit(1)
		}
		store = repo
	} else {
		seed, err := licensing.ParseSeed(cfg.License.FallbackSeed)
		if err != nil {
			logg.Error(context.Background(), "invalid fallback seed", err)
			os.Exit(1)
		}
		store = licensing.NewMemoryStore(seed, time.Now().UTC())
		ctx := logg.WithField(context.Background(), "seeded_licenses", len(seed))
		logg.Warn(ctx, "no database configured, running with in-memory fallback store")
	}

	var redisClient *redis.Client
	if cfg.Redis.Configured() {
		redisClient, err = redis.New(context.Background(), cfg.Redis)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	validationMetrics := metrics.NewValidationMetrics(registry)

	licenseService, err := licensing.NewService(
		store,
		licensing.NewKeyGenerator(cfg.License),
		cfg.Admin,
		cfg.License,
		logg,
		validationMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create license service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"storage_mode": string(store.Mode()),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, store, redisClient, licenseService, registry),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
