package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bloomflowhq/bloomflow-backend/api/routes"
	"github.com/bloomflowhq/bloomflow-backend/internal/cardstate"
	"github.com/bloomflowhq/bloomflow-backend/pkg/clock"
	"github.com/bloomflowhq/bloomflow-backend/pkg/config"
	"github.com/bloomflowhq/bloomflow-backend/pkg/db"
	"github.com/bloomflowhq/bloomflow-backend/pkg/logger"
	"github.com/bloomflowhq/bloomflow-backend/pkg/metrics"
	"github.com/bloomflowhq/bloomflow-backend/pkg/migrate"
	"github.com/bloomflowhq/bloomflow-backend/pkg/redis"
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
		WarnStack:   cfg.App.LogWarnStack,
	})

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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	cardStateService, err := cardstate.NewService(cardstate.ServiceParams{
		Repo:           cardstate.NewRepository(dbClient.DB()),
		Tx:             dbClient,
		Stamper:        clock.NewStamper(),
		LookbackWindow: cfg.Sync.LookbackWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create card state service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterDeps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Sessions:    redisClient,
			Idempotency: redisClient,
			CardState:   cardStateService,
			SyncMetrics: metrics.NewSyncMetrics(prometheus.DefaultRegisterer),
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
