// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"wildfire-analytics/internal/api"
	"wildfire-analytics/internal/app"
	"wildfire-analytics/internal/config"
	"wildfire-analytics/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("info", "json").Fatal("Failed to load configuration", zap.Error(err))
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat).Named("wildfire-api")
	defer logger.Sync()

	logger.Info("Starting REST API server",
		zap.String("redis_url", cfg.RedisURL),
		zap.String("rethinkdb_url", cfg.RethinkDBURL),
		zap.String("db_name", cfg.DBName),
		zap.String("historical_driver", cfg.HistoricalDriver),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("server_port", cfg.ServerPort))

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	services, err := app.Connect(ctx, cfg, logger, app.Options{Historical: true, SetupSchema: true})
	if err != nil {
		logger.Fatal("Failed to connect backends", zap.Error(err))
	}
	defer services.Close()

	apiServer := api.NewServer(api.Dependencies{
		Tasks:     services.Tasks,
		Queue:     services.TaskQueue(),
		Incidents: services.Incidents,
		Analysis:  services.Analysis,
		Risk:      services.Risk,
		Cache:     services.Cache(),
		Checks:    services.Checks(),
	}, cfg, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- apiServer.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
			services.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API server shutdown error", zap.Error(err))
		}
	}

	logger.Info("API server stopped")
}
