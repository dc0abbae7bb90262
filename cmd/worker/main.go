// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"wildfire-analytics/internal/api"
	"wildfire-analytics/internal/app"
	"wildfire-analytics/internal/config"
	"wildfire-analytics/internal/jobs"
	"wildfire-analytics/internal/logging"
	"wildfire-analytics/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("info", "json").Fatal("Failed to load configuration", zap.Error(err))
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat).Named("wildfire-worker")
	defer logger.Sync()

	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	logger.Info("Starting task worker",
		zap.String("worker_id", workerID),
		zap.Strings("queues", cfg.WorkerQueues),
		zap.Int("concurrency", cfg.WorkerCount),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("retry_backoff", cfg.RetryBackoff),
		zap.Duration("task_timeout", cfg.TaskTimeout))

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	services, err := app.Connect(ctx, cfg, logger, app.Options{
		Historical:   true,
		SetupSchema:  true,
		ConsumerName: workerID,
	})
	if err != nil {
		logger.Fatal("Failed to connect backends", zap.Error(err))
	}
	defer services.Close()

	services.Broker.Start(ctx)

	analytics := jobs.New(services.Incidents, services.ResultStore(), logger)
	executor := worker.NewExecutor(
		analytics.Registry(),
		services.Tasks,
		services.Broker,
		worker.RetryPolicy{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff},
		workerID,
		logger,
	)

	w, err := worker.NewWorker(workerID, services.Broker, executor, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create worker", zap.Error(err))
	}

	healthServer := app.StartHealthServer(cfg.HealthPort,
		api.NewHealthRouter("wildfire-worker", services.Checks(), logger), logger)

	if err := w.Start(ctx); err != nil {
		logger.Error("Worker stopped with error", zap.Error(err))
	}

	app.ShutdownServers(5*time.Second, logger, healthServer)

	stats := w.GetStats()
	logger.Info("Final worker stats",
		zap.Int64("processed", stats.Processed),
		zap.Int64("failed", stats.Failed),
		zap.Int64("retried", stats.Retried))
}
