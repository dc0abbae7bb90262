// cmd/scheduler/main.go
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wildfire-analytics/internal/api"
	"wildfire-analytics/internal/app"
	"wildfire-analytics/internal/config"
	"wildfire-analytics/internal/logging"
	"wildfire-analytics/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("info", "json").Fatal("Failed to load configuration", zap.Error(err))
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat).Named("wildfire-scheduler")
	defer logger.Sync()

	logger.Info("Starting scheduler",
		zap.Duration("interval", cfg.ScheduleInterval),
		zap.Bool("run_on_start", cfg.ScheduleRunOnStart))

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	services, err := app.Connect(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("Failed to connect backends", zap.Error(err))
	}
	defer services.Close()

	sched := scheduler.New(services.TaskQueue(), cfg, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	healthServer := app.StartHealthServer(cfg.HealthPort,
		api.NewHealthRouter("wildfire-scheduler", services.Checks(), logger), logger)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	sched.Stop()
	app.ShutdownServers(5*time.Second, logger, healthServer)
	logger.Info("Scheduler stopped")
}
