// Package cli provides the wildfirectl command-line interface.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wildfire-analytics/internal/app"
	"wildfire-analytics/internal/config"
	"wildfire-analytics/internal/domain"
	"wildfire-analytics/internal/logging"
	"wildfire-analytics/internal/scheduler"
)

// Version is set at build time.
var Version = "0.1.0"

// Backend is what the commands need from the running system.
type Backend interface {
	Enqueue(ctx context.Context, jobType domain.JobType, args domain.Arguments) (string, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	RunAll(ctx context.Context) scheduler.FanOut
	ImportIncidents(ctx context.Context, incidents []domain.FireIncident) (int, error)
	Logger() *zap.Logger
	Close()
}

// Connector builds a Backend; setup controls schema creation.
type Connector func(ctx context.Context, setup bool) (Backend, error)

// NewRootCmd returns the wildfirectl command tree.
func NewRootCmd(connect Connector) *cobra.Command {
	root := &cobra.Command{
		Use:   "wildfirectl",
		Short: "Operate the wildfire analytics task system",
		Long: `wildfirectl enqueues analytic jobs, inspects task state and prepares
the operational and historical stores.

Examples:
  wildfirectl enqueue clustering --eps 0.3 --min-samples 8
  wildfirectl enqueue risk --state CA
  wildfirectl run-all
  wildfirectl import data/wildfire_data.csv
  wildfirectl task 2b7d4c0e-...`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newEnqueueCmd(connect))
	root.AddCommand(newRunAllCmd(connect))
	root.AddCommand(newTaskCmd(connect))
	root.AddCommand(newSetupCmd(connect))
	root.AddCommand(newImportCmd(connect))
	return root
}

// Execute runs wildfirectl against the backends named by the configuration.
func Execute() error {
	return NewRootCmd(connectServices).Execute()
}

type servicesBackend struct {
	services  *app.Services
	scheduler *scheduler.Scheduler
	queue     scheduler.Enqueuer
}

func (b *servicesBackend) Enqueue(ctx context.Context, jobType domain.JobType, args domain.Arguments) (string, error) {
	return b.queue.Enqueue(ctx, jobType, args)
}

func (b *servicesBackend) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return b.services.Tasks.GetTask(ctx, id)
}

func (b *servicesBackend) RunAll(ctx context.Context) scheduler.FanOut {
	return b.scheduler.RunNow(ctx)
}

func (b *servicesBackend) ImportIncidents(ctx context.Context, incidents []domain.FireIncident) (int, error) {
	return b.services.Incidents.InsertIncidents(ctx, incidents)
}

func (b *servicesBackend) Logger() *zap.Logger {
	return b.services.Logger
}

func (b *servicesBackend) Close() {
	b.services.Close()
	b.services.Logger.Sync()
}

func connectServices(ctx context.Context, setup bool) (Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// keep stdout for command output
	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, err
	}
	logger = logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)).Named("wildfirectl")

	services, err := app.Connect(ctx, cfg, logger, app.Options{Historical: setup, SetupSchema: setup})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	queue := services.TaskQueue()
	return &servicesBackend{
		services:  services,
		scheduler: scheduler.New(queue, cfg, logger),
		queue:     queue,
	}, nil
}
