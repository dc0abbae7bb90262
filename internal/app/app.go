// Package app wires the storage, broker and cache clients shared by the
// wildfire binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"wildfire-analytics/internal/api"
	"wildfire-analytics/internal/cache"
	"wildfire-analytics/internal/config"
	"wildfire-analytics/internal/messaging"
	"wildfire-analytics/internal/repository"
)

const connectAttempts = 10

type Options struct {
	// Historical opens the postgres/sqlite risk store.
	Historical bool
	// SetupSchema creates missing databases, tables and indexes.
	SetupSchema bool
	// ConsumerName overrides the broker's random consumer name.
	ConsumerName string
}

// Services holds the connected backends of one process.
type Services struct {
	Config *config.Config
	Logger *zap.Logger

	Session    *r.Session
	Redis      *redis.Client
	Broker     *messaging.RedisBroker
	Historical *sql.DB

	Tasks     repository.TaskRepository
	Incidents repository.IncidentRepository
	Analysis  repository.AnalysisRepository
	Risk      repository.RiskRepository
}

func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Services, error) {
	s := &Services{Config: cfg, Logger: logger}

	session, err := repository.ConnectRethinkDB(ctx, cfg.RethinkDBURL, cfg.DBName, connectAttempts, logger)
	if err != nil {
		return nil, err
	}
	s.Session = session
	logger.Info("Connected to RethinkDB", zap.String("url", cfg.RethinkDBURL))

	if opts.SetupSchema {
		tables := repository.OperationalTables(cfg.TaskTable, cfg.IncidentTable, cfg.AnalysisTable)
		if err := repository.SetupDatabase(ctx, session, cfg.DBName, tables, logger); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to setup database: %w", err)
		}
	}

	client, err := ConnectRedis(ctx, cfg, connectAttempts, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Redis = client
	logger.Info("Connected to Redis", zap.String("url", cfg.RedisURL))

	broker, err := messaging.NewRedisBroker(ctx, client, messaging.RedisBrokerOptions{
		Prefix:        cfg.RedisPrefix,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  opts.ConsumerName,
		ClaimIdle:     cfg.ClaimIdle,
	}, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Broker = broker

	if opts.Historical {
		db, err := repository.OpenHistorical(ctx, cfg.HistoricalDriver, cfg.HistoricalDSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Historical = db
		s.Risk = repository.NewRiskRepository(db, cfg.HistoricalDriver, cfg.RiskTable)
		if opts.SetupSchema {
			if err := s.Risk.CreateTable(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		logger.Info("Connected to historical store", zap.String("driver", cfg.HistoricalDriver))
	}

	s.Tasks = repository.NewTaskRepository(session, cfg.TaskTable)
	s.Incidents = repository.NewIncidentRepository(session, cfg.IncidentTable)
	s.Analysis = repository.NewAnalysisRepository(session, cfg.AnalysisTable)
	return s, nil
}

// ConnectRedis retries with a linear backoff while Redis is unavailable.
func ConnectRedis(ctx context.Context, cfg *config.Config, maxAttempts int, logger *zap.Logger) (*redis.Client, error) {
	var err error
	for i := 1; i <= maxAttempts; i++ {
		logger.Info("Connecting to Redis", zap.Int("attempt", i), zap.Int("max_attempts", maxAttempts))

		var client *redis.Client
		client, err = messaging.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			return client, nil
		}

		if i < maxAttempts {
			wait := time.Duration(i) * 2 * time.Second
			logger.Warn("Redis connection failed", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxAttempts, err)
}

func (s *Services) TaskQueue() *messaging.TaskQueue {
	return messaging.NewTaskQueue(s.Broker, s.Tasks, s.Logger)
}

// ResultStore needs the historical store; Connect must run with Historical.
func (s *Services) ResultStore() *repository.ResultStore {
	return repository.NewResultStore(s.Analysis, s.Risk, s.Config.BatchSize, s.Logger)
}

func (s *Services) Cache() cache.Cache {
	if s.Config.CacheBackend == "memory" {
		return cache.NewMemoryCache()
	}
	return cache.NewRedisCache(s.Redis, s.Config.RedisPrefix)
}

func (s *Services) Checks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"redis": s.Broker.HealthCheck,
		"rethinkdb": func(ctx context.Context) error {
			return repository.PingRethinkDB(ctx, s.Session)
		},
	}
	if s.Historical != nil {
		checks["historical"] = s.Historical.PingContext
	}
	return checks
}

// Close releases every connected backend. It is safe on a partially
// connected Services.
func (s *Services) Close() {
	if s.Broker != nil {
		s.Broker.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if s.Historical != nil {
		if err := s.Historical.Close(); err != nil {
			s.Logger.Warn("Failed to close historical store", zap.Error(err))
		}
	}
	if s.Session != nil {
		if err := s.Session.Close(); err != nil {
			s.Logger.Warn("Failed to close RethinkDB session", zap.Error(err))
		}
	}
}

// StartHealthServer serves handler on addr in the background.
func StartHealthServer(addr string, handler http.Handler, logger *zap.Logger) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Health server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", zap.Error(err))
		}
	}()

	return server
}

// ShutdownServers stops every non-nil server within timeout.
func ShutdownServers(timeout time.Duration, logger *zap.Logger, servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, server := range servers {
		if server == nil {
			continue
		}
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("Server shutdown error", zap.String("addr", server.Addr), zap.Error(err))
		}
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
