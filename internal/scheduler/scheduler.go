package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"wildfire-analytics/internal/config"
	"wildfire-analytics/internal/domain"
)

const fanOutTimeout = time.Minute

// Enqueuer is the manual-trigger entry point the scheduler shares with the
// API and the CLI.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType domain.JobType, args domain.Arguments) (string, error)
}

// FanOut is the result of one scheduled trigger: a task id or an error per
// job type.
type FanOut struct {
	TaskIDs map[domain.JobType]string
	Errors  map[domain.JobType]error
}

// Scheduler enqueues every analytic job with default arguments at a fixed
// interval.
type Scheduler struct {
	cron       *cron.Cron
	queue      Enqueuer
	interval   time.Duration
	runOnStart bool
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	startup sync.WaitGroup
}

func New(queue Enqueuer, cfg *config.Config, logger *zap.Logger) *Scheduler {
	logger = logger.Named("scheduler")
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		queue:      queue,
		interval:   cfg.ScheduleInterval,
		runOnStart: cfg.ScheduleRunOnStart,
		logger:     logger,
	}
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(s.tick))
	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))

	if s.runOnStart {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.tick()
		}()
	}
	return nil
}

// Stop halts the timer and waits for a fan-out in progress, including the
// one started by run-on-start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.startup.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), fanOutTimeout)
	defer cancel()
	s.RunNow(ctx)
}

// RunNow enqueues all jobs once. A failed enqueue is logged and does not
// prevent the remaining jobs from being enqueued.
func (s *Scheduler) RunNow(ctx context.Context) FanOut {
	result := FanOut{
		TaskIDs: make(map[domain.JobType]string),
		Errors:  make(map[domain.JobType]error),
	}
	for _, job := range domain.JobTypes() {
		id, err := s.queue.Enqueue(ctx, job, domain.Arguments{})
		if err != nil {
			s.logger.Error("Failed to enqueue scheduled job", zap.String("job_type", string(job)), zap.Error(err))
			result.Errors[job] = err
			continue
		}
		result.TaskIDs[job] = id
	}

	s.logger.Info("Scheduled analytics enqueued",
		zap.Int("enqueued", len(result.TaskIDs)),
		zap.Int("failed", len(result.Errors)))
	return result
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
