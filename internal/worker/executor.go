package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
	"wildfire-analytics/internal/jobs"
	"wildfire-analytics/internal/messaging"
)

type Status string

const (
	StatusCompleted        Status = "completed"
	StatusInsufficientData Status = "insufficient_data"
	StatusRetrying         Status = "retrying"
	StatusError            Status = "error"
)

// TerminalStatus is what one execution of a task message produced.
// StatusRetrying is the only non-terminal value.
type TerminalStatus struct {
	Status  Status         `json:"status"`
	Summary map[string]any `json:"summary,omitempty"`
	Message string         `json:"message,omitempty"`
	Attempt int            `json:"attempt"`
}

func (s TerminalStatus) Terminal() bool {
	return s.Status != StatusRetrying
}

// RetryPolicy is a count-bounded, fixed-delay redelivery rule.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: 60 * time.Second}
}

// ShouldRetry reports whether a task whose attempt number attempt (1-based)
// just failed gets another one.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt <= p.MaxRetries
}

type TaskUpdater interface {
	UpdateTask(ctx context.Context, id string, updates map[string]any) error
}

type Republisher interface {
	PublishDelayed(ctx context.Context, msg *messaging.TaskMessage, delay time.Duration) error
}

const bookkeepingTimeout = 10 * time.Second

// Executor runs one attempt of a task and decides between finishing it and
// scheduling a redelivery.
type Executor struct {
	handlers jobs.Registry
	tasks    TaskUpdater
	broker   Republisher
	policy   RetryPolicy
	workerID string
	logger   *zap.Logger
	now      func() time.Time
}

func NewExecutor(handlers jobs.Registry, tasks TaskUpdater, broker Republisher, policy RetryPolicy, workerID string, logger *zap.Logger) *Executor {
	return &Executor{
		handlers: handlers,
		tasks:    tasks,
		broker:   broker,
		policy:   policy,
		workerID: workerID,
		logger:   logger.Named("executor"),
		now:      time.Now,
	}
}

// Execute never panics and never returns an error: every failure ends up in
// the returned status.
func (e *Executor) Execute(ctx context.Context, msg *messaging.TaskMessage) TerminalStatus {
	attempt := msg.Attempt + 1
	log := e.logger.With(
		zap.String("task_id", msg.TaskID),
		zap.String("job_type", string(msg.JobType)),
		zap.String("queue", string(msg.Queue)),
		zap.Int("attempt", attempt))

	e.record(ctx, log, msg.TaskID, map[string]any{
		"status":        domain.TaskStatusRunning,
		"attempt_count": attempt,
		"worker_id":     e.workerID,
	})

	handler, ok := e.handlers.Lookup(msg.JobType)
	if !ok {
		// no handler can ever succeed, so retrying is pointless
		log.Error("Unknown job type")
		return e.finish(ctx, log, msg.TaskID, domain.TaskStatusFailed, TerminalStatus{
			Status:  StatusError,
			Message: fmt.Sprintf("%v: %q", domain.ErrUnknownJobType, msg.JobType),
			Attempt: attempt,
		})
	}

	start := e.now()
	out := e.run(ctx, log, handler, msg.Arguments)
	log = log.With(zap.Duration("duration", e.now().Sub(start)))

	switch out.Kind {
	case jobs.Success:
		log.Info("Task completed")
		return e.finish(ctx, log, msg.TaskID, domain.TaskStatusSucceeded, TerminalStatus{
			Status:  StatusCompleted,
			Summary: out.Summary,
			Attempt: attempt,
		})
	case jobs.InsufficientData:
		log.Info("Task skipped", zap.String("reason", out.Message))
		return e.finish(ctx, log, msg.TaskID, domain.TaskStatusSucceeded, TerminalStatus{
			Status:  StatusInsufficientData,
			Message: out.Message,
			Attempt: attempt,
		})
	}

	if e.policy.ShouldRetry(attempt) {
		next := *msg
		next.Attempt = attempt
		next.EnqueuedAt = e.now().UTC()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
		err := e.broker.PublishDelayed(pubCtx, &next, e.policy.Backoff)
		cancel()
		if err == nil {
			log.Warn("Task failed, retry scheduled",
				zap.Error(out.Err),
				zap.Duration("backoff", e.policy.Backoff),
				zap.Int("max_retries", e.policy.MaxRetries))
			e.record(ctx, log, msg.TaskID, map[string]any{
				"status":  domain.TaskStatusPending,
				"outcome": "",
				"message": out.Message,
			})
			return TerminalStatus{Status: StatusRetrying, Message: out.Message, Attempt: attempt}
		}
		log.Error("Failed to schedule retry", zap.Error(err))
		out = jobs.Failed(fmt.Errorf("%s (retry not scheduled: %v)", out.Message, err))
	}

	log.Error("Task failed", zap.Error(out.Err))
	return e.finish(ctx, log, msg.TaskID, domain.TaskStatusFailed, TerminalStatus{
		Status:  StatusError,
		Message: out.Message,
		Attempt: attempt,
	})
}

func (e *Executor) run(ctx context.Context, log *zap.Logger, handler jobs.Handler, args domain.Arguments) (out jobs.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out = jobs.Failed(fmt.Errorf("job panicked: %v", r))
		}
	}()
	return handler(ctx, args)
}

func (e *Executor) finish(ctx context.Context, log *zap.Logger, taskID string, taskStatus domain.TaskStatus, status TerminalStatus) TerminalStatus {
	completed := e.now().UTC()
	updates := map[string]any{
		"status":       taskStatus,
		"outcome":      string(status.Status),
		"message":      status.Message,
		"completed_at": completed,
	}
	if status.Summary != nil {
		updates["summary"] = status.Summary
	}
	e.record(ctx, log, taskID, updates)
	return status
}

// record persists task bookkeeping. A failed update is logged only; the
// broker message stays authoritative for retries.
func (e *Executor) record(ctx context.Context, log *zap.Logger, taskID string, updates map[string]any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	if err := e.tasks.UpdateTask(ctx, taskID, updates); err != nil {
		log.Warn("Failed to update task record", zap.Error(err))
	}
}
