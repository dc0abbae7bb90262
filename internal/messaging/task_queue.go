package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
)

// TaskRecorder persists newly enqueued tasks.
type TaskRecorder interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	UpdateTask(ctx context.Context, id string, updates map[string]any) error
}

const abandonTimeout = 5 * time.Second

// TaskQueue is the enqueue/dequeue entry point shared by the API, the CLI
// and the scheduler.
type TaskQueue struct {
	broker   Broker
	tasks    TaskRecorder
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

func NewTaskQueue(broker Broker, tasks TaskRecorder, logger *zap.Logger) *TaskQueue {
	return &TaskQueue{
		broker:   broker,
		tasks:    tasks,
		validate: validator.New(),
		logger:   logger.Named("task-queue"),
		now:      time.Now,
	}
}

// Enqueue records a pending task for jobType and publishes its first attempt
// on the job's queue.
func (q *TaskQueue) Enqueue(ctx context.Context, jobType domain.JobType, args domain.Arguments) (string, error) {
	queue := jobType.Queue()
	if queue == "" {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownJobType, jobType)
	}
	if err := q.validate.Struct(args); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", jobType, err)
	}

	now := q.now().UTC()
	task := &domain.Task{
		ID:        uuid.NewString(),
		JobType:   jobType,
		Queue:     queue,
		Arguments: args,
		Status:    domain.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.tasks.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to record task: %w", err)
	}

	msg := &TaskMessage{
		TaskID:     task.ID,
		JobType:    jobType,
		Queue:      queue,
		Arguments:  args,
		EnqueuedAt: now,
	}
	if err := q.broker.Publish(ctx, msg); err != nil {
		q.abandon(ctx, task.ID, err)
		return "", fmt.Errorf("failed to publish task %s: %w", task.ID, err)
	}

	q.logger.Info("Task enqueued",
		zap.String("task_id", task.ID),
		zap.String("job_type", string(jobType)),
		zap.String("queue", string(queue)))
	return task.ID, nil
}

// abandon marks a recorded task failed when no message could be published
// for it, so it does not sit pending forever.
func (q *TaskQueue) abandon(ctx context.Context, taskID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
	defer cancel()

	updates := map[string]any{
		"status":       domain.TaskStatusFailed,
		"outcome":      "error",
		"message":      "publish failed: " + cause.Error(),
		"completed_at": q.now().UTC(),
	}
	if err := q.tasks.UpdateTask(ctx, taskID, updates); err != nil {
		q.logger.Error("Failed to mark unpublished task failed",
			zap.String("task_id", taskID), zap.Error(err))
	}
}

// Dequeue blocks until a message is available on one of queues.
func (q *TaskQueue) Dequeue(ctx context.Context, queues ...domain.QueueName) (*Delivery, error) {
	if len(queues) == 0 {
		queues = domain.QueueNames()
	}
	return q.broker.Consume(ctx, queues)
}
