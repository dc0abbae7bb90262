package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wildfire-analytics/internal/domain"
)

var (
	ErrBrokerClosed     = errors.New("broker closed")
	ErrMalformedMessage = errors.New("malformed task message")
)

// TaskMessage is the broker payload for one attempt of a task.
type TaskMessage struct {
	TaskID     string           `json:"task_id"`
	JobType    domain.JobType   `json:"job_type"`
	Queue      domain.QueueName `json:"queue"`
	Arguments  domain.Arguments `json:"arguments"`
	Attempt    int              `json:"attempt"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// Delivery is a consumed message that has not been acknowledged yet.
type Delivery struct {
	ID      string
	Queue   domain.QueueName
	Message *TaskMessage
}

// Broker is an at-least-once, multi-queue message channel. A delivery that is
// never acknowledged may be handed out again.
type Broker interface {
	Publish(ctx context.Context, msg *TaskMessage) error
	PublishDelayed(ctx context.Context, msg *TaskMessage, delay time.Duration) error
	// Consume blocks until a message is available on one of queues or ctx
	// is done.
	Consume(ctx context.Context, queues []domain.QueueName) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	HealthCheck(ctx context.Context) error
	Close() error
}

func encodeMessage(msg *TaskMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (*TaskMessage, error) {
	var msg TaskMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.TaskID == "" || msg.Queue == "" {
		return nil, fmt.Errorf("%w: missing task_id or queue", ErrMalformedMessage)
	}
	return &msg, nil
}
