package domain

import (
	"fmt"
	"time"
)

// JobType is the closed set of analytic jobs the workers know how to run.
type JobType string

const (
	JobClustering JobType = "clustering"
	JobPCA        JobType = "pca"
	JobForecast   JobType = "forecast"
	JobRisk       JobType = "risk"
)

// QueueName identifies a named broker queue.
type QueueName string

const (
	QueueAnalytics QueueName = "analytics"
	QueueRisk      QueueName = "risk"
	QueueReports   QueueName = "reports"
)

// JobTypes returns every job type in scheduler fan-out order.
func JobTypes() []JobType {
	return []JobType{JobClustering, JobPCA, JobForecast, JobRisk}
}

// QueueNames returns every queue the broker provisions, including reports,
// which has no job bound to it yet.
func QueueNames() []QueueName {
	return []QueueName{QueueAnalytics, QueueRisk, QueueReports}
}

// Queue returns the queue the job type is routed to, or "" for an unknown type.
func (j JobType) Queue() QueueName {
	switch j {
	case JobClustering, JobPCA, JobForecast:
		return QueueAnalytics
	case JobRisk:
		return QueueRisk
	default:
		return ""
	}
}

func (j JobType) Valid() bool {
	return j.Queue() != ""
}

// ParseJobType converts user input into a JobType.
func ParseJobType(s string) (JobType, error) {
	j := JobType(s)
	if !j.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobType, s)
	}
	return j, nil
}

// ParseQueueName converts user input into a QueueName.
func ParseQueueName(s string) (QueueName, error) {
	for _, q := range QueueNames() {
		if string(q) == s {
			return q, nil
		}
	}
	return "", fmt.Errorf("unknown queue %q", s)
}

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further attempt will be made.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Arguments are the optional job parameters carried in a task message.
// Nil pointers mean "use the job default".
type Arguments struct {
	Eps             *float64 `gorethink:"eps,omitempty" json:"eps,omitempty" validate:"omitempty,gt=0"`
	MinSamples      *int     `gorethink:"min_samples,omitempty" json:"min_samples,omitempty" validate:"omitempty,min=1"`
	ForecastPeriods *int     `gorethink:"forecast_periods,omitempty" json:"forecast_periods,omitempty" validate:"omitempty,min=1,max=120"`
	State           string   `gorethink:"state,omitempty" json:"state,omitempty" validate:"omitempty,len=2,alpha"`
}

type Task struct {
	ID           string         `gorethink:"id,omitempty" json:"id"`
	JobType      JobType        `gorethink:"job_type" json:"job_type"`
	Queue        QueueName      `gorethink:"queue" json:"queue"`
	Arguments    Arguments      `gorethink:"arguments" json:"arguments"`
	AttemptCount int            `gorethink:"attempt_count" json:"attempt_count"`
	Status       TaskStatus     `gorethink:"status" json:"status"`
	Outcome      string         `gorethink:"outcome,omitempty" json:"outcome,omitempty"`
	Message      string         `gorethink:"message,omitempty" json:"message,omitempty"`
	Summary      map[string]any `gorethink:"summary,omitempty" json:"summary,omitempty"`
	WorkerID     string         `gorethink:"worker_id,omitempty" json:"worker_id,omitempty"`
	CreatedAt    time.Time      `gorethink:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `gorethink:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time     `gorethink:"completed_at,omitempty" json:"completed_at,omitempty"`
}

type CreateTaskRequest struct {
	JobType   string    `json:"job_type" validate:"required,oneof=clustering pca forecast risk"`
	Arguments Arguments `json:"arguments"`
}
