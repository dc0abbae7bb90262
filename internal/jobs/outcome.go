// Package jobs holds the analytic job bodies run by the workers. Every job
// reports through an Outcome; errors never escape a handler.
package jobs

import (
	"context"

	"wildfire-analytics/internal/domain"
)

type OutcomeKind int

const (
	Success OutcomeKind = iota
	InsufficientData
	Failure
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "completed"
	case InsufficientData:
		return "insufficient_data"
	case Failure:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the result of one job attempt. Summary is set on Success,
// Message on InsufficientData, Err on Failure.
type Outcome struct {
	Kind    OutcomeKind
	Summary map[string]any
	Message string
	Err     error
}

func Completed(summary map[string]any) Outcome {
	return Outcome{Kind: Success, Summary: summary}
}

func Insufficient(message string) Outcome {
	return Outcome{Kind: InsufficientData, Message: message}
}

func Failed(err error) Outcome {
	return Outcome{Kind: Failure, Err: err, Message: err.Error()}
}

// Handler runs one attempt of a job.
type Handler func(ctx context.Context, args domain.Arguments) Outcome

// Registry binds every job type to its handler.
type Registry map[domain.JobType]Handler

func (r Registry) Lookup(jobType domain.JobType) (Handler, bool) {
	h, ok := r[jobType]
	return h, ok
}
