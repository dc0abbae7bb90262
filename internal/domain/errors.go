package domain

import "errors"

var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrTaskNotFound   = errors.New("task not found")
)
