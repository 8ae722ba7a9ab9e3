package queue

import (
	"errors"
	"time"
)

// timestampFormat is fixed width so stored timestamps sort lexically.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Task is one pipeline stage of one job waiting for, or claimed by, a worker.
type Task struct {
	ID          string
	JobID       string
	Stage       string
	Status      Status
	Attempt     int
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   *string
}

type EnqueueRequest struct {
	JobID string
	Stage string
}

var ErrTaskNotFound = errors.New("task not found")
