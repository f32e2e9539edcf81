// Copyright 2025 James Ross
// Package queue implements the at-least-once, lease-based durable job
// queue that hands work to the pipeline workers.
package queue

import "time"

// Type identifies what kind of work a job represents.
type Type string

const (
	TypePreprocess     Type = "preprocess"
	TypeDecodePrimary  Type = "decode_primary"
	TypeDecodeFallback Type = "decode_fallback"
	TypeCleanup        Type = "cleanup"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Job is one unit of queued work.
type Job struct {
	JobID        string     `json:"id"`
	JobType      Type       `json:"job_type"`
	ImageID      string     `json:"image_id"`
	BatchID      string     `json:"batch_id"`
	Status       Status     `json:"status"`
	Priority     int        `json:"priority"`
	AttemptCount int        `json:"attempt_count"`
	MaxAttempts  int        `json:"max_attempts"`
	WorkerID     string     `json:"worker_id,omitempty"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ResultBlob   string     `json:"result_blob,omitempty"`
	Error        string     `json:"error,omitempty"`
	ErrorDetail  string     `json:"error_detail,omitempty"`
	TraceID      string     `json:"trace_id,omitempty"`
	SpanID       string     `json:"span_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DocumentID satisfies documentstore.Document.
func (j Job) DocumentID() string { return j.JobID }

// backoffSeconds implements the exponential backoff formula from §4.2:
// 60 * 2^attempt_count.
func backoffSeconds(attemptCount int) time.Duration {
	seconds := 60
	for i := 0; i < attemptCount; i++ {
		seconds *= 2
	}
	return time.Duration(seconds) * time.Second
}
