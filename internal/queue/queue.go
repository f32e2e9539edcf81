// Copyright 2025 James Ross
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumensparkxy/barcode-pipeline/internal/documentstore"
)

const defaultMaxAttempts = 3

// Queue is the durable, lease-based job queue described by §4.2.
type Queue struct {
	col *documentstore.Collection[Job]
}

// New binds a Queue to the jobs collection.
func New(store *documentstore.Store) *Queue {
	return &Queue{col: documentstore.NewCollection[Job](store, "jobs")}
}

// Enqueue inserts a pending job. priority defaults to 0; scheduledFor
// defaults to now.
func (q *Queue) Enqueue(ctx context.Context, jobType Type, imageID, batchID string, priority int, scheduledFor time.Time) (Job, error) {
	if scheduledFor.IsZero() {
		scheduledFor = time.Now().UTC()
	}
	job := Job{
		JobID:        uuid.NewString(),
		JobType:      jobType,
		ImageID:      imageID,
		BatchID:      batchID,
		Status:       StatusPending,
		Priority:     priority,
		MaxAttempts:  defaultMaxAttempts,
		ScheduledFor: scheduledFor,
		CreatedAt:    time.Now().UTC(),
	}
	if err := q.col.InsertOne(ctx, job); err != nil {
		return Job{}, fmt.Errorf("queue: enqueue: %w", err)
	}
	return job, nil
}

// ErrEmpty is returned by Dequeue when no runnable job is available.
var ErrEmpty = errors.New("queue: no runnable job")

// Dequeue atomically claims the highest-priority, earliest-scheduled
// runnable job, optionally restricted to jobType. A job is runnable iff
// pending and due, or in_progress with an expired lease (crash recovery by
// lease-stealing, no external watchdog required).
func (q *Queue) Dequeue(ctx context.Context, jobType Type, workerID string, lease time.Duration) (Job, error) {
	now := time.Now().UTC()
	runnable := documentstore.Filter{
		"$or": documentstore.Or{Filters: []documentstore.Filter{
			{"status": string(StatusPending), "scheduled_for": documentstore.Lte{Value: now}},
			{"status": string(StatusInProgress), "locked_until": documentstore.Lt{Value: now}},
		}},
	}
	if jobType != "" {
		runnable["job_type"] = string(jobType)
	}

	lockedUntil := now.Add(lease)
	job, err := q.col.FindOneAndUpdate(ctx, runnable, documentstore.Update{
		Set: map[string]any{
			"status":       string(StatusInProgress),
			"worker_id":    workerID,
			"started_at":   now,
			"locked_until": lockedUntil,
		},
		Inc: map[string]float64{"attempt_count": 1},
	}, documentstore.FindOneAndUpdateOptions{Sort: []documentstore.SortKey{
		{Field: "priority", Desc: true},
		{Field: "scheduled_for", Desc: false},
	}})
	if errors.Is(err, documentstore.ErrNoDocuments) {
		return Job{}, ErrEmpty
	}
	if err != nil {
		return Job{}, fmt.Errorf("queue: dequeue: %w", err)
	}
	return job, nil
}

// Complete marks jobID completed and releases its lease.
func (q *Queue) Complete(ctx context.Context, jobID, resultBlob string) error {
	now := time.Now().UTC()
	set := map[string]any{
		"status":       string(StatusCompleted),
		"completed_at": now,
	}
	if resultBlob != "" {
		set["result_blob"] = resultBlob
	}
	err := q.col.UpdateOne(ctx, documentstore.Filter{"id": jobID}, documentstore.Update{Set: set})
	if err != nil {
		return fmt.Errorf("queue: complete %s: %w", jobID, err)
	}
	return nil
}

// Fail records a job failure. If attempt_count is still under max_attempts
// the job returns to pending with the §4.2 exponential backoff; otherwise
// it is marked failed for good.
func (q *Queue) Fail(ctx context.Context, job Job, errMsg, errDetail string) error {
	now := time.Now().UTC()
	if job.AttemptCount < job.MaxAttempts {
		set := map[string]any{
			"status":        string(StatusPending),
			"scheduled_for": now.Add(backoffSeconds(job.AttemptCount)),
			"locked_until":  nil,
			"worker_id":     "",
			"error":         errMsg,
			"error_detail":  errDetail,
		}
		return q.update(ctx, job.JobID, set)
	}
	set := map[string]any{
		"status":       string(StatusFailed),
		"completed_at": now,
		"error":        errMsg,
		"error_detail": errDetail,
	}
	return q.update(ctx, job.JobID, set)
}

func (q *Queue) update(ctx context.Context, jobID string, set map[string]any) error {
	if err := q.col.UpdateOne(ctx, documentstore.Filter{"id": jobID}, documentstore.Update{Set: set}); err != nil {
		return fmt.Errorf("queue: update %s: %w", jobID, err)
	}
	return nil
}

// Cancel marks a job cancelled.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	return q.update(ctx, jobID, map[string]any{"status": string(StatusCancelled)})
}

// ExistsForImage reports whether a pending or in_progress job of jobType
// already exists for imageID, the dispatcher's deduplication check.
func (q *Queue) ExistsForImage(ctx context.Context, imageID string, jobType Type) (bool, error) {
	n, err := q.col.CountDocuments(ctx, documentstore.Filter{
		"image_id": imageID,
		"job_type": string(jobType),
		"$or": documentstore.Or{Filters: []documentstore.Filter{
			{"status": string(StatusPending)},
			{"status": string(StatusInProgress)},
		}},
	})
	if err != nil {
		return false, fmt.Errorf("queue: exists_for_image: %w", err)
	}
	return n > 0, nil
}

// CleanupOldCompleted purges completed/failed/cancelled jobs older than
// `days`, keeping the jobs collection from growing without bound (jobs are
// derived and disposable, per the aggregate's ownership notes).
func (q *Queue) CleanupOldCompleted(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return q.col.DeleteMany(ctx, documentstore.Filter{
		"completed_at": documentstore.Lt{Value: cutoff},
		"$or": documentstore.Or{Filters: []documentstore.Filter{
			{"status": string(StatusCompleted)},
			{"status": string(StatusFailed)},
			{"status": string(StatusCancelled)},
		}},
	})
}

// Stats groups job counts by type and status, mirroring the original
// get_stats aggregation pipeline.
type Stats struct {
	JobType Type
	Status  Status
	Count   int64
}

// GetStats returns the grouped-by-type-and-status counts across the queue.
func (q *Queue) GetStats(ctx context.Context) ([]Stats, error) {
	groups, err := q.col.Aggregate(ctx, documentstore.Filter{}, []string{"job_type", "status"})
	if err != nil {
		return nil, fmt.Errorf("queue: get_stats: %w", err)
	}
	out := make([]Stats, 0, len(groups))
	for _, g := range groups {
		if len(g.Key) != 2 {
			continue
		}
		out = append(out, Stats{JobType: Type(g.Key[0]), Status: Status(g.Key[1]), Count: g.Count})
	}
	return out, nil
}

// CountPending counts pending jobs, optionally restricted to jobType.
func (q *Queue) CountPending(ctx context.Context, jobType Type) (int64, error) {
	filter := documentstore.Filter{"status": string(StatusPending)}
	if jobType != "" {
		filter["job_type"] = string(jobType)
	}
	return q.col.CountDocuments(ctx, filter)
}
