// Copyright 2025 James Ross
// Package worker implements the pipeline's four long-running worker
// kinds (preprocess, primary-decode, fallback-decode, retry), each an
// independent process that drives one image at a time through its stage of
// the state machine while running N-way in parallel across goroutines and
// hosts. Coordination happens entirely through the document-store-backed
// queue and image repository; no worker talks to another directly.
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumensparkxy/barcode-pipeline/internal/aidecoder"
	"github.com/lumensparkxy/barcode-pipeline/internal/blobstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/breaker"
	"github.com/lumensparkxy/barcode-pipeline/internal/detections"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
	"github.com/lumensparkxy/barcode-pipeline/internal/obs"
	"github.com/lumensparkxy/barcode-pipeline/internal/preprocess"
	"github.com/lumensparkxy/barcode-pipeline/internal/products"
	"github.com/lumensparkxy/barcode-pipeline/internal/queue"
	"github.com/lumensparkxy/barcode-pipeline/internal/scanner"
)

// MaxAIAttempts is the §4.6 cap on total fallback (AI decoder) attempts
// against a single image, counting the original fallback call.
const MaxAIAttempts = 3

// Deps bundles every capability a worker needs. Each cmd/*-worker binary
// constructs one Deps at startup and passes it to whichever worker kind it
// runs; no package-level globals are used (§9 "Global state").
type Deps struct {
	Queue          *queue.Queue
	Images         *images.Repository
	Detections     *detections.Repository
	Products       products.Lookup
	Blob           blobstore.Store
	Preprocessor   preprocess.Preprocessor
	PreprocessOpts preprocess.Options
	Scanner        *scanner.Detector
	AIDecoder      aidecoder.Decoder
	Breaker        *breaker.CircuitBreaker
	Log            *zap.Logger
}

// Options configure one poll loop's shutdown behaviour.
type Options struct {
	Count        int
	LeaseSeconds time.Duration
	PollInterval time.Duration
	Once         bool // run a single dequeue attempt per goroutine, then return
	Daemon       bool // ignore the consecutive-empty-poll exit rule
}

// emptyPollExitThreshold is the §6 CLI contract: non-daemon mode exits
// after 2 consecutive empty polls.
const emptyPollExitThreshold = 2

func newWorkerID(prefix string, idx int) string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%s-%d-%d", prefix, host, os.Getpid(), idx)
}

// runLoop is the shared dequeue/process/repeat loop every worker kind
// drives; handle does the per-job work and returns an error to fail the
// job (scheduling its retry/backoff through the queue's Fail path).
func runLoop(ctx context.Context, q *queue.Queue, jobType queue.Type, workerID string, opts Options, log *zap.Logger, handle func(context.Context, queue.Job) error) {
	consecutiveEmpty := 0
	for ctx.Err() == nil {
		job, err := q.Dequeue(ctx, jobType, workerID, opts.LeaseSeconds)
		if err != nil {
			if err == queue.ErrEmpty {
				consecutiveEmpty++
				if opts.Once {
					return
				}
				if !opts.Daemon && consecutiveEmpty >= emptyPollExitThreshold {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(opts.PollInterval):
				}
				continue
			}
			log.Warn("dequeue error", obs.Err(err), obs.String("job_type", string(jobType)))
			select {
			case <-ctx.Done():
				return
			case <-time.After(opts.PollInterval):
			}
			continue
		}
		consecutiveEmpty = 0

		obs.JobsDequeued.WithLabelValues(string(jobType)).Inc()
		start := time.Now()
		jobCtx, span := obs.ContextWithJobSpan(ctx, job)
		procErr := safeguard(jobCtx, job, string(jobType), log, handle)
		obs.JobProcessingDuration.WithLabelValues(string(jobType)).Observe(time.Since(start).Seconds())

		if procErr != nil {
			obs.RecordError(jobCtx, procErr)
			span.End()
			obs.JobsFailed.WithLabelValues(string(jobType)).Inc()
			if ferr := q.Fail(ctx, job, procErr.Error(), ""); ferr != nil {
				log.Error("queue fail update failed", obs.Err(ferr), obs.String("job_id", job.JobID))
			} else if job.AttemptCount < job.MaxAttempts {
				obs.JobsRetried.WithLabelValues(string(jobType)).Inc()
			}
			log.Warn("job processing failed", obs.String("job_id", job.JobID), obs.String("image_id", job.ImageID), obs.Err(procErr))
			if opts.Once {
				return
			}
			continue
		}

		obs.SetSpanSuccess(jobCtx)
		span.End()
		obs.JobsCompleted.WithLabelValues(string(jobType)).Inc()
		if err := q.Complete(ctx, job.JobID, ""); err != nil {
			log.Error("queue complete update failed", obs.Err(err), obs.String("job_id", job.JobID))
		}
		if opts.Once {
			return
		}
	}
}

// safeguard runs handle for one job and recovers any panic it raises,
// converting it into a plain error so one bad image's bug can fail that
// job through the normal retry/backoff path instead of taking the whole
// worker process down (§7 error-handling: one bad image cannot stall a
// batch).
func safeguard(ctx context.Context, job queue.Job, jobType string, log *zap.Logger, handle func(context.Context, queue.Job) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker: recovered panic", obs.String("job_type", jobType), obs.String("image_id", job.ImageID), obs.String("job_id", job.JobID))
			err = fmt.Errorf("worker: panic processing image %s: %v", job.ImageID, r)
		}
	}()
	return handle(ctx, job)
}

// safeguardImage is safeguard's counterpart for the retry worker's
// direct-poll path, which has an images.Image instead of a queue.Job to
// label the recovered error with.
func safeguardImage(ctx context.Context, img images.Image, stage string, log *zap.Logger, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker: recovered panic", obs.String("stage", stage), obs.String("image_id", img.ImageID))
			err = fmt.Errorf("worker: panic processing image %s at %s: %v", img.ImageID, stage, r)
		}
	}()
	return fn(ctx)
}

// fanOut runs runOne across opts.Count goroutines, reporting worker_active
// to the active-goroutine gauge for the lifetime of each.
func fanOut(ctx context.Context, kind string, opts Options, runOne func(ctx context.Context, workerID string)) {
	var wg sync.WaitGroup
	for i := 0; i < opts.Count; i++ {
		wg.Add(1)
		id := newWorkerID(kind, i)
		go func(workerID string) {
			defer wg.Done()
			obs.WorkerActive.WithLabelValues(kind).Inc()
			defer obs.WorkerActive.WithLabelValues(kind).Dec()
			runOne(ctx, workerID)
		}(id)
	}
	wg.Wait()
}
