// Copyright 2025 James Ross
// Package dispatcher implements the §4.3 poll-and-enqueue cycle: a single
// ticker-driven scan of the image repository that keeps the job queue fed
// without any worker having to scan the image collection itself.
package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lumensparkxy/barcode-pipeline/internal/config"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
	"github.com/lumensparkxy/barcode-pipeline/internal/obs"
	"github.com/lumensparkxy/barcode-pipeline/internal/queue"
)

// Dispatcher periodically enqueues preprocess/decode_primary/decode_fallback
// jobs for images that need them. It never does the work itself; running
// more than one instance is safe since enqueue idempotency is enforced by
// checking for an existing pending/in-progress job before inserting one.
type Dispatcher struct {
	cfg    *config.Config
	images *images.Repository
	queue  *queue.Queue
	log    *zap.Logger
}

// New binds a Dispatcher to its dependencies.
func New(cfg *config.Config, imageRepo *images.Repository, q *queue.Queue, log *zap.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, images: imageRepo, queue: q, log: log}
}

// Run drives ScanOnce on cfg.Dispatcher.PollInterval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.cfg.Dispatcher.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.ScanOnce(ctx)
		}
	}
}

// ScanOnce applies the three §4.3 rules once. Each rule is independent and
// a failure in one does not stop the others from running. Exported so the
// dispatcher CLI's --once flag can drive a single cycle directly.
func (d *Dispatcher) ScanOnce(ctx context.Context) {
	d.enqueuePreprocess(ctx)
	d.enqueuePrimary(ctx)
	d.enqueueFallback(ctx)
}

func (d *Dispatcher) batchSize() int {
	if d.cfg.Dispatcher.BatchSize > 0 {
		return d.cfg.Dispatcher.BatchSize
	}
	return 50
}

// enqueuePreprocess implements rule 1: every pending image without an
// existing preprocess job gets one.
func (d *Dispatcher) enqueuePreprocess(ctx context.Context) {
	pending, err := d.images.FindByStatus(ctx, images.StatusPending, d.batchSize())
	if err != nil {
		d.log.Warn("dispatcher: find pending images", obs.Err(err))
		return
	}
	for _, img := range pending {
		d.enqueueIfAbsent(ctx, queue.TypePreprocess, img)
	}
}

// enqueuePrimary implements rule 2: every preprocessed image that doesn't
// need AI fallback gets a decode_primary job.
func (d *Dispatcher) enqueuePrimary(ctx context.Context) {
	preprocessed, err := d.images.FindByStatus(ctx, images.StatusPreprocessed, d.batchSize())
	if err != nil {
		d.log.Warn("dispatcher: find preprocessed images", obs.Err(err))
		return
	}
	for _, img := range preprocessed {
		if img.Processing.NeedsFallback {
			continue
		}
		d.enqueueIfAbsent(ctx, queue.TypeDecodePrimary, img)
	}
}

// enqueueFallback implements rule 3: every image flagged needs_fallback in
// an eligible status gets a decode_fallback job.
func (d *Dispatcher) enqueueFallback(ctx context.Context) {
	needsFallback, err := d.images.FindNeedingFallback(ctx, d.batchSize())
	if err != nil {
		d.log.Warn("dispatcher: find images needing fallback", obs.Err(err))
		return
	}
	for _, img := range needsFallback {
		d.enqueueIfAbsent(ctx, queue.TypeDecodeFallback, img)
	}
}

func (d *Dispatcher) enqueueIfAbsent(ctx context.Context, jobType queue.Type, img images.Image) {
	exists, err := d.queue.ExistsForImage(ctx, img.ImageID, jobType)
	if err != nil {
		d.log.Warn("dispatcher: exists check failed", obs.Err(err), obs.String("image_id", img.ImageID), obs.String("job_type", string(jobType)))
		return
	}
	if exists {
		return
	}
	ctx, span := obs.StartEnqueueSpan(ctx, string(jobType), img.ImageID)
	defer span.End()
	if _, err := d.queue.Enqueue(ctx, jobType, img.ImageID, img.BatchID, 0, time.Time{}); err != nil {
		obs.RecordError(ctx, err)
		d.log.Warn("dispatcher: enqueue failed", obs.Err(err), obs.String("image_id", img.ImageID), obs.String("job_type", string(jobType)))
		return
	}
	obs.SetSpanSuccess(ctx)
	obs.JobsEnqueued.WithLabelValues(string(jobType)).Inc()
}
