// Copyright 2025 James Ross
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/lumensparkxy/barcode-pipeline/internal/barcode"
	"github.com/lumensparkxy/barcode-pipeline/internal/blobstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/breaker"
	"github.com/lumensparkxy/barcode-pipeline/internal/detections"
	"github.com/lumensparkxy/barcode-pipeline/internal/documentstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
	"github.com/lumensparkxy/barcode-pipeline/internal/obs"
	"github.com/lumensparkxy/barcode-pipeline/internal/queue"
)

// FallbackWorker invokes the remote AI decoder on images the primary
// worker could not read locally (§4.5).
type FallbackWorker struct {
	deps Deps
}

// NewFallbackWorker binds a FallbackWorker to deps.
func NewFallbackWorker(deps Deps) *FallbackWorker { return &FallbackWorker{deps: deps} }

// Run fans out opts.Count goroutines polling the decode_fallback job queue.
func (w *FallbackWorker) Run(ctx context.Context, opts Options) {
	fanOut(ctx, "fallback", opts, func(ctx context.Context, workerID string) {
		runLoop(ctx, w.deps.Queue, queue.TypeDecodeFallback, workerID, opts, w.deps.Log, w.handle)
	})
}

func (w *FallbackWorker) handle(ctx context.Context, job queue.Job) error {
	if exists, err := w.deps.Detections.ExistsForImage(ctx, job.ImageID); err != nil {
		return fmt.Errorf("fallback: idempotency check: %w", err)
	} else if exists {
		return nil
	}

	img, err := w.deps.Images.Get(ctx, job.ImageID)
	if err != nil {
		return fmt.Errorf("fallback: load image %s: %w", job.ImageID, err)
	}
	if img.Status != images.StatusPreprocessed || !img.Processing.NeedsFallback {
		return nil
	}
	sourcePath := img.Preprocessing.NormalizedPath
	if sourcePath == "" {
		sourcePath = blobstore.Incoming(img.BatchID, img.ImageID, sourceExt(img.SourceFilename))
	}

	if err := w.deps.Images.Transition(ctx, img.ImageID, images.StatusPreprocessed, images.StatusDecodingFallback, nil); err != nil {
		return fmt.Errorf("fallback: transition to decoding_fallback: %w", err)
	}

	return runFallbackDecode(ctx, w.deps, img, sourcePath)
}

// RetryWorker retries the AI decoder against images the fallback worker
// could not salvage, up to MaxAIAttempts total fallback attempts (§4.6). It
// has no job-queue input: failed images are not enqueued by the dispatcher
// (§4.3 never targets status=failed), so the retry worker polls the image
// repository directly, the same direct-poll escape hatch §4.3 grants any
// worker.
type RetryWorker struct {
	deps Deps
}

// NewRetryWorker binds a RetryWorker to deps.
func NewRetryWorker(deps Deps) *RetryWorker { return &RetryWorker{deps: deps} }

// Run polls the failed-image set on opts.PollInterval, fanning out
// opts.Count goroutines each claiming one eligible image per cycle via the
// same state-machine CAS the queue uses, so concurrent retry workers never
// double-process an image.
func (w *RetryWorker) Run(ctx context.Context, opts Options) {
	fanOut(ctx, "retry", opts, func(ctx context.Context, workerID string) {
		w.runPollLoop(ctx, workerID, opts)
	})
}

func (w *RetryWorker) runPollLoop(ctx context.Context, workerID string, opts Options) {
	consecutiveEmpty := 0
	for ctx.Err() == nil {
		processed, err := w.pollOnce(ctx)
		if err != nil {
			w.deps.Log.Warn("retry: poll error", obs.Err(err), obs.String("worker_id", workerID))
		}
		if !processed {
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
		consecutiveEmpty = 0
		if opts.Once {
			return
		}
	}
}

// pollOnce looks for one eligible failed image and processes it, returning
// whether an image was found and claimed.
// retryPollBatch bounds how many failed images one poll cycle inspects
// before giving up and reporting empty, so a large failed backlog can't
// make a single cycle scan the whole table.
const retryPollBatch = 50

func (w *RetryWorker) pollOnce(ctx context.Context) (bool, error) {
	candidates, err := w.deps.Images.FindByStatus(ctx, images.StatusFailed, retryPollBatch)
	if err != nil {
		return false, fmt.Errorf("retry: find failed images: %w", err)
	}
	for _, img := range candidates {
		if len(img.Processing.FallbackAttempts) >= MaxAIAttempts {
			continue
		}
		if exists, err := w.deps.Detections.ExistsForImage(ctx, img.ImageID); err != nil {
			return false, fmt.Errorf("retry: idempotency check: %w", err)
		} else if exists {
			continue
		}

		sourcePath := img.FinalBlobPath
		if sourcePath == "" {
			sourcePath = blobstore.Failed(img.BatchID, img.ImageID, normalizedExt)
		}
		if err := w.deps.Images.Transition(ctx, img.ImageID, images.StatusFailed, images.StatusDecodingFallback, nil); err != nil {
			if errors.Is(err, documentstore.ErrNoDocuments) {
				// lost the CAS race to another retry worker; try the next candidate
				continue
			}
			return false, fmt.Errorf("retry: transition to decoding_fallback: %w", err)
		}

		if err := safeguardImage(ctx, img, "decode_failed", w.deps.Log, func(ctx context.Context) error {
			return runFallbackDecode(ctx, w.deps, img, sourcePath)
		}); err != nil {
			w.deps.Log.Warn("retry: decode failed", obs.Err(err), obs.String("image_id", img.ImageID))
		}
		return true, nil
	}
	return false, nil
}

// runFallbackDecode is the §4.5 algorithm shared by the fallback and retry
// workers: download the artifact, call the AI decoder behind the circuit
// breaker, validate candidates locally, and branch on how many came back
// valid. img.Status is expected to already be decoding_fallback.
func runFallbackDecode(ctx context.Context, deps Deps, img images.Image, sourcePath string) error {
	ext := blobstore.GetExtension(sourcePath)
	if ext == "" {
		ext = normalizedExt
	}

	raw, err := downloadBlob(ctx, deps.Blob, sourcePath)
	if err != nil {
		return failFallback(ctx, deps, img, sourcePath, ext, fmt.Errorf("download artifact: %w", err))
	}

	if deps.Breaker != nil && !deps.Breaker.Allow() {
		return fmt.Errorf("fallback: circuit breaker open, AI decoder unavailable")
	}

	start := time.Now()
	result, decodeErr := deps.AIDecoder.Decode(ctx, raw, "image/jpeg")
	duration := time.Since(start)
	if deps.Breaker != nil {
		before := deps.Breaker.State()
		deps.Breaker.Record(decodeErr == nil)
		after := deps.Breaker.State()
		obs.CircuitBreakerState.Set(float64(after))
		if before != breaker.Open && after == breaker.Open {
			obs.CircuitBreakerTrips.Inc()
		}
	}
	if decodeErr != nil {
		return failFallback(ctx, deps, img, sourcePath, ext, fmt.Errorf("ai decode: %w", decodeErr))
	}
	obs.AITokensUsed.Add(float64(result.Tokens))

	var valid []detections.Detection
	now := time.Now().UTC()
	for _, reading := range result.Readings {
		v := barcode.Validate(reading.Code)
		if !v.Valid() {
			continue
		}
		normalized, _ := barcode.NormalizeToEAN13(reading.Code, v.Symbology)
		confidence := reading.Confidence
		d := detections.Detection{
			DetectionID:          uuid.NewString(),
			ImageID:              img.ImageID,
			BatchID:              img.BatchID,
			SourceFilename:       img.SourceFilename,
			Code:                 reading.Code,
			Symbology:            v.Symbology,
			NormalizedCode:       normalized,
			Source:               detections.SourceFallbackAI,
			Confidence:           &confidence,
			ChecksumValid:        v.ChecksumValid,
			LengthValid:          v.LengthValid,
			NumericOnly:          v.NumericOnly,
			GeminiConfidence:     &confidence,
			GeminiSymbologyGuess: reading.SymbologyGuess,
			DetectedAt:           now,
		}
		if product, found, perr := lookupProduct(ctx, deps.Products, reading.Code, normalized); perr == nil && found {
			d.ProductFound = true
			d.ProductID = product.EAN
		}
		valid = append(valid, d)
	}

	attempt := images.DecoderAttempt{
		Decoder:     "ai",
		AttemptNum:  len(img.Processing.FallbackAttempts) + 1,
		IsFallback:  true,
		Success:     len(valid) >= 1,
		CodesFound:  len(valid),
		DurationMS:  duration.Milliseconds(),
		Tokens:      result.Tokens,
		AttemptedAt: now,
	}
	img.AddDecoderAttempt(attempt)

	switch len(valid) {
	case 0:
		return failFallback(ctx, deps, img, sourcePath, ext, fmt.Errorf("ai decoder returned no valid codes"))
	case 1:
		if err := deps.Detections.Create(ctx, valid[0]); err != nil {
			return fmt.Errorf("fallback: create detection: %w", err)
		}
		obs.DetectionsCreated.WithLabelValues(string(detections.SourceFallbackAI)).Inc()

		processedPath := blobstore.Processed(img.BatchID, img.ImageID, ext)
		if err := deps.Blob.Move(ctx, sourcePath, processedPath); err != nil {
			deps.Log.Warn("fallback: move to processed failed, non-fatal", obs.Err(err), obs.String("image_id", img.ImageID))
		}
		extra := map[string]any{
			"processing.fallback_attempts": img.Processing.FallbackAttempts,
			"processing.cumulative_tokens": img.Processing.CumulativeTokens,
			"detection_count":              1,
			"final_blob_path":              processedPath,
		}
		if err := deps.Images.Transition(ctx, img.ImageID, images.StatusDecodingFallback, images.StatusDecodedFallback, extra); err != nil {
			return fmt.Errorf("fallback: transition to decoded_fallback: %w", err)
		}
		return nil
	default:
		for i := range valid {
			valid[i].Ambiguous = true
		}
		if err := deps.Detections.CreateMany(ctx, valid); err != nil {
			return fmt.Errorf("fallback: create detections: %w", err)
		}
		for range valid {
			obs.DetectionsCreated.WithLabelValues(string(detections.SourceFallbackAI)).Inc()
		}

		reviewPath := blobstore.ManualReview(img.BatchID, img.ImageID, ext)
		if err := deps.Blob.Move(ctx, sourcePath, reviewPath); err != nil {
			deps.Log.Warn("fallback: move to manual-review failed, non-fatal", obs.Err(err), obs.String("image_id", img.ImageID))
		}
		extra := map[string]any{
			"processing.fallback_attempts": img.Processing.FallbackAttempts,
			"processing.cumulative_tokens": img.Processing.CumulativeTokens,
			"detection_count":              len(valid),
			"final_blob_path":              reviewPath,
		}
		if err := deps.Images.Transition(ctx, img.ImageID, images.StatusDecodingFallback, images.StatusManualReview, extra); err != nil {
			return fmt.Errorf("fallback: transition to manual_review: %w", err)
		}
		return nil
	}
}

// failFallback records cause, moves the artifact to failed/ (best-effort),
// and transitions the image to its terminal failed state (§4.5 steps 7-8).
func failFallback(ctx context.Context, deps Deps, img images.Image, sourcePath, ext string, cause error) error {
	failedPath := blobstore.Failed(img.BatchID, img.ImageID, ext)
	if sourcePath != failedPath {
		if err := deps.Blob.Move(ctx, sourcePath, failedPath); err != nil {
			deps.Log.Warn("fallback: move to failed folder failed, non-fatal", obs.Err(err), obs.String("image_id", img.ImageID))
		}
	}
	img.AddError("decode_fallback", cause.Error(), time.Now().UTC())
	extra := map[string]any{
		"final_blob_path":              failedPath,
		"processing.errors":            img.Processing.Errors,
		"processing.fallback_attempts": img.Processing.FallbackAttempts,
		"processing.cumulative_tokens": img.Processing.CumulativeTokens,
	}
	if err := deps.Images.Transition(ctx, img.ImageID, images.StatusDecodingFallback, images.StatusFailed, extra); err != nil {
		return fmt.Errorf("fallback: transition to failed: %w", err)
	}
	return cause
}

func downloadBlob(ctx context.Context, store blobstore.Store, path string) ([]byte, error) {
	rc, err := store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
