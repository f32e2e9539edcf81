// Copyright 2025 James Ross
package worker

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"context"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/lumensparkxy/barcode-pipeline/internal/barcode"
	"github.com/lumensparkxy/barcode-pipeline/internal/blobstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/detections"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
	"github.com/lumensparkxy/barcode-pipeline/internal/obs"
	"github.com/lumensparkxy/barcode-pipeline/internal/queue"
	"github.com/lumensparkxy/barcode-pipeline/internal/scanner"
)

// PrimaryWorker runs the local scanner on a normalised image and either
// promotes it to decoded_primary or marks it for AI fallback (§4.4).
type PrimaryWorker struct {
	deps Deps
}

// NewPrimaryWorker binds a PrimaryWorker to deps.
func NewPrimaryWorker(deps Deps) *PrimaryWorker { return &PrimaryWorker{deps: deps} }

// Run fans out opts.Count goroutines polling the decode_primary job queue.
func (w *PrimaryWorker) Run(ctx context.Context, opts Options) {
	fanOut(ctx, "primary", opts, func(ctx context.Context, workerID string) {
		runLoop(ctx, w.deps.Queue, queue.TypeDecodePrimary, workerID, opts, w.deps.Log, w.handle)
	})
}

func (w *PrimaryWorker) handle(ctx context.Context, job queue.Job) error {
	// Idempotency guard: a detection already present means an earlier,
	// possibly lease-stolen, run already did this work.
	if exists, err := w.deps.Detections.ExistsForImage(ctx, job.ImageID); err != nil {
		return fmt.Errorf("primary: idempotency check: %w", err)
	} else if exists {
		return nil
	}

	img, err := w.deps.Images.Get(ctx, job.ImageID)
	if err != nil {
		return fmt.Errorf("primary: load image %s: %w", job.ImageID, err)
	}
	if img.Status != images.StatusPreprocessed || img.Processing.NeedsFallback {
		return nil
	}

	if err := w.deps.Images.Transition(ctx, img.ImageID, images.StatusPreprocessed, images.StatusDecodingPrimary, nil); err != nil {
		return fmt.Errorf("primary: transition to decoding_primary: %w", err)
	}

	start := time.Now()
	candidates, scanErr := w.scan(ctx, img)
	duration := time.Since(start)

	attempt := images.DecoderAttempt{
		Decoder:     "local",
		AttemptNum:  len(img.Processing.PrimaryAttempts) + 1,
		IsFallback:  false,
		DurationMS:  duration.Milliseconds(),
		AttemptedAt: time.Now().UTC(),
	}
	if scanErr != nil {
		attempt.Error = scanErr.Error()
		img.AddDecoderAttempt(attempt)
		img.AddError("decode_primary", scanErr.Error(), time.Now().UTC())
		return w.bounceToFallback(ctx, img)
	}

	var valid int
	for _, c := range candidates {
		if c.Validation.Valid() {
			valid++
		}
	}
	attempt.Success = valid >= 1
	attempt.CodesFound = valid
	img.AddDecoderAttempt(attempt)

	if valid == 0 {
		return w.bounceToFallback(ctx, img)
	}

	// §4.4 step 6: multiple simultaneous valid local reads are trusted as-is,
	// not routed to review (the open question this leaves intact, §9).
	var toCreate []detections.Detection
	now := time.Now().UTC()
	for _, c := range candidates {
		if !c.Validation.Valid() {
			continue
		}
		normalized, _ := barcode.NormalizeToEAN13(c.Reading.Code, c.Validation.Symbology)
		d := detections.Detection{
			DetectionID:     uuid.NewString(),
			ImageID:         img.ImageID,
			BatchID:         img.BatchID,
			SourceFilename:  img.SourceFilename,
			Code:            c.Reading.Code,
			Symbology:       c.Validation.Symbology,
			NormalizedCode:  normalized,
			Source:          detections.SourcePrimaryLocal,
			RotationDegrees: c.Reading.RotationDegrees,
			ChecksumValid:   c.Validation.ChecksumValid,
			LengthValid:     c.Validation.LengthValid,
			NumericOnly:     c.Validation.NumericOnly,
			DetectedAt:      now,
		}
		if product, found, err := lookupProduct(ctx, w.deps.Products, c.Reading.Code, normalized); err == nil && found {
			d.ProductFound = true
			d.ProductID = product.EAN
		}
		toCreate = append(toCreate, d)
	}
	if err := w.deps.Detections.CreateMany(ctx, toCreate); err != nil {
		return fmt.Errorf("primary: create detections: %w", err)
	}
	for range toCreate {
		obs.DetectionsCreated.WithLabelValues(string(detections.SourcePrimaryLocal)).Inc()
	}

	processedPath := blobstore.Processed(img.BatchID, img.ImageID, normalizedExt)
	if err := w.deps.Blob.Move(ctx, img.Preprocessing.NormalizedPath, processedPath); err != nil {
		w.deps.Log.Warn("primary: move to processed failed, non-fatal", obs.Err(err), obs.String("image_id", img.ImageID))
	}

	extra := map[string]any{
		"processing.primary_attempts": img.Processing.PrimaryAttempts,
		"processing.needs_fallback":   false,
		"detection_count":             len(toCreate),
		"final_blob_path":             processedPath,
	}
	if err := w.deps.Images.Transition(ctx, img.ImageID, images.StatusDecodingPrimary, images.StatusDecodedPrimary, extra); err != nil {
		return fmt.Errorf("primary: transition to decoded_primary: %w", err)
	}
	return nil
}

// bounceToFallback returns img to preprocessed with needs_fallback=true,
// the shared outcome of "zero valid readings" and "raised exception" in
// §4.4 steps 6/7.
func (w *PrimaryWorker) bounceToFallback(ctx context.Context, img images.Image) error {
	extra := map[string]any{
		"processing.primary_attempts": img.Processing.PrimaryAttempts,
		"processing.needs_fallback":   true,
		"processing.errors":           img.Processing.Errors,
	}
	if err := w.deps.Images.Transition(ctx, img.ImageID, images.StatusDecodingPrimary, images.StatusPreprocessed, extra); err != nil {
		return fmt.Errorf("primary: transition back to preprocessed: %w", err)
	}
	return nil
}

func (w *PrimaryWorker) scan(ctx context.Context, img images.Image) ([]scanner.Candidate, error) {
	rc, err := w.deps.Blob.Get(ctx, img.Preprocessing.NormalizedPath)
	if err != nil {
		return nil, fmt.Errorf("download normalized artifact: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read normalized artifact: %w", err)
	}

	decoded, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode normalized artifact: %w", err)
	}

	return w.deps.Scanner.ScanAllRotations(ctx, decoded)
}
