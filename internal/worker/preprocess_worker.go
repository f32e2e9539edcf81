// Copyright 2025 James Ross
package worker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/lumensparkxy/barcode-pipeline/internal/blobstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
	"github.com/lumensparkxy/barcode-pipeline/internal/obs"
	"github.com/lumensparkxy/barcode-pipeline/internal/preprocess"
	"github.com/lumensparkxy/barcode-pipeline/internal/queue"
)

// normalizedExt is the extension every preprocessed artifact carries,
// since ImagingPreprocessor always re-encodes to JPEG regardless of the
// source format.
const normalizedExt = ".jpg"

// PreprocessWorker normalises pending images (§4 Preprocess Worker row):
// downscale/grayscale/denoise the upload, write the normalised artifact to
// the preprocessed/ folder, and archive the original.
type PreprocessWorker struct {
	deps Deps
}

// NewPreprocessWorker binds a PreprocessWorker to deps.
func NewPreprocessWorker(deps Deps) *PreprocessWorker { return &PreprocessWorker{deps: deps} }

// Run fans out opts.Count goroutines, each polling the preprocess job queue.
func (w *PreprocessWorker) Run(ctx context.Context, opts Options) {
	fanOut(ctx, "preprocess", opts, func(ctx context.Context, workerID string) {
		runLoop(ctx, w.deps.Queue, queue.TypePreprocess, workerID, opts, w.deps.Log, w.handle)
	})
}

func sourceExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return ".jpg"
	}
	return ext
}

func (w *PreprocessWorker) handle(ctx context.Context, job queue.Job) error {
	img, err := w.deps.Images.Get(ctx, job.ImageID)
	if err != nil {
		return fmt.Errorf("preprocess: load image %s: %w", job.ImageID, err)
	}

	// Idempotency guard: a duplicate/stolen job for an image that already
	// moved past pending is a no-op success.
	if img.Status != images.StatusPending {
		return nil
	}

	ext := sourceExt(img.SourceFilename)
	srcPath := blobstore.Incoming(img.BatchID, img.ImageID, ext)

	if err := w.deps.Images.Transition(ctx, img.ImageID, images.StatusPending, images.StatusPreprocessing, nil); err != nil {
		return fmt.Errorf("preprocess: transition to preprocessing: %w", err)
	}

	raw, err := w.download(ctx, srcPath)
	if err != nil {
		w.fail(ctx, img, srcPath, ext, "preprocess", err)
		return fmt.Errorf("preprocess: download %s: %w", srcPath, err)
	}

	result, err := w.deps.Preprocessor.Process(ctx, raw, w.deps.PreprocessOpts)
	if err != nil {
		w.fail(ctx, img, srcPath, ext, "preprocess", err)
		return fmt.Errorf("preprocess: process %s: %w", job.ImageID, err)
	}

	normalizedPath := blobstore.Preprocessed(img.BatchID, img.ImageID, normalizedExt)
	if err := w.deps.Blob.Put(ctx, normalizedPath, bytesReader(result.Encoded), "image/jpeg"); err != nil {
		w.fail(ctx, img, srcPath, ext, "preprocess", err)
		return fmt.Errorf("preprocess: put %s: %w", normalizedPath, err)
	}

	archivedPath := blobstore.Archived(img.BatchID, img.ImageID, ext)
	if err := w.deps.Blob.Move(ctx, srcPath, archivedPath); err != nil {
		w.deps.Log.Warn("preprocess: archive move failed, non-fatal", obs.Err(err), obs.String("image_id", img.ImageID))
	}

	extra := map[string]any{
		"preprocessing.normalized_path":  normalizedPath,
		"preprocessing.original_width":   result.OriginalWidth,
		"preprocessing.original_height":  result.OriginalHeight,
		"preprocessing.processed_width":  result.ProcessedWidth,
		"preprocessing.processed_height": result.ProcessedHeight,
		"preprocessing.grayscale":        result.Grayscale,
		"preprocessing.denoised":         result.Denoised,
		"preprocessing.duration_ms":      result.Duration.Milliseconds(),
		"content_type":                   "image/jpeg",
		"size_bytes":                     int64(len(result.Encoded)),
	}
	if err := w.deps.Images.Transition(ctx, img.ImageID, images.StatusPreprocessing, images.StatusPreprocessed, extra); err != nil {
		return fmt.Errorf("preprocess: transition to preprocessed: %w", err)
	}
	return nil
}

func (w *PreprocessWorker) download(ctx context.Context, path string) ([]byte, error) {
	rc, err := w.deps.Blob.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// fail records a processing error and moves the image to the terminal
// failed state, moving the artifact (best-effort) to the failed/ folder.
func (w *PreprocessWorker) fail(ctx context.Context, img images.Image, srcPath, ext, stage string, cause error) {
	failedPath := blobstore.Failed(img.BatchID, img.ImageID, ext)
	if err := w.deps.Blob.Move(ctx, srcPath, failedPath); err != nil {
		w.deps.Log.Warn("preprocess: move to failed folder failed, non-fatal", obs.Err(err), obs.String("image_id", img.ImageID))
	}
	img.AddError(stage, cause.Error(), time.Now().UTC())
	extra := map[string]any{
		"final_blob_path":  failedPath,
		"processing.errors": img.Processing.Errors,
	}
	if err := w.deps.Images.Transition(ctx, img.ImageID, images.StatusPreprocessing, images.StatusFailed, extra); err != nil {
		w.deps.Log.Error("preprocess: transition to failed failed", obs.Err(err), obs.String("image_id", img.ImageID))
	}
}

func bytesReader(b []byte) io.Reader { return strings.NewReader(string(b)) }
