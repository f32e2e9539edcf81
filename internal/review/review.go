// Copyright 2025 James Ross
// Package review implements manual-review decision resolution (§4.7): a
// human reviewer chooses among ambiguous detections, declares an image
// barcode-free, or defers, and this package applies the resulting
// state change atomically.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumensparkxy/barcode-pipeline/internal/blobstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/detections"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
)

func reviewedAt() time.Time { return time.Now().UTC() }

// Action identifies which review decision a reviewer made.
type Action string

const (
	ActionChoose    Action = "choose"
	ActionNoBarcode Action = "no_barcode"
	ActionSkip      Action = "skip"
)

// Decision is the reviewer's input for one image.
type Decision struct {
	ImageID     string
	Action      Action
	DetectionID string // required for ActionChoose
	Reviewer    string
}

// ErrDetectionIDRequired is returned when a choose decision omits the
// detection to keep.
var ErrDetectionIDRequired = errors.New("review: detection_id required for choose")

// ErrDetectionNotFound is returned when the named detection does not
// belong to the image under review.
var ErrDetectionNotFound = errors.New("review: detection does not belong to image")

// Resolver applies review decisions against the document store and blob
// store.
type Resolver struct {
	Images     *images.Repository
	Detections *detections.Repository
	Blob       blobstore.Store
}

// New binds a Resolver to its dependencies.
func New(imageRepo *images.Repository, detectionRepo *detections.Repository, blob blobstore.Store) *Resolver {
	return &Resolver{Images: imageRepo, Detections: detectionRepo, Blob: blob}
}

// Resolve applies decision to the image it targets, per the §4.7 branches.
func (r *Resolver) Resolve(ctx context.Context, decision Decision) error {
	switch decision.Action {
	case ActionChoose:
		return r.choose(ctx, decision)
	case ActionNoBarcode:
		return r.noBarcode(ctx, decision)
	case ActionSkip:
		return nil
	default:
		return fmt.Errorf("review: unknown action %q", decision.Action)
	}
}

// choose marks decision.DetectionID as chosen, rejects every other
// detection for the image, moves the artifact to processed/, and
// transitions the image to decoded_manual. The invariant "exactly one
// non-rejected detection exists after choose" falls out of rejecting every
// sibling in the same pass.
func (r *Resolver) choose(ctx context.Context, decision Decision) error {
	if decision.DetectionID == "" {
		return ErrDetectionIDRequired
	}
	img, err := r.Images.Get(ctx, decision.ImageID)
	if err != nil {
		return fmt.Errorf("review: load image %s: %w", decision.ImageID, err)
	}
	all, err := r.Detections.FindByImage(ctx, decision.ImageID)
	if err != nil {
		return fmt.Errorf("review: load detections for %s: %w", decision.ImageID, err)
	}

	var found bool
	for _, d := range all {
		if d.DetectionID == decision.DetectionID {
			found = true
			d.MarkChosen()
			d.ReviewedBy = decision.Reviewer
			now := reviewedAt()
			d.ReviewedAt = &now
			if err := r.Detections.Save(ctx, d); err != nil {
				return fmt.Errorf("review: save chosen detection: %w", err)
			}
			continue
		}
		d.MarkRejected()
		d.ReviewedBy = decision.Reviewer
		now := reviewedAt()
		d.ReviewedAt = &now
		if err := r.Detections.Save(ctx, d); err != nil {
			return fmt.Errorf("review: save rejected detection %s: %w", d.DetectionID, err)
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrDetectionNotFound, decision.DetectionID)
	}

	ext := blobstore.GetExtension(img.FinalBlobPath)
	if ext == "" {
		ext = ".jpg"
	}
	processedPath := blobstore.Processed(img.BatchID, img.ImageID, ext)
	if img.FinalBlobPath != "" && img.FinalBlobPath != processedPath {
		if err := r.Blob.Move(ctx, img.FinalBlobPath, processedPath); err != nil {
			return fmt.Errorf("review: move to processed: %w", err)
		}
	}

	extra := map[string]any{
		"detection_count": 1,
		"final_blob_path": processedPath,
	}
	if err := r.Images.Transition(ctx, img.ImageID, images.StatusManualReview, images.StatusDecodedManual, extra); err != nil {
		return fmt.Errorf("review: transition to decoded_manual: %w", err)
	}
	return nil
}

// noBarcode rejects every detection for the image, moves the artifact to
// failed/, and transitions the image to failed.
func (r *Resolver) noBarcode(ctx context.Context, decision Decision) error {
	img, err := r.Images.Get(ctx, decision.ImageID)
	if err != nil {
		return fmt.Errorf("review: load image %s: %w", decision.ImageID, err)
	}
	if _, err := r.Detections.RejectAllForImage(ctx, decision.ImageID); err != nil {
		return fmt.Errorf("review: reject detections for %s: %w", decision.ImageID, err)
	}

	ext := blobstore.GetExtension(img.FinalBlobPath)
	if ext == "" {
		ext = ".jpg"
	}
	failedPath := blobstore.Failed(img.BatchID, img.ImageID, ext)
	if img.FinalBlobPath != "" && img.FinalBlobPath != failedPath {
		if err := r.Blob.Move(ctx, img.FinalBlobPath, failedPath); err != nil {
			return fmt.Errorf("review: move to failed: %w", err)
		}
	}

	extra := map[string]any{"final_blob_path": failedPath, "detection_count": 0}
	if err := r.Images.Transition(ctx, img.ImageID, images.StatusManualReview, images.StatusFailed, extra); err != nil {
		return fmt.Errorf("review: transition to failed: %w", err)
	}
	return nil
}
