// Copyright 2025 James Ross
package images

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumensparkxy/barcode-pipeline/internal/documentstore"
)

// Repository persists Image documents and enforces the state-machine edge
// check before any transition is written.
type Repository struct {
	col *documentstore.Collection[Image]
}

// NewRepository binds a repository to the images collection.
func NewRepository(store *documentstore.Store) *Repository {
	return &Repository{col: documentstore.NewCollection[Image](store, "images")}
}

// Create inserts a newly uploaded image in StatusPending.
func (r *Repository) Create(ctx context.Context, img Image) error {
	if img.Status == "" {
		img.Status = StatusPending
	}
	if img.StatusUpdatedAt.IsZero() {
		img.StatusUpdatedAt = time.Now().UTC()
	}
	return r.col.InsertOne(ctx, img)
}

// Get fetches an image by ID.
func (r *Repository) Get(ctx context.Context, imageID string) (Image, error) {
	return r.col.FindOne(ctx, documentstore.Filter{"id": imageID})
}

// FindByStatus lists images currently in the given status, used by the
// dispatcher's scan cycle.
func (r *Repository) FindByStatus(ctx context.Context, status Status, limit int) ([]Image, error) {
	return r.col.Find(ctx, documentstore.Filter{"status": string(status)}, documentstore.FindOptions{Limit: limit})
}

// FindNeedingFallback lists images flagged needs_fallback whose status is
// preprocessed or decoded_primary, per dispatcher rule 3.
func (r *Repository) FindNeedingFallback(ctx context.Context, limit int) ([]Image, error) {
	return r.col.Find(ctx, documentstore.Filter{
		"processing.needs_fallback": true,
		"$or": documentstore.Or{Filters: []documentstore.Filter{
			{"status": string(StatusPreprocessed)},
			{"status": string(StatusDecodedPrimary)},
		}},
	}, documentstore.FindOptions{Limit: limit})
}

// FindByBatchAndStatus lists images from batchID currently in status,
// used by the reports CLI to list failed images.
func (r *Repository) FindByBatchAndStatus(ctx context.Context, batchID string, status Status, limit int) ([]Image, error) {
	return r.col.Find(ctx, documentstore.Filter{
		"batch_id": batchID,
		"status":   string(status),
	}, documentstore.FindOptions{Limit: limit})
}

// ExistsByBatchAndFilename reports whether an image from batchID with
// source filename sourceFilename was already ingested, used by the
// uploader's --skip-duplicates flag.
func (r *Repository) ExistsByBatchAndFilename(ctx context.Context, batchID, sourceFilename string) (bool, error) {
	_, err := r.col.FindOne(ctx, documentstore.Filter{
		"batch_id":        batchID,
		"source_filename": sourceFilename,
	})
	if err != nil {
		if errors.Is(err, documentstore.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ErrIllegalTransition is returned when a caller attempts to move an image
// along an edge the state machine forbids.
var ErrIllegalTransition = fmt.Errorf("images: illegal status transition")

// Transition validates and applies a status change, stamping
// status_updated_at. extra carries any other fields to set in the same
// logical update (final_blob_path, detection_count, needs_fallback, ...).
func (r *Repository) Transition(ctx context.Context, imageID string, from, to Status, extra map[string]any) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	set := map[string]any{
		"status":            string(to),
		"status_updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		set[k] = v
	}
	return r.col.UpdateOne(ctx, documentstore.Filter{"id": imageID, "status": string(from)}, documentstore.Update{Set: set})
}

// Save overwrites the full image document, used by workers following a
// read-mutate-write cycle (AddDecoderAttempt/AddError mutate in memory,
// Save persists the whole aggregate in one round trip).
func (r *Repository) Save(ctx context.Context, img Image) error {
	return r.col.ReplaceOne(ctx, img)
}
