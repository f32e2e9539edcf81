// Copyright 2025 James Ross
package detections

import (
	"context"
	"time"

	"github.com/lumensparkxy/barcode-pipeline/internal/documentstore"
)

// Repository persists Detection documents.
type Repository struct {
	col *documentstore.Collection[Detection]
}

// NewRepository binds a repository to the detections collection.
func NewRepository(store *documentstore.Store) *Repository {
	return &Repository{col: documentstore.NewCollection[Detection](store, "detections")}
}

// Create inserts a new detection, stamping DetectedAt if unset.
func (r *Repository) Create(ctx context.Context, d Detection) error {
	if d.DetectedAt.IsZero() {
		d.DetectedAt = time.Now().UTC()
	}
	return r.col.InsertOne(ctx, d)
}

// CreateMany inserts several detections in one transaction, used when a
// decode worker produces more than one reading for an image.
func (r *Repository) CreateMany(ctx context.Context, ds []Detection) error {
	now := time.Now().UTC()
	for i := range ds {
		if ds[i].DetectedAt.IsZero() {
			ds[i].DetectedAt = now
		}
	}
	return r.col.InsertMany(ctx, ds)
}

// ExistsForImage reports whether any detection already exists for imageID,
// the idempotency guard workers 4.4/4.5 run before doing any work.
func (r *Repository) ExistsForImage(ctx context.Context, imageID string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, documentstore.Filter{"image_id": imageID})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindByImage lists every detection for an image, ordered by detection
// time so review/report tie-breaks are order-dependent and deterministic.
func (r *Repository) FindByImage(ctx context.Context, imageID string) ([]Detection, error) {
	return r.col.Find(ctx, documentstore.Filter{"image_id": imageID}, documentstore.FindOptions{
		SortField: "detected_at",
	})
}

// FindByBatch lists every detection belonging to batchID, ordered by
// detection time, used by the reports CLI.
func (r *Repository) FindByBatch(ctx context.Context, batchID string) ([]Detection, error) {
	return r.col.Find(ctx, documentstore.Filter{"batch_id": batchID}, documentstore.FindOptions{
		SortField: "detected_at",
	})
}

// Get fetches a single detection by ID.
func (r *Repository) Get(ctx context.Context, detectionID string) (Detection, error) {
	return r.col.FindOne(ctx, documentstore.Filter{"id": detectionID})
}

// Save overwrites a detection's full document (chosen/rejected/reviewed
// fields are typically mutated in memory then written back this way).
func (r *Repository) Save(ctx context.Context, d Detection) error {
	return r.col.ReplaceOne(ctx, d)
}

// RejectAllForImage marks every detection belonging to imageID as rejected,
// used by the review "no_barcode" decision.
func (r *Repository) RejectAllForImage(ctx context.Context, imageID string) (int64, error) {
	return r.col.UpdateMany(ctx, documentstore.Filter{"image_id": imageID}, documentstore.Update{
		Set: map[string]any{"rejected": true, "ambiguous": false},
	})
}
