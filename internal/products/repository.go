// Copyright 2025 James Ross
package products

import (
	"context"
	"errors"

	"github.com/lumensparkxy/barcode-pipeline/internal/documentstore"
)

// Repository persists Product documents and implements Lookup.
type Repository struct {
	col *documentstore.Collection[Product]
}

// NewRepository binds a repository to the products collection.
func NewRepository(store *documentstore.Store) *Repository {
	return &Repository{col: documentstore.NewCollection[Product](store, "products")}
}

// Create inserts a new product keyed by its EAN.
func (r *Repository) Create(ctx context.Context, p Product) error {
	return r.col.InsertOne(ctx, p)
}

// Upsert creates the product if absent, or replaces it if present.
func (r *Repository) Upsert(ctx context.Context, p Product) error {
	_, err := r.col.FindOne(ctx, documentstore.Filter{"id": p.EAN})
	if errors.Is(err, documentstore.ErrNoDocuments) {
		return r.col.InsertOne(ctx, p)
	}
	if err != nil {
		return err
	}
	return r.col.ReplaceOne(ctx, p)
}

// GetByEAN fetches a product by its canonical code.
func (r *Repository) GetByEAN(ctx context.Context, ean string) (Product, bool, error) {
	p, err := r.col.FindOne(ctx, documentstore.Filter{"id": ean})
	if errors.Is(err, documentstore.ErrNoDocuments) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

// GetByAnyCode resolves code against ean, upc, ean8, or any entry of
// additional_codes, matching the original catalogue's get_by_any_code.
func (r *Repository) GetByAnyCode(ctx context.Context, code string) (Product, bool, error) {
	p, err := r.col.FindOne(ctx, documentstore.Filter{
		"$or": documentstore.Or{Filters: []documentstore.Filter{
			{"id": code},
			{"upc": code},
			{"ean8": code},
		}},
	})
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, documentstore.ErrNoDocuments) {
		return Product{}, false, err
	}

	// additional_codes is a JSON array; fall back to a full scan since the
	// document store only expresses single-path equality/IN, not
	// array-membership, in its filter language.
	all, err := r.col.Find(ctx, documentstore.Filter{}, documentstore.FindOptions{})
	if err != nil {
		return Product{}, false, err
	}
	for _, candidate := range all {
		for _, alt := range candidate.AdditionalCodes {
			if alt == code {
				return candidate, true, nil
			}
		}
	}
	return Product{}, false, nil
}

// Exists reports whether a product with the given EAN exists.
func (r *Repository) Exists(ctx context.Context, ean string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, documentstore.Filter{"id": ean})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindByCategory lists active products in a category.
func (r *Repository) FindByCategory(ctx context.Context, category string, limit int) ([]Product, error) {
	return r.col.Find(ctx, documentstore.Filter{"category": category, "active": true}, documentstore.FindOptions{Limit: limit})
}

// Deactivate flips a product's active flag off rather than deleting it.
func (r *Repository) Deactivate(ctx context.Context, ean string) error {
	return r.col.UpdateOne(ctx, documentstore.Filter{"id": ean}, documentstore.Update{
		Set: map[string]any{"active": false},
	})
}

// BulkImport inserts many products in one transaction.
func (r *Repository) BulkImport(ctx context.Context, ps []Product) error {
	return r.col.InsertMany(ctx, ps)
}

// Count returns the total number of products in the catalogue.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, documentstore.Filter{})
}
