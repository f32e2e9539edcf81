// Copyright 2025 James Ross
package worker

import (
	"context"

	"github.com/lumensparkxy/barcode-pipeline/internal/products"
)

// lookupProduct resolves a detected code against the product catalogue,
// trying the raw scanned code first and falling back to its normalized
// EAN-13 form (when one was derivable) so UPC-A reads still match a
// catalogue keyed on EAN-13.
func lookupProduct(ctx context.Context, lookup products.Lookup, code, normalizedCode string) (products.Product, bool, error) {
	if lookup == nil {
		return products.Product{}, false, nil
	}
	if p, found, err := lookup.GetByAnyCode(ctx, code); err != nil {
		return products.Product{}, false, err
	} else if found {
		return p, true, nil
	}
	if normalizedCode == "" || normalizedCode == code {
		return products.Product{}, false, nil
	}
	return lookup.GetByAnyCode(ctx, normalizedCode)
}
