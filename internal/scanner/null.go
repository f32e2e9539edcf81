// Copyright 2025 James Ross
package scanner

import (
	"context"
	"image"
)

// NullScanner is the default production Scanner: it never finds a barcode.
// Real 1D barcode decoding is out of scope (see package doc); wiring a
// genuine decoder later only requires satisfying the Scanner interface and
// passing it to New instead of NullScanner{}. Every image therefore always
// needs the AI fallback until a real Scanner is substituted, which is a
// documented, deliberate limitation rather than an oversight.
type NullScanner struct{}

// Scan always returns no readings.
func (NullScanner) Scan(ctx context.Context, img image.Image) ([]Reading, error) {
	return nil, nil
}
