// Copyright 2025 James Ross
// Package scanner implements the primary local-decoder capability: a
// rotation-aware barcode reader run against the normalised image before any
// AI fallback is attempted. Real 1D barcode decoding (bar-width
// measurement, Reed-Solomon-style error tolerance) is out of scope per the
// spec's Non-goals; this package owns the rotation-retry and result-shape
// contract the workers are written against, with a minimal reference scan
// strategy behind it. See DESIGN.md.
package scanner

import (
	"context"
	"image"

	"github.com/lumensparkxy/barcode-pipeline/internal/barcode"
)

// Reading is one raw code surfaced by a scan attempt, before validation.
type Reading struct {
	Code            string
	RotationDegrees int
}

// Scanner is the local-decode capability §4.4 drives.
type Scanner interface {
	Scan(ctx context.Context, img image.Image) ([]Reading, error)
}

// defaultRotations is the minimum rotation set §4.4 requires: 0 and 180
// degrees. A real decoder implementation may widen this set.
var defaultRotations = []int{0, 180}

// Detector narrows Reading down to {symbology, validity}, the input the
// primary worker partitions on.
type Detector struct {
	inner      Scanner
	rotations  []int
}

// New wraps inner with the rotation-retry loop the worker expects; when
// rotations is empty it falls back to defaultRotations.
func New(inner Scanner, rotations []int) *Detector {
	if len(rotations) == 0 {
		rotations = defaultRotations
	}
	return &Detector{inner: inner, rotations: rotations}
}

// Candidate is a scanner reading paired with its full barcode validation.
type Candidate struct {
	Reading    Reading
	Validation barcode.Validation
}

// ScanAllRotations runs inner.Scan at every configured rotation and
// validates each raw code found, returning every candidate regardless of
// validity; callers partition valid vs invalid themselves (§4.4 step 4).
func (d *Detector) ScanAllRotations(ctx context.Context, img image.Image) ([]Candidate, error) {
	var out []Candidate
	for _, rotation := range d.rotations {
		rotated := rotateImage(img, rotation)
		readings, err := d.inner.Scan(ctx, rotated)
		if err != nil {
			continue
		}
		for _, r := range readings {
			r.RotationDegrees = rotation
			out = append(out, Candidate{Reading: r, Validation: barcode.Validate(r.Code)})
		}
	}
	return out, nil
}
