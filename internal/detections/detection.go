// Copyright 2025 James Ross
// Package detections defines the Detection record produced by the decode
// workers and consumed by review resolution.
package detections

import (
	"time"

	"github.com/lumensparkxy/barcode-pipeline/internal/barcode"
)

// Source identifies what produced a detection.
type Source string

const (
	SourcePrimaryLocal Source = "primary_local"
	SourceFallbackAI   Source = "fallback_ai"
	SourceManual       Source = "manual"
)

// Detection is one candidate barcode reading against an Image.
type Detection struct {
	DetectionID          string            `json:"id"`
	ImageID              string            `json:"image_id"`
	BatchID              string            `json:"batch_id"`
	SourceFilename       string            `json:"source_filename"`
	Code                 string            `json:"code"`
	Symbology            barcode.Symbology `json:"symbology"`
	NormalizedCode       string            `json:"normalized_code,omitempty"`
	Source               Source            `json:"source"`
	Confidence           *float64          `json:"confidence,omitempty"`
	RotationDegrees      int               `json:"rotation_degrees"`
	ChecksumValid        bool              `json:"checksum_valid"`
	LengthValid          bool              `json:"length_valid"`
	NumericOnly          bool              `json:"numeric_only"`
	Ambiguous            bool              `json:"ambiguous"`
	Chosen               bool              `json:"chosen"`
	Rejected             bool              `json:"rejected"`
	ProductFound         bool              `json:"product_found"`
	ProductID            string            `json:"product_id,omitempty"`
	GeminiConfidence     *float64          `json:"gemini_confidence,omitempty"`
	GeminiSymbologyGuess string            `json:"gemini_symbology_guess,omitempty"`
	DetectedAt           time.Time         `json:"detected_at"`
	ReviewedAt           *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy           string            `json:"reviewed_by,omitempty"`
}

// DocumentID satisfies documentstore.Document.
func (d Detection) DocumentID() string { return d.DetectionID }

// Valid reports whether the §4.8 validity predicate holds.
func (d Detection) Valid() bool {
	return d.NumericOnly && d.LengthValid && d.ChecksumValid
}

// MarkChosen sets this detection as the image's chosen reading.
func (d *Detection) MarkChosen() {
	d.Chosen = true
	d.Ambiguous = false
	d.Rejected = false
}

// MarkRejected marks this detection as rejected during review.
func (d *Detection) MarkRejected() {
	d.Rejected = true
	d.Ambiguous = false
	d.Chosen = false
}
