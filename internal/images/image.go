// Copyright 2025 James Ross
// Package images defines the Image aggregate and its state machine.
package images

import "time"

// Status is a pipeline stage for an Image.
type Status string

const (
	StatusPending          Status = "pending"
	StatusPreprocessing    Status = "preprocessing"
	StatusPreprocessed     Status = "preprocessed"
	StatusDecodingPrimary  Status = "decoding_primary"
	StatusDecodedPrimary   Status = "decoded_primary"
	StatusDecodingFallback Status = "decoding_fallback"
	StatusDecodedFallback  Status = "decoded_fallback"
	StatusManualReview     Status = "manual_review"
	StatusDecodedManual    Status = "decoded_manual"
	StatusFailed           Status = "failed"
)

// legalTransitions encodes the source-to-allowed-targets table. preprocessed
// is listed once; the needs_fallback flag (not the status itself) decides
// whether decoding_fallback is reachable from it, so both decoding_primary
// and decoding_fallback are always legal targets from preprocessed and the
// caller is expected to have checked needs_fallback before transitioning.
var legalTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusPreprocessing: true,
		StatusFailed:        true,
	},
	StatusPreprocessing: {
		StatusPreprocessed: true,
		StatusFailed:       true,
	},
	StatusPreprocessed: {
		StatusDecodingPrimary:  true,
		StatusDecodingFallback: true,
	},
	StatusDecodingPrimary: {
		StatusDecodedPrimary: true,
		StatusPreprocessed:   true, // needs_fallback=true bounce-back
		StatusFailed:         true,
	},
	StatusDecodingFallback: {
		StatusDecodedFallback: true,
		StatusManualReview:    true,
		StatusFailed:          true,
	},
	StatusManualReview: {
		StatusDecodedManual: true,
		StatusFailed:        true,
	},
	StatusFailed: {
		StatusDecodingFallback: true, // retry worker only, gated by attempt cap
	},
}

// CanTransition reports whether moving an image from `from` to `to` is a
// legal state-machine edge.
func CanTransition(from, to Status) bool {
	targets, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether status is a terminal state (success or
// terminal-retryable).
func (s Status) Terminal() bool {
	switch s {
	case StatusDecodedPrimary, StatusDecodedFallback, StatusDecodedManual, StatusFailed:
		return true
	default:
		return false
	}
}

// DecoderAttempt records one scanner or AI invocation against an image.
type DecoderAttempt struct {
	Decoder     string    `json:"decoder"` // "local" or "ai"
	AttemptNum  int       `json:"attempt_num"`
	IsFallback  bool      `json:"is_fallback"`
	Success     bool      `json:"success"`
	CodesFound  int       `json:"codes_found"`
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	Tokens      int       `json:"tokens,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// ProcessingError captures a single raised-exception record on the image's
// cumulative error list.
type ProcessingError struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PreprocessingInfo is the frozen-at-terminal-status preprocessing record.
type PreprocessingInfo struct {
	NormalizedPath     string `json:"normalized_path,omitempty"`
	OriginalWidth      int    `json:"original_width,omitempty"`
	OriginalHeight     int    `json:"original_height,omitempty"`
	ProcessedWidth     int    `json:"processed_width,omitempty"`
	ProcessedHeight    int    `json:"processed_height,omitempty"`
	Grayscale          bool   `json:"grayscale"`
	Denoised           bool   `json:"denoised"`
	CLAHEApplied       bool   `json:"clahe_applied"`
	DurationMS         int64  `json:"duration_ms"`
}

// ProcessingInfo is the mutable processing record described in §3.
type ProcessingInfo struct {
	PrimaryAttempts   []DecoderAttempt  `json:"primary_attempts,omitempty"`
	FallbackAttempts  []DecoderAttempt  `json:"fallback_attempts,omitempty"`
	NeedsFallback     bool              `json:"needs_fallback"`
	CumulativeTokens  int               `json:"cumulative_tokens"`
	Errors            []ProcessingError `json:"errors,omitempty"`
}

// Image is the root aggregate of the pipeline.
type Image struct {
	ImageID         string            `json:"id"`
	BatchID         string            `json:"batch_id"`
	SourceFilename  string            `json:"source_filename"`
	Status          Status            `json:"status"`
	StatusUpdatedAt time.Time         `json:"status_updated_at"`
	Preprocessing   PreprocessingInfo `json:"preprocessing"`
	Processing      ProcessingInfo    `json:"processing"`
	FinalBlobPath   string            `json:"final_blob_path,omitempty"`
	DetectionCount  int               `json:"detection_count"`
	ContentType     string            `json:"content_type,omitempty"`
	SizeBytes       int64             `json:"size_bytes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// DocumentID satisfies documentstore.Document.
func (img Image) DocumentID() string { return img.ImageID }

// AddError appends a processing error without touching status.
func (img *Image) AddError(stage, message string, at time.Time) {
	img.Processing.Errors = append(img.Processing.Errors, ProcessingError{
		Stage: stage, Message: message, Timestamp: at,
	})
}

// AddDecoderAttempt appends a decoder attempt to the primary or fallback
// list depending on attempt.IsFallback.
func (img *Image) AddDecoderAttempt(attempt DecoderAttempt) {
	if attempt.IsFallback {
		img.Processing.FallbackAttempts = append(img.Processing.FallbackAttempts, attempt)
	} else {
		img.Processing.PrimaryAttempts = append(img.Processing.PrimaryAttempts, attempt)
	}
	img.Processing.CumulativeTokens += attempt.Tokens
}
