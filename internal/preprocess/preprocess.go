// Copyright 2025 James Ross
// Package preprocess normalises an uploaded image before it is handed to
// the local scanner: downscaling oversized images, converting to
// grayscale, and applying light denoising.
package preprocess

import (
	"bytes"
	"context"
	"time"

	"github.com/disintegration/imaging"
)

// Options configure a preprocessing pass.
type Options struct {
	MaxDimension int
	Grayscale    bool
	Denoise      bool
}

// DefaultOptions mirrors the original pipeline's defaults.
var DefaultOptions = Options{MaxDimension: 1600, Grayscale: true, Denoise: true}

// Result records what a preprocessing pass did, filling the image's frozen
// PreprocessingInfo record.
type Result struct {
	OriginalWidth, OriginalHeight   int
	ProcessedWidth, ProcessedHeight int
	Grayscale, Denoised             bool
	Duration                        time.Duration
	Encoded                         []byte
}

// Preprocessor is the capability the preprocess worker depends on.
type Preprocessor interface {
	Process(ctx context.Context, raw []byte, opts Options) (Result, error)
}

// ImagingPreprocessor implements Preprocessor with disintegration/imaging,
// following the decode -> transform -> re-encode shape used elsewhere in
// the pack's image-processing code.
type ImagingPreprocessor struct{}

// Process decodes raw, resizes it to fit within opts.MaxDimension,
// optionally grayscales and denoises it, and re-encodes as JPEG.
func (ImagingPreprocessor) Process(ctx context.Context, raw []byte, opts Options) (Result, error) {
	start := time.Now()
	src, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, err
	}
	origBounds := src.Bounds()

	out := src
	if opts.MaxDimension > 0 && (origBounds.Dx() > opts.MaxDimension || origBounds.Dy() > opts.MaxDimension) {
		out = imaging.Fit(out, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
	}
	if opts.Grayscale {
		out = imaging.Grayscale(out)
	}
	if opts.Denoise {
		out = imaging.Blur(out, 0.5)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return Result{}, err
	}

	processedBounds := out.Bounds()
	return Result{
		OriginalWidth:   origBounds.Dx(),
		OriginalHeight:  origBounds.Dy(),
		ProcessedWidth:  processedBounds.Dx(),
		ProcessedHeight: processedBounds.Dy(),
		Grayscale:       opts.Grayscale,
		Denoised:        opts.Denoise,
		Duration:        time.Since(start),
		Encoded:         buf.Bytes(),
	}, nil
}
