// Copyright 2025 James Ross
// Package bootstrap wires the shared set of capabilities the cmd/*
// binaries need (document store, blob store, repositories, logging,
// circuit breaker, AI decoder) from one loaded Config, following the teacher's
// explicit constructor-injection idiom: no package-level globals, every
// capability built once in main and threaded through by hand.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lumensparkxy/barcode-pipeline/internal/aidecoder"
	"github.com/lumensparkxy/barcode-pipeline/internal/blobstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/breaker"
	"github.com/lumensparkxy/barcode-pipeline/internal/config"
	"github.com/lumensparkxy/barcode-pipeline/internal/detections"
	"github.com/lumensparkxy/barcode-pipeline/internal/documentstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
	"github.com/lumensparkxy/barcode-pipeline/internal/obs"
	"github.com/lumensparkxy/barcode-pipeline/internal/preprocess"
	"github.com/lumensparkxy/barcode-pipeline/internal/products"
	"github.com/lumensparkxy/barcode-pipeline/internal/queue"
	"github.com/lumensparkxy/barcode-pipeline/internal/scanner"
)

// App bundles every capability built from a loaded Config. Each cmd/*
// binary constructs one, uses the pieces it needs, and calls Close on
// shutdown.
type App struct {
	Cfg        *config.Config
	Log        *zap.Logger
	Store      *documentstore.Store
	Blob       blobstore.Store
	Images     *images.Repository
	Detections *detections.Repository
	Products   *products.Repository
	Queue      *queue.Queue
	Breaker    *breaker.CircuitBreaker
	AIDecoder  aidecoder.Decoder
}

// New loads configPath and constructs every capability. aiRequired controls
// whether a missing AI API key is a fatal error (the fallback and retry
// decode workers need the AI decoder; the other binaries do not).
func New(configPath string, aiRequired bool) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}

	log, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: new logger: %w", err)
	}

	store, err := documentstore.Open(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open document store: %w", err)
	}

	blob, err := blobstore.NewS3Store(context.Background(), blobstore.Config{
		Bucket:          cfg.Blob.Bucket,
		Region:          cfg.Blob.Region,
		Endpoint:        cfg.Blob.Endpoint,
		AccessKeyID:     cfg.Blob.AccessKeyID,
		SecretAccessKey: cfg.Blob.SecretAccessKey,
		PublicBaseURL:   cfg.Blob.PublicBaseURL,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("bootstrap: new blob store: %w", err)
	}

	app := &App{
		Cfg:        cfg,
		Log:        log,
		Store:      store,
		Blob:       blob,
		Images:     images.NewRepository(store),
		Detections: detections.NewRepository(store),
		Products:   products.NewRepository(store),
		Queue:      queue.New(store),
		Breaker: breaker.New(
			cfg.CircuitBreaker.Window,
			cfg.CircuitBreaker.CooldownPeriod,
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.MinSamples,
		),
	}

	if cfg.AI.APIKey != "" {
		client, err := aidecoder.NewGeminiClient(context.Background(), cfg.AI.APIKey,
			aidecoder.WithModel(cfg.AI.Model),
			aidecoder.WithLogger(log),
			aidecoder.WithRetry(cfg.AI.MaxAttempts, cfg.AI.BaseDelay, cfg.AI.MaxDelay),
		)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("bootstrap: new gemini client: %w", err)
		}
		app.AIDecoder = client
	} else if aiRequired {
		store.Close()
		return nil, fmt.Errorf("bootstrap: ai.api_key is required for this binary")
	}

	return app, nil
}

// Preprocessor returns the default image-normalisation pipeline and its
// options, sourced from cfg.Preprocess.
func (a *App) Preprocessor() (preprocess.Preprocessor, preprocess.Options) {
	return preprocess.ImagingPreprocessor{}, preprocess.Options{
		MaxDimension: a.Cfg.Preprocess.MaxDimension,
		Grayscale:    a.Cfg.Preprocess.Grayscale,
		Denoise:      a.Cfg.Preprocess.Denoise,
	}
}

// Scanner returns the local rotation-aware scanner. The real 1D decode
// strategy behind it is a placeholder (see internal/scanner); swapping
// scanner.NullScanner for a real decoder is the only change needed here.
func (a *App) Scanner() *scanner.Detector {
	return scanner.New(scanner.NullScanner{}, nil)
}

// Close releases the document store connection. The blob store (an HTTP
// client) and AI decoder need no explicit shutdown.
func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		a.Log.Warn("bootstrap: close document store", obs.Err(err))
	}
}
