// Copyright 2025 James Ross
// Command decode-fallback-worker runs the AI-decoder fallback stage
// (§4.5 Fallback Decode Worker row).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumensparkxy/barcode-pipeline/internal/bootstrap"
	"github.com/lumensparkxy/barcode-pipeline/internal/obs"
	"github.com/lumensparkxy/barcode-pipeline/internal/worker"
)

func main() {
	var configPath string
	var batchSize int
	var pollInterval time.Duration
	var once, daemon bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.IntVar(&batchSize, "batch-size", 0, "Number of parallel worker goroutines (0 = use config default)")
	fs.DurationVar(&pollInterval, "poll-interval", 0, "Delay between empty polls (0 = use config default)")
	fs.BoolVar(&once, "once", false, "Dequeue and process a single job per goroutine, then exit")
	fs.BoolVar(&daemon, "daemon", false, "Run forever, ignoring the 2-consecutive-empty-poll exit rule")
	_ = fs.Parse(os.Args[1:])

	app, err := bootstrap.New(configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode-fallback-worker: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	tp, err := obs.MaybeInitTracing(app.Cfg)
	if err != nil {
		app.Log.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	httpSrv := obs.StartHTTPServer(app.Cfg, func(c context.Context) error { return nil })
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		app.Log.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
	}()

	obs.StartQueueLengthUpdater(ctx, app.Cfg, app.Queue, app.Log)

	deps := worker.Deps{
		Queue:      app.Queue,
		Images:     app.Images,
		Detections: app.Detections,
		Products:   app.Products,
		Blob:       app.Blob,
		AIDecoder:  app.AIDecoder,
		Breaker:    app.Breaker,
		Log:        app.Log,
	}
	opts := worker.Options{
		Count:        app.Cfg.Worker.Count,
		LeaseSeconds: app.Cfg.Worker.LeaseSeconds,
		PollInterval: app.Cfg.Worker.PollInterval,
		Once:         once,
		Daemon:       daemon,
	}
	if batchSize > 0 {
		opts.Count = batchSize
	}
	if pollInterval > 0 {
		opts.PollInterval = pollInterval
	}

	w := worker.NewFallbackWorker(deps)
	w.Run(ctx, opts)
}
