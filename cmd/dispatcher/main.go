// Copyright 2025 James Ross
// Command dispatcher runs the §4.3 poll-and-enqueue cycle, or with
// --stats, prints a one-shot snapshot of queue depth by job type and
// status instead of running.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumensparkxy/barcode-pipeline/internal/bootstrap"
	"github.com/lumensparkxy/barcode-pipeline/internal/dispatcher"
	"github.com/lumensparkxy/barcode-pipeline/internal/obs"
)

func main() {
	var configPath string
	var batchSize int
	var pollInterval time.Duration
	var once, stats bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.IntVar(&batchSize, "batch-size", 0, "Max images scanned per rule per cycle (0 = use config default)")
	fs.DurationVar(&pollInterval, "poll-interval", 0, "Delay between scan cycles (0 = use config default)")
	fs.BoolVar(&once, "once", false, "Run a single scan cycle, then exit")
	fs.BoolVar(&stats, "stats", false, "Print queue stats and exit, without running the dispatcher")
	_ = fs.Parse(os.Args[1:])

	app, err := bootstrap.New(configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dispatcher: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if stats {
		result, err := app.Queue.GetStats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dispatcher: stats: %v\n", err)
			os.Exit(1)
		}
		b, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(b))
		return
	}

	if batchSize > 0 {
		app.Cfg.Dispatcher.BatchSize = batchSize
	}
	if pollInterval > 0 {
		app.Cfg.Dispatcher.PollInterval = pollInterval
	}

	tp, err := obs.MaybeInitTracing(app.Cfg)
	if err != nil {
		app.Log.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	httpSrv := obs.StartHTTPServer(app.Cfg, func(c context.Context) error { return nil })
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		app.Log.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
	}()

	obs.StartQueueLengthUpdater(ctx, app.Cfg, app.Queue, app.Log)

	d := dispatcher.New(app.Cfg, app.Images, app.Queue, app.Log)
	if once {
		d.ScanOnce(ctx)
		return
	}
	d.Run(ctx)
}
