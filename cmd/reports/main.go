// Copyright 2025 James Ross
// Command reports generates the §6 source_filename/code report for a
// batch, in CSV or markdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lumensparkxy/barcode-pipeline/internal/bootstrap"
	"github.com/lumensparkxy/barcode-pipeline/internal/report"
)

func main() {
	var batchID, format, output, configPath string
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&batchID, "batch-id", "", "Batch ID to generate a report for (required)")
	fs.StringVar(&format, "format", "csv", "Output format: csv|markdown")
	fs.StringVar(&output, "output", "", "Output file path (defaults to stdout)")
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	_ = fs.Parse(os.Args[1:])

	if batchID == "" {
		fmt.Fprintln(os.Stderr, "reports: --batch-id is required")
		os.Exit(1)
	}
	if format != "csv" && format != "markdown" {
		fmt.Fprintf(os.Stderr, "reports: --format must be csv or markdown, got %q\n", format)
		os.Exit(1)
	}

	app, err := bootstrap.New(configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reports: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx := context.Background()
	builder := report.New(app.Detections, app.Images)
	rows, err := builder.Build(ctx, batchID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reports: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Fprintf(os.Stderr, "reports: no data found for batch: %s\n", batchID)
		os.Exit(1)
	}

	var content string
	if format == "csv" {
		content, err = report.FormatCSV(rows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reports: %v\n", err)
			os.Exit(1)
		}
	} else {
		content = report.FormatMarkdown(rows)
	}

	if output == "" {
		fmt.Print(content)
		return
	}
	if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "reports: write %s: %v\n", output, err)
		os.Exit(1)
	}
	fmt.Printf("Report written to: %s\n", output)
}
