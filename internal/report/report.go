// Copyright 2025 James Ross
// Package report builds the per-batch source_filename/code report the
// reports CLI prints: one row per ingested file, the code it resolved to
// or the literal "failed" if it never did.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/lumensparkxy/barcode-pipeline/internal/detections"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
)

// Row is one reported file/code pair.
type Row struct {
	SourceFilename string
	Code           string
}

// Builder collects report rows from the detections and images repositories.
type Builder struct {
	Detections *detections.Repository
	Images     *images.Repository
}

// New binds a Builder to its repositories.
func New(detectionRepo *detections.Repository, imageRepo *images.Repository) *Builder {
	return &Builder{Detections: detectionRepo, Images: imageRepo}
}

// maxFailedImages bounds how many failed images one report scans, matching
// the original tool's "large limit to get all" intent without an unbounded
// query.
const maxFailedImages = 10000

// Build collects report rows for batchID: chosen detections first, then
// any remaining non-rejected/non-ambiguous detection per file, then
// "failed" for every failed image not already covered. Rows are sorted by
// source_filename for deterministic output.
func (b *Builder) Build(ctx context.Context, batchID string) ([]Row, error) {
	all, err := b.Detections.FindByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("report: find detections for %s: %w", batchID, err)
	}

	seen := make(map[string]bool)
	var rows []Row

	for _, d := range all {
		if d.SourceFilename == "" || seen[d.SourceFilename] || !d.Chosen {
			continue
		}
		rows = append(rows, Row{SourceFilename: d.SourceFilename, Code: d.Code})
		seen[d.SourceFilename] = true
	}
	for _, d := range all {
		if d.SourceFilename == "" || seen[d.SourceFilename] || d.Rejected || d.Ambiguous {
			continue
		}
		rows = append(rows, Row{SourceFilename: d.SourceFilename, Code: d.Code})
		seen[d.SourceFilename] = true
	}

	failed, err := b.Images.FindByBatchAndStatus(ctx, batchID, images.StatusFailed, maxFailedImages)
	if err != nil {
		return nil, fmt.Errorf("report: find failed images for %s: %w", batchID, err)
	}
	for _, img := range failed {
		if img.SourceFilename == "" || seen[img.SourceFilename] {
			continue
		}
		rows = append(rows, Row{SourceFilename: img.SourceFilename, Code: "failed"})
		seen[img.SourceFilename] = true
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].SourceFilename < rows[j].SourceFilename })
	return rows, nil
}

// FormatCSV renders rows as CSV with a source_filename,code header.
func FormatCSV(rows []Row) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"source_filename", "code"}); err != nil {
		return "", err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.SourceFilename, r.Code}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FormatMarkdown renders rows as a markdown table.
func FormatMarkdown(rows []Row) string {
	var sb strings.Builder
	sb.WriteString("| source_filename | code |\n")
	sb.WriteString("|-----------------|------|\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", r.SourceFilename, r.Code))
	}
	return sb.String()
}
