// Copyright 2025 James Ross
// Command uploader implements the §6 upload CLI: walk a local source tree,
// register each matching file as a pending image, and copy its bytes into
// the incoming/ blob stage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/lumensparkxy/barcode-pipeline/internal/blobstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/bootstrap"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
	"github.com/lumensparkxy/barcode-pipeline/internal/obs"
)

var contentTypeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

func contentTypeFor(ext string) string {
	if ct, ok := contentTypeByExt[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

func main() {
	var batchID, source, prefix, configPath string
	var recursive, dryRun, skipDuplicates bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&batchID, "batch-id", "", "Batch identifier to tag every uploaded image with (required)")
	fs.StringVar(&source, "source", "", "Local directory to scan for images (required)")
	fs.StringVar(&prefix, "prefix", "", "Only upload files whose path (relative to --source) matches this glob")
	fs.BoolVar(&recursive, "recursive", false, "Descend into subdirectories of --source")
	fs.BoolVar(&dryRun, "dry-run", false, "List files that would be uploaded without writing anything")
	fs.BoolVar(&skipDuplicates, "skip-duplicates", false, "Skip files already ingested under --batch-id with the same filename")
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	_ = fs.Parse(os.Args[1:])

	if batchID == "" || source == "" {
		fmt.Fprintln(os.Stderr, "uploader: --batch-id and --source are required")
		os.Exit(1)
	}

	app, err := bootstrap.New(configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "uploader: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	files, err := discover(source, prefix, recursive)
	if err != nil {
		app.Log.Fatal("uploader: discover files", obs.Err(err))
	}

	var uploaded, skipped, failed int
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		filename := filepath.Base(rel)

		if skipDuplicates {
			exists, err := app.Images.ExistsByBatchAndFilename(ctx, batchID, filename)
			if err != nil {
				app.Log.Warn("uploader: duplicate check failed", obs.Err(err), obs.String("file", path))
			} else if exists {
				app.Log.Info("uploader: skipping duplicate", obs.String("file", path))
				skipped++
				continue
			}
		}

		if dryRun {
			fmt.Println(rel)
			uploaded++
			continue
		}

		if err := uploadOne(ctx, app, batchID, filename, path); err != nil {
			app.Log.Error("uploader: upload failed", obs.Err(err), obs.String("file", path))
			failed++
			continue
		}
		uploaded++
	}

	app.Log.Info("uploader: run complete",
		obs.String("batch_id", batchID),
		obs.Int("uploaded", uploaded),
		obs.Int("skipped", skipped),
		obs.Int("failed", failed),
	)
	if failed > 0 {
		os.Exit(1)
	}
}

// discover walks source collecting image files, honoring the prefix glob
// (matched against the path relative to source) and the recursive flag.
func discover(source, prefix string, recursive bool) ([]string, error) {
	var out []string
	absSource, err := filepath.Abs(source)
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(absSource, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != absSource && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(absSource, path)
		if err != nil {
			return nil
		}
		if _, ok := contentTypeByExt[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if prefix != "" {
			if ok, _ := doublestar.PathMatch(prefix, filepath.ToSlash(rel)); !ok {
				return nil
			}
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func uploadOne(ctx context.Context, app *bootstrap.App, batchID, filename, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	imageID := uuid.NewString()
	destPath := blobstore.Incoming(batchID, imageID, ext)

	ctx, span := obs.StartEnqueueSpan(ctx, "upload", imageID)
	defer span.End()

	if err := app.Blob.Put(ctx, destPath, strings.NewReader(string(data)), contentTypeFor(ext)); err != nil {
		obs.RecordError(ctx, err)
		return fmt.Errorf("put %s: %w", destPath, err)
	}

	img := images.Image{
		ImageID:        imageID,
		BatchID:        batchID,
		SourceFilename: filename,
		Status:         images.StatusPending,
		ContentType:    contentTypeFor(ext),
		SizeBytes:      int64(len(data)),
		CreatedAt:      time.Now().UTC(),
	}
	if err := app.Images.Create(ctx, img); err != nil {
		obs.RecordError(ctx, err)
		return fmt.Errorf("create image record: %w", err)
	}
	obs.SetSpanSuccess(ctx)
	return nil
}
