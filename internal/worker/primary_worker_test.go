// Copyright 2025 James Ross
package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/disintegration/imaging"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumensparkxy/barcode-pipeline/internal/detections"
	"github.com/lumensparkxy/barcode-pipeline/internal/documentstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
	"github.com/lumensparkxy/barcode-pipeline/internal/queue"
	"github.com/lumensparkxy/barcode-pipeline/internal/scanner"
)

// --- test doubles shared by this file and fallback_worker_test.go ---

type fakeBlob struct {
	objects map[string][]byte
	moves   [][2]string
}

func newFakeBlob() *fakeBlob { return &fakeBlob{objects: map[string][]byte{}} }

func (f *fakeBlob) Put(_ context.Context, key string, body io.Reader, _ string) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = raw
	return nil
}
func (f *fakeBlob) Get(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}
func (f *fakeBlob) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}
func (f *fakeBlob) Delete(_ context.Context, key string) error { delete(f.objects, key); return nil }
func (f *fakeBlob) Copy(_ context.Context, src, dst string) error {
	f.objects[dst] = f.objects[src]
	return nil
}
func (f *fakeBlob) Move(_ context.Context, src, dst string) error {
	f.moves = append(f.moves, [2]string{src, dst})
	f.objects[dst] = f.objects[src]
	delete(f.objects, src)
	return nil
}
func (f *fakeBlob) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
func (f *fakeBlob) PresignedURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

// sequenceScanner returns its configured Readings in order, one slice per
// call to Scan (one call per rotation ScanAllRotations drives).
type sequenceScanner struct {
	calls   int
	results [][]scanner.Reading
}

func (s *sequenceScanner) Scan(context.Context, image.Image) ([]scanner.Reading, error) {
	defer func() { s.calls++ }()
	if s.calls >= len(s.results) {
		return nil, nil
	}
	return s.results[s.calls], nil
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 7), B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func newTestDeps(t *testing.T) (Deps, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := documentstore.NewStoreFromDB(sqlx.NewDb(db, "postgres"))
	return Deps{
		Queue:      queue.New(store),
		Images:     images.NewRepository(store),
		Detections: detections.NewRepository(store),
		Blob:       newFakeBlob(),
		Log:        zap.NewNop(),
	}, mock
}

// TestPrimaryWorkerHappyPathCreatesOneDetection is §8 scenario S1: a
// single readable EAN-13 on the normalised artifact promotes the image
// straight to decoded_primary with one detection and the blob under
// processed/.
func TestPrimaryWorkerHappyPathCreatesOneDetection(t *testing.T) {
	deps, mock := newTestDeps(t)
	blob := deps.Blob.(*fakeBlob)
	blob.objects["preprocessed/batch-1/img-1_norm.jpg"] = testJPEG(t)
	deps.Scanner = scanner.New(&sequenceScanner{
		results: [][]scanner.Reading{
			{{Code: "4006381333931"}},
			nil,
		},
	}, nil)

	w := NewPrimaryWorker(deps)

	mock.ExpectQuery(`SELECT count\(\*\) FROM detections WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT doc FROM images WHERE .* LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(
			`{"id":"img-1","batch_id":"batch-1","status":"preprocessed","preprocessing":{"normalized_path":"preprocessed/batch-1/img-1_norm.jpg"}}`,
		))
	mock.ExpectExec(`UPDATE images SET doc = .* WHERE id IN`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO detections`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`UPDATE images SET doc = .* WHERE id IN`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.handle(context.Background(), queue.Job{ImageID: "img-1", BatchID: "batch-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, blob.moves, 1)
	require.Equal(t, "processed/batch-1/img-1.jpg", blob.moves[0][1])
}

// TestPrimaryWorkerEmptyScanBouncesToFallback is the §4.4 step 6 "zero
// valid readings" branch: the image returns to preprocessed with
// needs_fallback=true and the blob is left untouched.
func TestPrimaryWorkerEmptyScanBouncesToFallback(t *testing.T) {
	deps, mock := newTestDeps(t)
	blob := deps.Blob.(*fakeBlob)
	blob.objects["preprocessed/batch-1/img-1_norm.jpg"] = testJPEG(t)
	deps.Scanner = scanner.New(&sequenceScanner{}, nil)

	w := NewPrimaryWorker(deps)

	mock.ExpectQuery(`SELECT count\(\*\) FROM detections WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT doc FROM images WHERE .* LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(
			`{"id":"img-1","batch_id":"batch-1","status":"preprocessed","preprocessing":{"normalized_path":"preprocessed/batch-1/img-1_norm.jpg"}}`,
		))
	mock.ExpectExec(`UPDATE images SET doc = .* WHERE id IN`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE images SET doc = .* WHERE id IN`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.handle(context.Background(), queue.Job{ImageID: "img-1", BatchID: "batch-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Empty(t, blob.moves)
}

// TestPrimaryWorkerIdempotentWhenDetectionAlreadyExists covers §8 property
// 6: a second run against the same image after a detection already exists
// is a no-op.
func TestPrimaryWorkerIdempotentWhenDetectionAlreadyExists(t *testing.T) {
	deps, mock := newTestDeps(t)
	w := NewPrimaryWorker(deps)

	mock.ExpectQuery(`SELECT count\(\*\) FROM detections WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := w.handle(context.Background(), queue.Job{ImageID: "img-1", BatchID: "batch-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
