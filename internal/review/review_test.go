// Copyright 2025 James Ross
package review

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/lumensparkxy/barcode-pipeline/internal/detections"
	"github.com/lumensparkxy/barcode-pipeline/internal/documentstore"
	"github.com/lumensparkxy/barcode-pipeline/internal/images"
)

// fakeBlob is a minimal in-memory blobstore.Store double that only
// records Move calls, since review never reads or writes blob bytes.
type fakeBlob struct {
	moves [][2]string
}

func (f *fakeBlob) Put(context.Context, string, io.Reader, string) error { return nil }
func (f *fakeBlob) Get(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (f *fakeBlob) Exists(context.Context, string) (bool, error) { return true, nil }
func (f *fakeBlob) Delete(context.Context, string) error         { return nil }
func (f *fakeBlob) Copy(context.Context, string, string) error   { return nil }
func (f *fakeBlob) Move(_ context.Context, src, dst string) error {
	f.moves = append(f.moves, [2]string{src, dst})
	return nil
}
func (f *fakeBlob) List(context.Context, string) ([]string, error) { return nil, nil }
func (f *fakeBlob) PresignedURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

func newTestResolver(t *testing.T) (*Resolver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := documentstore.NewStoreFromDB(sqlx.NewDb(db, "postgres"))
	imageRepo := images.NewRepository(store)
	detectionRepo := detections.NewRepository(store)
	return New(imageRepo, detectionRepo, &fakeBlob{}), mock
}

// TestChooseRejectsSiblingsAndTransitionsToDecodedManual exercises the §8
// S4 scenario: a choose decision against an ambiguous image marks the
// named detection chosen, rejects every sibling, and moves the image to
// decoded_manual with its blob back under processed/.
func TestChooseRejectsSiblingsAndTransitionsToDecodedManual(t *testing.T) {
	r, mock := newTestResolver(t)

	mock.ExpectQuery(`SELECT doc FROM images WHERE .* LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(
			`{"id":"img-1","batch_id":"batch-1","status":"manual_review","final_blob_path":"manual-review/batch-1/img-1.jpg"}`,
		))
	mock.ExpectQuery(`SELECT doc FROM detections WHERE .* ORDER BY`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).
			AddRow(`{"id":"d1","image_id":"img-1","ambiguous":true}`).
			AddRow(`{"id":"d2","image_id":"img-1","ambiguous":true}`))
	mock.ExpectExec(`UPDATE detections SET doc = \$2`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE detections SET doc = \$2`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE images SET doc = .* WHERE id IN`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Resolve(context.Background(), Decision{
		ImageID:     "img-1",
		Action:      ActionChoose,
		DetectionID: "d1",
		Reviewer:    "alice",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChooseUnknownDetectionReturnsError(t *testing.T) {
	r, mock := newTestResolver(t)

	mock.ExpectQuery(`SELECT doc FROM images WHERE .* LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(
			`{"id":"img-1","batch_id":"batch-1","status":"manual_review","final_blob_path":"manual-review/batch-1/img-1.jpg"}`,
		))
	mock.ExpectQuery(`SELECT doc FROM detections WHERE .* ORDER BY`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).
			AddRow(`{"id":"d1","image_id":"img-1","ambiguous":true}`))
	mock.ExpectExec(`UPDATE detections SET doc = \$2`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Resolve(context.Background(), Decision{
		ImageID:     "img-1",
		Action:      ActionChoose,
		DetectionID: "does-not-exist",
		Reviewer:    "alice",
	})
	require.ErrorIs(t, err, ErrDetectionNotFound)
}

func TestChooseWithoutDetectionIDReturnsError(t *testing.T) {
	r, _ := newTestResolver(t)
	err := r.Resolve(context.Background(), Decision{ImageID: "img-1", Action: ActionChoose})
	require.ErrorIs(t, err, ErrDetectionIDRequired)
}

// TestNoBarcodeRejectsAllAndTransitionsToFailed covers the §4.7 no_barcode
// branch: every detection for the image is rejected and the image lands in
// the terminal failed status with its blob under failed/.
func TestNoBarcodeRejectsAllAndTransitionsToFailed(t *testing.T) {
	r, mock := newTestResolver(t)

	mock.ExpectQuery(`SELECT doc FROM images WHERE .* LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(
			`{"id":"img-1","batch_id":"batch-1","status":"manual_review","final_blob_path":"manual-review/batch-1/img-1.jpg"}`,
		))
	mock.ExpectExec(`UPDATE detections SET doc`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE images SET doc = .* WHERE id IN`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Resolve(context.Background(), Decision{
		ImageID:  "img-1",
		Action:   ActionNoBarcode,
		Reviewer: "alice",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSkipIsANoOp(t *testing.T) {
	r, mock := newTestResolver(t)
	err := r.Resolve(context.Background(), Decision{ImageID: "img-1", Action: ActionSkip})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownActionReturnsError(t *testing.T) {
	r, _ := newTestResolver(t)
	err := r.Resolve(context.Background(), Decision{ImageID: "img-1", Action: "bogus"})
	require.Error(t, err)
}
