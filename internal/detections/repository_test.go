// Copyright 2025 James Ross
package detections

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/lumensparkxy/barcode-pipeline/internal/documentstore"
)

func newTestRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := documentstore.NewStoreFromDB(sqlx.NewDb(db, "postgres"))
	return NewRepository(store), mock
}

func TestCreateStampsDetectedAtWhenUnset(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectExec(`INSERT INTO detections`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Create(context.Background(), Detection{DetectionID: "d1", ImageID: "img-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateManyInsertsInsideOneTransaction(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO detections`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO detections`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := r.CreateMany(context.Background(), []Detection{
		{DetectionID: "d1", ImageID: "img-1"},
		{DetectionID: "d2", ImageID: "img-1"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsForImageReflectsCount(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM detections WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := r.ExistsForImage(context.Background(), "img-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByImageOrdersByDetectedAt(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectQuery(`SELECT doc FROM detections WHERE .* ORDER BY`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).
			AddRow(`{"id":"d1","image_id":"img-1"}`).
			AddRow(`{"id":"d2","image_id":"img-1"}`))

	ds, err := r.FindByImage(context.Background(), "img-1")
	require.NoError(t, err)
	require.Len(t, ds, 2)
	require.Equal(t, "d1", ds[0].DetectionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReplacesWholeDocument(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectExec(`UPDATE detections SET doc = \$2`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Save(context.Background(), Detection{DetectionID: "d1", ImageID: "img-1", Chosen: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectAllForImageUpdatesEveryMatch(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectExec(`UPDATE detections SET doc`).WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := r.RejectAllForImage(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDetectionValidRequiresChecksumLengthAndNumeric(t *testing.T) {
	valid := Detection{ChecksumValid: true, LengthValid: true, NumericOnly: true}
	require.True(t, valid.Valid())

	invalid := Detection{ChecksumValid: false, LengthValid: true, NumericOnly: true}
	require.False(t, invalid.Valid())
}

func TestMarkChosenAndMarkRejectedAreMutuallyExclusive(t *testing.T) {
	d := Detection{Ambiguous: true}
	d.MarkChosen()
	require.True(t, d.Chosen)
	require.False(t, d.Ambiguous)
	require.False(t, d.Rejected)

	d.MarkRejected()
	require.True(t, d.Rejected)
	require.False(t, d.Chosen)
}
