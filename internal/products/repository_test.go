// Copyright 2025 James Ross
package products

import (
	"context"
	"database/sql"
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

func TestUpsertInsertsWhenAbsent(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectQuery(`SELECT doc FROM products WHERE .* LIMIT 1`).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO products`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Upsert(context.Background(), Product{EAN: "4006381333931", Name: "Widget"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReplacesWhenPresent(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectQuery(`SELECT doc FROM products WHERE .* LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(
			`{"id":"4006381333931","name":"Widget"}`,
		))
	mock.ExpectExec(`UPDATE products SET doc = \$2`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Upsert(context.Background(), Product{EAN: "4006381333931", Name: "Widget v2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEANReportsMissingAsNotFound(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectQuery(`SELECT doc FROM products WHERE .* LIMIT 1`).WillReturnError(sql.ErrNoRows)

	_, found, err := r.GetByEAN(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByAnyCodeMatchesCanonicalCodes(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectQuery(`SELECT doc FROM products WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(
			`{"id":"4006381333931","upc":"012345678905","name":"Widget"}`,
		))

	p, found, err := r.GetByAnyCode(context.Background(), "012345678905")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "4006381333931", p.EAN)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestGetByAnyCodeFallsBackToAdditionalCodes covers the array-membership
// case buildWhere cannot express directly: the canonical $or misses, so
// GetByAnyCode scans every product's additional_codes.
func TestGetByAnyCodeFallsBackToAdditionalCodes(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectQuery(`SELECT doc FROM products WHERE`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT doc FROM products WHERE TRUE`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).
			AddRow(`{"id":"4006381333931","name":"Widget","additional_codes":["ALT-1","ALT-2"]}`).
			AddRow(`{"id":"5901234123457","name":"Gadget"}`))

	p, found, err := r.GetByAnyCode(context.Background(), "ALT-2")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "4006381333931", p.EAN)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByAnyCodeReturnsNotFoundWhenNoMatchAnywhere(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectQuery(`SELECT doc FROM products WHERE`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT doc FROM products WHERE TRUE`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).
			AddRow(`{"id":"4006381333931","name":"Widget"}`))

	_, found, err := r.GetByAnyCode(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateFlipsActiveFlag(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectExec(`UPDATE products SET doc = .* WHERE id IN`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Deactivate(context.Background(), "4006381333931")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkImportInsertsInsideOneTransaction(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO products`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO products`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := r.BulkImport(context.Background(), []Product{
		{EAN: "4006381333931", Name: "Widget"},
		{EAN: "5901234123457", Name: "Gadget"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountReturnsTotal(t *testing.T) {
	r, mock := newTestRepo(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM products WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := r.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
