// Copyright 2025 James Ross
package queue

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/lumensparkxy/barcode-pipeline/internal/documentstore"
)

func newTestQueue(t *testing.T) (*Queue, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := documentstore.NewStoreFromDB(sqlx.NewDb(db, "postgres"))
	return New(store), mock
}

func TestDequeueClaimsHighestPriorityDueJob(t *testing.T) {
	q, mock := newTestQueue(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM jobs WHERE .* ORDER BY .* DESC .* FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-1"))
	mock.ExpectQuery(`UPDATE jobs SET doc = .* WHERE id = \$1 RETURNING doc`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(
			`{"id":"job-1","job_type":"decode_primary","status":"in_progress","attempt_count":1,"max_attempts":3}`,
		))
	mock.ExpectCommit()

	job, err := q.Dequeue(context.Background(), TypeDecodePrimary, "worker-a", 300e9)
	require.NoError(t, err)
	require.Equal(t, "job-1", job.JobID)
	require.Equal(t, StatusInProgress, job.Status)
}

func TestDequeueEmptyReturnsErrEmpty(t *testing.T) {
	q, mock := newTestQueue(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM jobs`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := q.Dequeue(context.Background(), "", "worker-a", 300e9)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestFailBelowMaxAttemptsReturnsToPendingWithBackoff(t *testing.T) {
	q, mock := newTestQueue(t)
	mock.ExpectExec(`UPDATE jobs SET doc = .* WHERE id IN`).WillReturnResult(sqlmock.NewResult(0, 1))

	job := Job{JobID: "job-1", AttemptCount: 1, MaxAttempts: 3}
	err := q.Fail(context.Background(), job, "transport error", "dial tcp: timeout")
	require.NoError(t, err)
}

func TestFailAtMaxAttemptsMarksFailed(t *testing.T) {
	q, mock := newTestQueue(t)
	mock.ExpectExec(`UPDATE jobs SET doc = .* WHERE id IN`).WillReturnResult(sqlmock.NewResult(0, 1))

	job := Job{JobID: "job-1", AttemptCount: 3, MaxAttempts: 3}
	err := q.Fail(context.Background(), job, "transport error", "dial tcp: timeout")
	require.NoError(t, err)
}

func TestExistsForImageTrueWhenPendingOrInProgress(t *testing.T) {
	q, mock := newTestQueue(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM jobs WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := q.ExistsForImage(context.Background(), "img-1", TypePreprocess)
	require.NoError(t, err)
	require.True(t, exists)
}
