// Copyright 2025 James Ross
// Package documentstore realizes a Mongo-shaped document capability
// (findOne/find/insertOne/insertMany/updateOne/updateMany/findAndModify/
// countDocuments/aggregate) on top of PostgreSQL and JSONB. No Go MongoDB
// driver appears anywhere in the retrieved example pack, so the capability
// contract is kept and the backing engine is swapped; see DESIGN.md.
package documentstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store wraps a pooled Postgres connection shared by every collection.
type Store struct {
	db *sqlx.DB
}

// Open connects to databaseURL and tunes the pool the way a long-lived
// worker process should: a handful of idle connections, a bounded maximum,
// and periodic recycling so the pool survives a database failover.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("documentstore: connect: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an already-open sqlx connection, used by tests that
// substitute a sqlmock-backed *sql.DB.
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ping verifies connectivity, used by process health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for migration tooling and transactions that
// span more than one collection.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
