// Copyright 2025 James Ross
package documentstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoDocuments is returned by operations that found no matching document,
// mirroring Mongo's ErrNoDocuments sentinel.
var ErrNoDocuments = errors.New("documentstore: no matching document")

// Document is the contract a stored type must satisfy: a stable, caller-
// assigned identifier used as the row's primary key.
type Document interface {
	DocumentID() string
}

// Collection is a generic, JSONB-backed stand-in for a Mongo collection.
// Every row is (id TEXT PRIMARY KEY, doc JSONB, created_at, updated_at); the
// whole value lives in doc and callers filter on dotted JSON paths via
// Filter rather than SQL columns, matching the document-store capability
// contract the workers are written against.
type Collection[T Document] struct {
	store *Store
	table string
}

// NewCollection binds a Go type to a Postgres table created by the
// migrations in migrations/.
func NewCollection[T Document](store *Store, table string) *Collection[T] {
	return &Collection[T]{store: store, table: table}
}

func (c *Collection[T]) decode(raw []byte) (T, error) {
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("documentstore: decode %s: %w", c.table, err)
	}
	return doc, nil
}

// FindOne returns the first document matching filter, or ErrNoDocuments.
func (c *Collection[T]) FindOne(ctx context.Context, filter Filter) (T, error) {
	var zero T
	where, args := buildWhere(filter, 0)
	query := fmt.Sprintf("SELECT doc FROM %s WHERE %s LIMIT 1", c.table, where)
	var raw []byte
	if err := c.store.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNoDocuments
		}
		return zero, fmt.Errorf("documentstore: find one %s: %w", c.table, err)
	}
	return c.decode(raw)
}

// FindOptions shape a Find call.
type FindOptions struct {
	SortField string
	SortDesc  bool
	Limit     int
}

// Find returns every document matching filter, optionally sorted and capped.
func (c *Collection[T]) Find(ctx context.Context, filter Filter, opts FindOptions) ([]T, error) {
	where, args := buildWhere(filter, 0)
	query := fmt.Sprintf("SELECT doc FROM %s WHERE %s", c.table, where)
	if opts.SortField != "" {
		dir := "ASC"
		if opts.SortDesc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", jsonPath(opts.SortField), dir)
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("documentstore: find %s: %w", c.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("documentstore: scan %s: %w", c.table, err)
		}
		doc, err := c.decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// InsertOne stores doc, keyed by its DocumentID.
func (c *Collection[T]) InsertOne(ctx context.Context, doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("documentstore: marshal %s: %w", c.table, err)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, doc, created_at, updated_at) VALUES ($1, $2, now(), now())",
		c.table,
	)
	if _, err := c.store.db.ExecContext(ctx, query, doc.DocumentID(), raw); err != nil {
		return fmt.Errorf("documentstore: insert one %s: %w", c.table, err)
	}
	return nil
}

// InsertMany stores docs inside a single transaction, matching the
// product-catalog bulk-import path.
func (c *Collection[T]) InsertMany(ctx context.Context, docs []T) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := c.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("documentstore: begin insert many %s: %w", c.table, err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(
		"INSERT INTO %s (id, doc, created_at, updated_at) VALUES ($1, $2, now(), now())",
		c.table,
	)
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("documentstore: marshal %s: %w", c.table, err)
		}
		if _, err := tx.ExecContext(ctx, query, doc.DocumentID(), raw); err != nil {
			return fmt.Errorf("documentstore: insert many %s: %w", c.table, err)
		}
	}
	return tx.Commit()
}

// Update describes a partial document update. Set replaces individual
// dotted JSON paths; Inc adds a numeric delta to a dotted JSON path,
// matching the queue's "$inc attempt_count" usage.
type Update struct {
	Set map[string]any
	Inc map[string]float64
}

func (u Update) empty() bool {
	return len(u.Set) == 0 && len(u.Inc) == 0
}

// buildSet compiles an Update into the jsonb_set(...) chain applied to doc,
// continuing $N numbering from argOffset.
func buildSet(u Update, argOffset int) (string, []any) {
	expr := "doc"
	var args []any
	n := argOffset
	for field, value := range u.Set {
		n++
		path := "{" + strings.ReplaceAll(field, ".", ",") + "}"
		raw, _ := json.Marshal(value)
		expr = fmt.Sprintf("jsonb_set(%s, '%s', $%d::jsonb, true)", expr, path, n)
		args = append(args, string(raw))
	}
	for field, delta := range u.Inc {
		n++
		path := "{" + strings.ReplaceAll(field, ".", ",") + "}"
		extractPath := strings.ReplaceAll(field, ".", ",")
		expr = fmt.Sprintf("jsonb_set(%s, '%s', to_jsonb(COALESCE((doc#>>'{%s}')::numeric, 0) + $%d::numeric), true)",
			expr, path, extractPath, n)
		args = append(args, delta)
	}
	return expr, args
}
