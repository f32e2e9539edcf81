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

// ReplaceOne overwrites the entire stored document for doc.DocumentID(). It
// is the natural counterpart to the read-mutate-write pattern workers use:
// fetch a document, mutate it as a Go struct, write the whole thing back,
// rather than expressing every nested-array append as a jsonb_set path.
func (c *Collection[T]) ReplaceOne(ctx context.Context, doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("documentstore: marshal %s: %w", c.table, err)
	}
	query := fmt.Sprintf("UPDATE %s SET doc = $2, updated_at = now() WHERE id = $1", c.table)
	res, err := c.store.db.ExecContext(ctx, query, doc.DocumentID(), raw)
	if err != nil {
		return fmt.Errorf("documentstore: replace one %s: %w", c.table, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNoDocuments
	}
	return nil
}

// UpdateOne applies update to the first document matching filter. It
// reports ErrNoDocuments if nothing matched.
func (c *Collection[T]) UpdateOne(ctx context.Context, filter Filter, update Update) error {
	if update.empty() {
		return nil
	}
	where, whereArgs := buildWhere(filter, 0)
	setExpr, setArgs := buildSet(update, len(whereArgs))
	query := fmt.Sprintf(
		"UPDATE %s SET doc = %s, updated_at = now() WHERE id IN (SELECT id FROM %s WHERE %s LIMIT 1)",
		c.table, setExpr, c.table, where,
	)
	args := append(append([]any{}, whereArgs...), setArgs...)
	res, err := c.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("documentstore: update one %s: %w", c.table, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNoDocuments
	}
	return nil
}

// UpdateMany applies update to every document matching filter and returns
// the number of rows touched.
func (c *Collection[T]) UpdateMany(ctx context.Context, filter Filter, update Update) (int64, error) {
	if update.empty() {
		return 0, nil
	}
	where, whereArgs := buildWhere(filter, 0)
	setExpr, setArgs := buildSet(update, len(whereArgs))
	query := fmt.Sprintf("UPDATE %s SET doc = %s, updated_at = now() WHERE %s", c.table, setExpr, where)
	args := append(append([]any{}, whereArgs...), setArgs...)
	res, err := c.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("documentstore: update many %s: %w", c.table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SortKey names one ORDER BY term: a dotted JSON field and its direction.
type SortKey struct {
	Field string
	Desc  bool
}

// FindOneAndUpdateOptions control the row chosen when more than one
// document matches filter. Sort keys are applied in order, so a secondary
// key only breaks ties left by the first — e.g. the queue's dequeue uses
// {priority desc}, {scheduled_for asc} to realize §4.2's "highest priority
// first, then earliest scheduled_for".
type FindOneAndUpdateOptions struct {
	Sort []SortKey
}

// FindOneAndUpdate atomically selects the document matching filter (locking
// it with SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never
// contend on the same row), applies update, and returns the post-update
// document. This realizes the queue's dequeue operation: a worker must
// claim a job and observe its own attempt_count increment in one step, and
// two workers racing for the same job must never both succeed.
func (c *Collection[T]) FindOneAndUpdate(ctx context.Context, filter Filter, update Update, opts FindOneAndUpdateOptions) (T, error) {
	var zero T
	tx, err := c.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("documentstore: begin find-and-update %s: %w", c.table, err)
	}
	defer tx.Rollback()

	where, args := buildWhere(filter, 0)
	selectQuery := fmt.Sprintf("SELECT id FROM %s WHERE %s", c.table, where)
	if len(opts.Sort) > 0 {
		terms := make([]string, len(opts.Sort))
		for i, key := range opts.Sort {
			dir := "ASC"
			if key.Desc {
				dir = "DESC"
			}
			terms[i] = fmt.Sprintf("%s %s", jsonPath(key.Field), dir)
		}
		selectQuery += " ORDER BY " + strings.Join(terms, ", ")
	}
	selectQuery += " LIMIT 1 FOR UPDATE SKIP LOCKED"

	var id string
	if err := tx.QueryRowContext(ctx, selectQuery, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNoDocuments
		}
		return zero, fmt.Errorf("documentstore: find-and-update select %s: %w", c.table, err)
	}

	setExpr, setArgs := buildSet(update, 1)
	updateQuery := fmt.Sprintf("UPDATE %s SET doc = %s, updated_at = now() WHERE id = $1 RETURNING doc", c.table, setExpr)
	updateArgs := append([]any{id}, setArgs...)

	var raw []byte
	if err := tx.QueryRowContext(ctx, updateQuery, updateArgs...).Scan(&raw); err != nil {
		return zero, fmt.Errorf("documentstore: find-and-update apply %s: %w", c.table, err)
	}
	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("documentstore: commit find-and-update %s: %w", c.table, err)
	}
	return c.decode(raw)
}

// CountDocuments counts documents matching filter.
func (c *Collection[T]) CountDocuments(ctx context.Context, filter Filter) (int64, error) {
	where, args := buildWhere(filter, 0)
	query := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", c.table, where)
	var n int64
	if err := c.store.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("documentstore: count %s: %w", c.table, err)
	}
	return n, nil
}

// DeleteMany removes every document matching filter and returns the count
// removed, used by the queue's CleanupOldCompleted sweep.
func (c *Collection[T]) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	where, args := buildWhere(filter, 0)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", c.table, where)
	res, err := c.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("documentstore: delete many %s: %w", c.table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GroupCount is one row of an Aggregate grouped count, e.g. {Key: ["decode_primary", "completed"], Count: 12}.
type GroupCount struct {
	Key   []string
	Count int64
}

// Aggregate performs a grouped count over the dotted JSON fields named in
// groupFields, the one aggregation pipeline shape the capability contract
// actually needs (the job queue's per-type, per-status stats). It is a
// deliberate narrowing of Mongo's general aggregation framework down to the
// single pipeline the system uses; see DESIGN.md.
func (c *Collection[T]) Aggregate(ctx context.Context, filter Filter, groupFields []string) ([]GroupCount, error) {
	if len(groupFields) == 0 {
		return nil, fmt.Errorf("documentstore: aggregate %s: no group fields", c.table)
	}
	where, args := buildWhere(filter, 0)
	cols := make([]string, len(groupFields))
	for i, f := range groupFields {
		cols[i] = jsonPath(f)
	}
	colList := ""
	for i, col := range cols {
		if i > 0 {
			colList += ", "
		}
		colList += col
	}
	query := fmt.Sprintf(
		"SELECT %s, count(*) FROM %s WHERE %s GROUP BY %s",
		colList, c.table, where, colList,
	)
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("documentstore: aggregate %s: %w", c.table, err)
	}
	defer rows.Close()

	var out []GroupCount
	for rows.Next() {
		dest := make([]any, len(groupFields)+1)
		keys := make([]sql.NullString, len(groupFields))
		for i := range keys {
			dest[i] = &keys[i]
		}
		var count int64
		dest[len(groupFields)] = &count
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("documentstore: aggregate scan %s: %w", c.table, err)
		}
		key := make([]string, len(keys))
		for i, k := range keys {
			key[i] = k.String
		}
		out = append(out, GroupCount{Key: key, Count: count})
	}
	return out, rows.Err()
}
