package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteQueue is a persistent work queue implementation backed by SQLite.
// It is safe for concurrent use for our purposes, using simple FIFO semantics
// based on an auto-incrementing id, with delayed visibility via not_before.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the items table in the given DB and returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS work_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			instance_id TEXT NOT NULL DEFAULT '',
			not_before INTEGER NOT NULL,
			data BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_work_items_not_before ON work_items(not_before, id);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, it Item) error {
	now := time.Now()
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = now
	}

	notBefore := it.EnqueuedAt.UnixNano()
	if !it.NotBefore.IsZero() {
		notBefore = it.NotBefore.UnixNano()
	}

	data, err := EncodeItem(it)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO work_items (type, instance_id, not_before, data)
		VALUES (?, ?, ?, ?)`,
		string(it.Type),
		it.InstanceID,
		notBefore,
		data,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Item, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		now := time.Now().UnixNano()

		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var (
			id   int64
			data []byte
		)

		row := tx.QueryRowContext(ctx, `
			SELECT id, data
			FROM work_items
			WHERE not_before <= ?
			ORDER BY not_before, id
			LIMIT 1`, now)
		err = row.Scan(&id, &data)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				_ = tx.Rollback()
				// Nothing available: sleep a bit and retry.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(q.pollInterval):
					continue
				}
			}
			_ = tx.Rollback()
			return nil, err
		}

		// Delete the row we just claimed.
		if _, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			return nil, err
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}

		it, err := DecodeItem(data)
		if err != nil {
			return nil, err
		}
		return it, nil
	}
}

func (q *SQLiteQueue) Len() int {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM work_items`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
