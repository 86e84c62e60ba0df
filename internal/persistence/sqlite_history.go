package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/duro/pkg/api"
)

// SQLiteHistoryStore stores per-instance history events in SQLite.
//
// The full event is stored as a gob payload; the type column is duplicated
// in clear text for inspection with the sqlite3 shell.
type SQLiteHistoryStore struct {
	db *sql.DB
}

// Ensure SQLiteHistoryStore implements the interface.
var _ HistoryStore = (*SQLiteHistoryStore)(nil)

func NewSQLiteHistoryStore(db *sql.DB) (*SQLiteHistoryStore, error) {
	s := &SQLiteHistoryStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteHistoryStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS history_events (
			instance_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (instance_id, seq)
		);
	`)
	return err
}

func (s *SQLiteHistoryStore) AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int64
	row := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM history_events WHERE instance_id = ?`, instanceID)
	if err := row.Scan(&next); err != nil {
		return err
	}

	for i := range events {
		next++
		events[i].Seq = next
		if events[i].At.IsZero() {
			events[i].At = time.Now()
		}

		data, err := EncodeValue(events[i])
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history_events (instance_id, seq, type, data)
			VALUES (?, ?, ?, ?)`,
			instanceID,
			events[i].Seq,
			string(events[i].Type),
			data,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteHistoryStore) ListEvents(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data
		FROM history_events
		WHERE instance_id = ?
		ORDER BY seq ASC`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.HistoryEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		ev, err := DecodeValue[api.HistoryEvent](data)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
