package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/duro/pkg/api"
)

// SQLiteInstanceStore is an InstanceStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteInstanceStore struct {
	db *sql.DB
}

// Ensure SQLiteInstanceStore implements InstanceStore.
var _ InstanceStore = (*SQLiteInstanceStore)(nil)

// NewSQLiteInstanceStore initializes the required schema in the given
// database and returns a new SQLiteInstanceStore.
func NewSQLiteInstanceStore(db *sql.DB) (*SQLiteInstanceStore, error) {
	s := &SQLiteInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			input BLOB,
			output BLOB,
			custom_status BLOB,
			failure_kind TEXT NOT NULL DEFAULT '',
			failure_message TEXT NOT NULL DEFAULT '',
			parent_id TEXT NOT NULL DEFAULT '',
			parent_task_id INTEGER NOT NULL DEFAULT 0,
			consumed_seq INTEGER NOT NULL DEFAULT 0,
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_expires_at INTEGER NOT NULL DEFAULT 0
		);`,
	)
	return err
}

func (s *SQLiteInstanceStore) SaveInstance(inst *api.OrchestrationInstance) error {
	input, output, customStatus, err := encodeInstancePayloads(inst)
	if err != nil {
		return err
	}

	kind, msg := failureColumns(inst.Failure)

	_, err = s.db.Exec(`
		INSERT INTO instances (id, name, status, input, output, custom_status, failure_kind, failure_message, parent_id, parent_task_id, consumed_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.Name,
		string(inst.Status),
		input,
		output,
		customStatus,
		kind,
		msg,
		inst.ParentID,
		inst.ParentTaskID,
		inst.ConsumedSeq,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrInstanceExists
	}
	return err
}

func (s *SQLiteInstanceStore) UpdateInstance(inst *api.OrchestrationInstance) error {
	input, output, customStatus, err := encodeInstancePayloads(inst)
	if err != nil {
		return err
	}

	kind, msg := failureColumns(inst.Failure)

	res, err := s.db.Exec(`
		UPDATE instances
		SET name = ?, status = ?, input = ?, output = ?, custom_status = ?, failure_kind = ?, failure_message = ?, parent_id = ?, parent_task_id = ?, consumed_seq = ?
		WHERE id = ?`,
		inst.Name,
		string(inst.Status),
		input,
		output,
		customStatus,
		kind,
		msg,
		inst.ParentID,
		inst.ParentTaskID,
		inst.ConsumedSeq,
		inst.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}

	return nil
}

func (s *SQLiteInstanceStore) GetInstance(id string) (*api.OrchestrationInstance, error) {
	row := s.db.QueryRow(`
		SELECT id, name, status, input, output, custom_status, failure_kind, failure_message, parent_id, parent_task_id, consumed_seq
		FROM instances
		WHERE id = ?`,
		id,
	)

	inst, err := scanInstance(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (s *SQLiteInstanceStore) ListInstances(filter InstanceFilter) ([]*api.OrchestrationInstance, error) {
	query := `
		SELECT id, name, status, input, output, custom_status, failure_kind, failure_message, parent_id, parent_task_id, consumed_seq
		FROM instances`
	var args []any
	var clauses []string

	if filter.Name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*api.OrchestrationInstance

	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return instances, nil
}

func (s *SQLiteInstanceStore) TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	expires := now.Add(ttl).UnixNano()
	nowInt := now.UnixNano()

	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET lease_owner = ?, lease_expires_at = ?
		WHERE id = ?
		AND (
			lease_owner = ''
			OR lease_expires_at <= ?
			OR lease_owner = ?
		)`,
		owner, expires, instanceID, nowInt, owner,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	return true, nil
}

func (s *SQLiteInstanceStore) RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error {
	expires := time.Now().Add(ttl).UnixNano()
	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET lease_expires_at = ?
		WHERE id = ? AND lease_owner = ?`,
		expires, instanceID, owner,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseNotHeld
	}
	return nil
}

func (s *SQLiteInstanceStore) ReleaseLease(ctx context.Context, instanceID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET lease_owner = '', lease_expires_at = 0
		WHERE id = ? AND (lease_owner = '' OR lease_owner = ?)`,
		instanceID, owner,
	)
	return err
}

func encodeInstancePayloads(inst *api.OrchestrationInstance) (input, output, customStatus []byte, err error) {
	input, err = EncodeValue(inst.Input)
	if err != nil {
		return nil, nil, nil, err
	}
	output, err = EncodeValue(inst.Output)
	if err != nil {
		return nil, nil, nil, err
	}
	customStatus, err = EncodeValue(inst.CustomStatus)
	if err != nil {
		return nil, nil, nil, err
	}
	return input, output, customStatus, nil
}

func failureColumns(f *api.FailureDetails) (kind, msg string) {
	if f == nil {
		return "", ""
	}
	return string(f.Kind), f.Message
}

func scanInstance(scan func(dest ...any) error) (*api.OrchestrationInstance, error) {
	var inst api.OrchestrationInstance
	var statusStr string
	var input, output, customStatus []byte
	var failureKind, failureMsg string

	if err := scan(
		&inst.ID, &inst.Name, &statusStr,
		&input, &output, &customStatus,
		&failureKind, &failureMsg,
		&inst.ParentID, &inst.ParentTaskID, &inst.ConsumedSeq,
	); err != nil {
		return nil, err
	}

	inst.Status = api.Status(statusStr)

	inVal, err := DecodeValue[any](input)
	if err != nil {
		return nil, err
	}
	inst.Input = inVal

	outVal, err := DecodeValue[any](output)
	if err != nil {
		return nil, err
	}
	inst.Output = outVal

	csVal, err := DecodeValue[any](customStatus)
	if err != nil {
		return nil, err
	}
	inst.CustomStatus = csVal

	if failureKind != "" || failureMsg != "" {
		inst.Failure = &api.FailureDetails{
			Kind:    api.FailureKind(failureKind),
			Message: failureMsg,
		}
	}

	return &inst, nil
}

// SQLiteEntityStore is an EntityStore backed by SQLite. Deleted entities
// keep their row with the tombstone flag set.
type SQLiteEntityStore struct {
	db *sql.DB
}

var _ EntityStore = (*SQLiteEntityStore)(nil)

func NewSQLiteEntityStore(db *sql.DB) (*SQLiteEntityStore, error) {
	s := &SQLiteEntityStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEntityStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			state BLOB,
			tombstone INTEGER NOT NULL DEFAULT 0
		);`,
	)
	return err
}

func (s *SQLiteEntityStore) SaveEntity(ent *api.EntityInstance) error {
	state, err := EncodeValue(ent.State)
	if err != nil {
		return err
	}

	tombstone := 0
	if ent.Tombstone {
		tombstone = 1
	}

	_, err = s.db.Exec(`
		INSERT INTO entities (id, state, tombstone)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, tombstone = excluded.tombstone`,
		ent.ID,
		state,
		tombstone,
	)
	return err
}

func (s *SQLiteEntityStore) GetEntity(id string) (*api.EntityInstance, error) {
	row := s.db.QueryRow(`
		SELECT id, state, tombstone
		FROM entities
		WHERE id = ?`,
		id,
	)

	var ent api.EntityInstance
	var state []byte
	var tombstone int

	if err := row.Scan(&ent.ID, &state, &tombstone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, err
	}

	stateVal, err := DecodeValue[any](state)
	if err != nil {
		return nil, err
	}
	ent.State = stateVal
	ent.Tombstone = tombstone != 0

	return &ent, nil
}
