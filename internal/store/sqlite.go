package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"erp-offline-sync/internal/database"
)

type SQLiteStore struct {
	db *database.Database
}

func NewSQLiteStore(db *database.Database) (*SQLiteStore, error) {
	if err := createTables(db.DB); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		size_bytes INTEGER NOT NULL,
		fetched_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS pending_actions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		resource TEXT NOT NULL,
		body BLOB NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		reject_reason TEXT,
		rejected_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_actions_state ON pending_actions(state, seq);
	CREATE TABLE IF NOT EXISTS sync_history (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		trigger_source TEXT NOT NULL,
		success_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT
	);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetEntry(ctx context.Context, key string) (*CacheEntry, error) {
	query := `SELECT key, payload, size_bytes, fetched_at FROM cache_entries WHERE key = ?`

	row := s.db.DB.QueryRowContext(ctx, query, key)

	var entry CacheEntry
	err := row.Scan(&entry.Key, &entry.Payload, &entry.SizeBytes, &entry.FetchedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// PutEntry replaces any prior entry for the key in a single statement, so a
// reader never observes a partial overwrite and a failed write leaves the
// prior row untouched.
func (s *SQLiteStore) PutEntry(ctx context.Context, entry *CacheEntry) error {
	query := `INSERT INTO cache_entries (key, payload, size_bytes, fetched_at)
			  VALUES (?, ?, ?, ?)
			  ON CONFLICT(key) DO UPDATE SET
			  payload = excluded.payload,
			  size_bytes = excluded.size_bytes,
			  fetched_at = excluded.fetched_at`

	_, err := s.db.DB.ExecContext(ctx, query,
		entry.Key,
		entry.Payload,
		entry.SizeBytes,
		entry.FetchedAt,
	)

	return err
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, key string) error {
	_, err := s.db.DB.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

func (s *SQLiteStore) DeleteEntriesByPrefix(ctx context.Context, prefix string) error {
	query := `DELETE FROM cache_entries WHERE key = ?1 OR key LIKE ?1 || ':%'`
	_, err := s.db.DB.ExecContext(ctx, query, prefix)
	return err
}

// ClearEntries removes every cache entry in one transaction: either all rows
// go or, on a storage error, none do.
func (s *SQLiteStore) ClearEntries(ctx context.Context) error {
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`)
		return err
	})
}

func (s *SQLiteStore) ListEntries(ctx context.Context) ([]*CacheEntry, error) {
	query := `SELECT key, payload, size_bytes, fetched_at FROM cache_entries ORDER BY key`

	rows, err := s.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*CacheEntry
	for rows.Next() {
		var entry CacheEntry
		if err := rows.Scan(&entry.Key, &entry.Payload, &entry.SizeBytes, &entry.FetchedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func (s *SQLiteStore) AppendAction(ctx context.Context, action *PendingAction) error {
	query := `INSERT INTO pending_actions (id, kind, resource, body, state, created_at, attempts)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	body := []byte(action.Body)
	if body == nil {
		body = []byte{} // deletes carry no payload
	}

	res, err := s.db.DB.ExecContext(ctx, query,
		action.ID,
		action.Kind,
		action.Resource,
		body,
		action.State,
		action.CreatedAt,
		action.Attempts,
	)
	if err != nil {
		return err
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	action.Seq = seq

	return nil
}

func (s *SQLiteStore) HeadAction(ctx context.Context) (*PendingAction, error) {
	query := `SELECT seq, id, kind, resource, body, state, created_at, attempts, reject_reason, rejected_at
			  FROM pending_actions WHERE state = ? ORDER BY seq LIMIT 1`

	row := s.db.DB.QueryRowContext(ctx, query, MutationPending)

	action, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return action, nil
}

func (s *SQLiteStore) DeleteAction(ctx context.Context, id string) error {
	_, err := s.db.DB.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) BumpAttempts(ctx context.Context, id string) error {
	query := `UPDATE pending_actions SET attempts = attempts + 1 WHERE id = ?`
	_, err := s.db.DB.ExecContext(ctx, query, id)
	return err
}

func (s *SQLiteStore) MarkRejected(ctx context.Context, id string, reason string) error {
	query := `UPDATE pending_actions SET state = ?, reject_reason = ?, rejected_at = ? WHERE id = ?`
	_, err := s.db.DB.ExecContext(ctx, query, MutationRejected, reason, time.Now(), id)
	return err
}

func (s *SQLiteStore) CountPending(ctx context.Context) (int, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_actions WHERE state = ?`, MutationPending)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteStore) ListByState(ctx context.Context, state MutationState) ([]*PendingAction, error) {
	query := `SELECT seq, id, kind, resource, body, state, created_at, attempts, reject_reason, rejected_at
			  FROM pending_actions WHERE state = ? ORDER BY seq`

	rows, err := s.db.DB.QueryContext(ctx, query, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*PendingAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	return actions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*PendingAction, error) {
	var a PendingAction
	var body []byte
	err := row.Scan(
		&a.Seq,
		&a.ID,
		&a.Kind,
		&a.Resource,
		&body,
		&a.State,
		&a.CreatedAt,
		&a.Attempts,
		&a.RejectReason,
		&a.RejectedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Body = body
	return &a, nil
}

func (s *SQLiteStore) CreateSyncRecord(ctx context.Context, record *SyncRecord) error {
	query := `INSERT INTO sync_history (id, started_at, trigger_source, success_count, failed_count, status)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.DB.ExecContext(ctx, query,
		record.ID,
		record.StartedAt,
		record.Trigger,
		record.SuccessCount,
		record.FailedCount,
		record.Status,
	)

	return err
}

func (s *SQLiteStore) UpdateSyncRecord(ctx context.Context, record *SyncRecord) error {
	query := `UPDATE sync_history
			  SET completed_at = ?, success_count = ?, failed_count = ?, status = ?, error_message = ?
			  WHERE id = ?`

	_, err := s.db.DB.ExecContext(ctx, query,
		record.CompletedAt,
		record.SuccessCount,
		record.FailedCount,
		record.Status,
		record.ErrorMessage,
		record.ID,
	)

	return err
}

func (s *SQLiteStore) ListSyncRecords(ctx context.Context, limit int) ([]*SyncRecord, error) {
	query := `SELECT id, started_at, completed_at, trigger_source, success_count, failed_count, status, error_message
			  FROM sync_history ORDER BY started_at DESC LIMIT ?`

	rows, err := s.db.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SyncRecord
	for rows.Next() {
		var r SyncRecord
		err := rows.Scan(
			&r.ID,
			&r.StartedAt,
			&r.CompletedAt,
			&r.Trigger,
			&r.SuccessCount,
			&r.FailedCount,
			&r.Status,
			&r.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, &r)
	}

	return records, rows.Err()
}
