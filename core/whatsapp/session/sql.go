package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/wabot/core/logger"
)

const (
	sqlGet    = `SELECT data FROM sessions WHERE session_key = ?`
	sqlDelete = `DELETE FROM sessions WHERE session_key = ?`
	sqlUpsert = `INSERT INTO sessions (session_key, data, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (session_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	sqlPrune = `DELETE FROM sessions WHERE updated_at < ?`
)

// SQLStore keeps sessions in the sessions table of a Postgres or SQLite
// database. Data is stored as a JSON document.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps db. The schema must already exist.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Get loads the session stored under key.
func (s *SQLStore) Get(ctx context.Context, key string) (map[string]any, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	var raw []byte
	err := s.db.GetContext(ctx, &raw, s.db.Rebind(sqlGet), key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return map[string]any{}, nil
	case err != nil:
		return nil, fmt.Errorf("session sql: get %q: %w", key, err)
	}
	data := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("session sql: decode %q: %w", key, err)
		}
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// Set upserts the session stored under key.
func (s *SQLStore) Set(ctx context.Context, key string, data map[string]any) error {
	if key == "" {
		return ErrEmptyKey
	}
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session sql: encode %q: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(sqlUpsert), key, string(raw)); err != nil {
		return fmt.Errorf("session sql: set %q: %w", key, err)
	}
	return nil
}

// Delete removes the session stored under key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(sqlDelete), key); err != nil {
		return fmt.Errorf("session sql: delete %q: %w", key, err)
	}
	return nil
}

// Prune deletes sessions not written since olderThan ago and reports how many were removed.
func (s *SQLStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	// SQLite compares the text form written by CURRENT_TIMESTAMP.
	var arg any = cutoff
	if s.db.DriverName() == "sqlite3" {
		arg = cutoff.Format(time.DateTime)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(sqlPrune), arg)
	if err != nil {
		return 0, fmt.Errorf("session sql: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	logger.Info(ctx, logger.CompStore, "store.prune",
		slog.String("status", "ok"),
		slog.Int64("removed", n),
		slog.Duration("older_than", olderThan),
	)
	return n, nil
}
