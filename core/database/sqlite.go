package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/wabot/core/logger"
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_key TEXT PRIMARY KEY,
    data TEXT NOT NULL DEFAULT '{}',
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

// OpenSQLite opens (or creates) the SQLite database at path and applies the session schema.
// The handle uses "?" placeholders through the sqlite3 bind type.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	raw, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	if path == MemoryPath {
		raw.SetMaxOpenConns(1)
	}
	db := sqlx.NewDb(raw.DB, "sqlite3")

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}

	logger.Info(ctx, logger.CompDB, "db.connect",
		slog.String("status", "ok"),
		slog.String("driver", "sqlite"),
		slog.String("path", path),
		slog.Duration("duration", logger.Took(start)),
	)
	return db, nil
}
