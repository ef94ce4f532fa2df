// Package storage opens the SQLite databases used by the job cache and the
// master receiver.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mattjoyce/warden/internal/log"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := RequireLocal(path, "sqlite database", "Point cache_dir or master_server.db_path at local disk."); err != nil {
		if errors.Is(err, ErrNetworkFilesystem) {
			return nil, err
		}
		log.WithComponent("storage").Debug("filesystem check skipped", "path", path, "error", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_returns (
  jid         TEXT NOT NULL,
  minion_id   TEXT NOT NULL DEFAULT '',
  fun         TEXT NOT NULL,
  fun_args    JSON,
  ret         JSON,
  retcode     INTEGER NOT NULL DEFAULT 0,
  success     INTEGER NOT NULL DEFAULT 0,
  out         TEXT,
  received_at TEXT NOT NULL,
  PRIMARY KEY (jid, minion_id)
);`,
		`CREATE TABLE IF NOT EXISTS minion_events (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  minion_id   TEXT NOT NULL DEFAULT '',
  tag         TEXT NOT NULL,
  data        JSON,
  received_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS job_returns_received_at_idx ON job_returns(received_at);`,
		`CREATE INDEX IF NOT EXISTS job_returns_fun_idx ON job_returns(fun);`,
		`CREATE INDEX IF NOT EXISTS minion_events_tag_idx ON minion_events(tag);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
