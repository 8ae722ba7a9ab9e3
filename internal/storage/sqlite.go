package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := CheckLocalFilesystem("state.path", path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers; stage transactions are short.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
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
		`CREATE TABLE IF NOT EXISTS verification_job (
  id           TEXT PRIMARY KEY,
  submitted_at TEXT NOT NULL,
  importer     TEXT NOT NULL,
  xlsx_name    TEXT NOT NULL,
  xlsx_data    BLOB,
  md5_name     TEXT NOT NULL,
  md5_data     BLOB,
  fingerprint  TEXT NOT NULL,
  state        JSON NOT NULL DEFAULT '{}',
  updated_at   TEXT
);`,
		`CREATE TABLE IF NOT EXISTS stage_queue (
  id           TEXT PRIMARY KEY,
  job_id       TEXT NOT NULL REFERENCES verification_job(id),
  stage        TEXT NOT NULL,
  status       TEXT NOT NULL,
  attempt      INTEGER NOT NULL DEFAULT 1,
  created_at   TEXT NOT NULL,
  started_at   TEXT,
  completed_at TEXT,
  last_error   TEXT
);`,
		`CREATE INDEX IF NOT EXISTS stage_queue_status_created_at_idx ON stage_queue(status, created_at);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS stage_queue_job_stage_idx ON stage_queue(job_id, stage);`,
		`CREATE INDEX IF NOT EXISTS verification_job_fingerprint_idx ON verification_job(fingerprint);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
