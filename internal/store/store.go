// Package store provides the local SQLite database for issue records and
// sync run metadata.
//
// The database is a single file opened in WAL mode so dashboard reads can
// run concurrently with a sync. Writers serialize around the reconciliation
// batch: ApplyBatch commits the whole batch in one transaction or none of
// it, so a reader never observes a half-applied sync.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a lookup by identity key matches nothing.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite connection with issue-log specific operations.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the database at the specified path and brings the
// schema up to the current version.
//
// Migration failure is fatal: Open returns an error and the store must not
// be used. The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open("data/issues.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{conn: conn, path: path}

	// WAL keeps dashboard reads open while a sync batch commits.
	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := st.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := st.migrate(context.Background()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return st, nil
}

// Path returns the database file path.
func (st *Store) Path() string { return st.path }

// Close closes the database connection, checkpointing the WAL first.
func (st *Store) Close() error {
	if st.conn == nil {
		return nil
	}

	if _, err := st.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := st.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	st.conn = nil
	return nil
}
