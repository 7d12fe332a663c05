package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one idempotent schema step. Steps run in order inside their
// own transaction; the recorded version advances only after the step
// commits, so a crashed migration re-runs cleanly on the next Open.
type migration struct {
	version int
	name    string
	stmts   string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create issues and sync_runs",
		stmts: `
		CREATE TABLE IF NOT EXISTS issues (
			key TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			reporter TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'other',
			raw_status TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			reply TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL,

			-- Local-only projection: edited through the dashboard/CLI,
			-- never written by a sync.
			notes TEXT NOT NULL DEFAULT '',

			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_issues_date ON issues(date);
		CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
		CREATE INDEX IF NOT EXISTS idx_issues_channel ON issues(channel);
		CREATE INDEX IF NOT EXISTS idx_issues_reporter ON issues(reporter);

		CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			outcome TEXT NOT NULL,
			rows_fetched INTEGER NOT NULL DEFAULT 0,
			rows_inserted INTEGER NOT NULL DEFAULT 0,
			rows_updated INTEGER NOT NULL DEFAULT 0,
			rows_unchanged INTEGER NOT NULL DEFAULT 0,
			rows_pruned INTEGER NOT NULL DEFAULT 0,
			rejections INTEGER NOT NULL DEFAULT 0,
			suspicious INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
		`,
	},
	{
		// The problem category column arrived after the first sheet
		// layout; older databases gain it here.
		version: 2,
		name:    "add problem category",
		stmts: `
		ALTER TABLE issues ADD COLUMN problem TEXT NOT NULL DEFAULT '';
		CREATE INDEX IF NOT EXISTS idx_issues_problem ON issues(problem);
		`,
	},
}

// migrate brings the schema up to the latest version. Already-applied steps
// are skipped; a failing step rolls back and surfaces the error.
func (st *Store) migrate(ctx context.Context) error {
	if _, err := st.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := st.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := st.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx, m.stmts); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

// SchemaVersion returns the store's current schema version (0 for a fresh
// database).
func (st *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := st.conn.QueryRowContext(ctx, "SELECT version FROM schema_version").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
