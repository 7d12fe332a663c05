package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunRecord is one sync attempt's metadata. Rows are append-only: a run is
// written once when it finishes and never mutated, so the dashboard's
// "last synced" display is always a faithful history.
type RunRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Outcome is success, partial, or failed.
	Outcome       string `json:"outcome"`
	RowsFetched   int    `json:"rows_fetched"`
	RowsInserted  int    `json:"rows_inserted"`
	RowsUpdated   int    `json:"rows_updated"`
	RowsUnchanged int    `json:"rows_unchanged"`
	RowsPruned    int    `json:"rows_pruned"`
	Rejections    int    `json:"rejections"`
	// Suspicious marks a run whose snapshot came back empty while the
	// store still held rows: most likely a transient source outage,
	// not a mass deletion.
	Suspicious bool   `json:"suspicious"`
	Error      string `json:"error,omitempty"`
}

// RecordSyncRun appends one run record.
func (st *Store) RecordSyncRun(ctx context.Context, run *RunRecord) error {
	suspicious := 0
	if run.Suspicious {
		suspicious = 1
	}

	_, err := st.conn.ExecContext(ctx, `
		INSERT INTO sync_runs (
			id, started_at, finished_at, outcome, rows_fetched, rows_inserted,
			rows_updated, rows_unchanged, rows_pruned, rejections, suspicious, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
		run.Outcome,
		run.RowsFetched,
		run.RowsInserted,
		run.RowsUpdated,
		run.RowsUnchanged,
		run.RowsPruned,
		run.Rejections,
		suspicious,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// LastSyncRun returns the most recent run record, or ErrNotFound if no sync
// has ever run.
func (st *Store) LastSyncRun(ctx context.Context) (*RunRecord, error) {
	row := st.conn.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, outcome, rows_fetched, rows_inserted,
		       rows_updated, rows_unchanged, rows_pruned, rejections, suspicious, error
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT 1`)

	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync run: %w", err)
	}
	return run, nil
}

// ListSyncRuns returns up to limit run records, newest first.
func (st *Store) ListSyncRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := st.conn.QueryContext(ctx, `
		SELECT id, started_at, finished_at, outcome, rows_fetched, rows_inserted,
		       rows_updated, rows_unchanged, rows_pruned, rejections, suspicious, error
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}

// PruneSyncRuns deletes all but the newest keep run records.
func (st *Store) PruneSyncRuns(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}

	_, err := st.conn.ExecContext(ctx, `
		DELETE FROM sync_runs WHERE id NOT IN (
			SELECT id FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune sync runs: %w", err)
	}
	return nil
}

func scanRun(scan func(...interface{}) error) (*RunRecord, error) {
	var run RunRecord
	var startedAt, finishedAt string
	var suspicious int

	err := scan(
		&run.ID, &startedAt, &finishedAt, &run.Outcome, &run.RowsFetched,
		&run.RowsInserted, &run.RowsUpdated, &run.RowsUnchanged, &run.RowsPruned,
		&run.Rejections, &suspicious, &run.Error,
	)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339, finishedAt); err == nil {
		run.FinishedAt = t
	}
	run.Suspicious = suspicious != 0

	return &run, nil
}
