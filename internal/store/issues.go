package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zlyuan/issuedash/internal/record"
)

// issueColumns is the SELECT list shared by every issue query, in the order
// scanIssue expects.
const issueColumns = `key, date, channel, source, reporter, problem, status, raw_status,
	description, detail, reply, result, content_hash, notes, created_at, updated_at`

// BatchStats summarizes what one reconciliation batch changed.
type BatchStats struct {
	Inserted  int
	Updated   int
	Unchanged int
	Pruned    int
}

// ApplyBatch reconciles a normalized snapshot against the store in a single
// transaction: new keys are inserted, keys whose content hash changed are
// updated, identical rows are left alone. The notes column is never written
// by the batch, so local annotations survive every sync.
//
// When prune is true, keys present in the store but absent from the
// snapshot are deleted. Prune is opt-in; the default policy is to leave
// rows that disappeared from the sheet untouched.
//
// Either the whole batch commits or none of it does.
func (st *Store) ApplyBatch(ctx context.Context, issues []*record.Issue, prune bool) (BatchStats, error) {
	var stats BatchStats

	tx, err := st.conn.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	selectHash, err := tx.PrepareContext(ctx, "SELECT content_hash FROM issues WHERE key = ?")
	if err != nil {
		return stats, fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer selectHash.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO issues (
			key, date, channel, source, reporter, problem, status, raw_status,
			description, detail, reply, result, content_hash, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return stats, fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer insert.Close()

	update, err := tx.PrepareContext(ctx, `
		UPDATE issues SET
			date = ?, channel = ?, source = ?, reporter = ?, problem = ?,
			status = ?, raw_status = ?, description = ?, detail = ?,
			reply = ?, result = ?, content_hash = ?, updated_at = ?
		WHERE key = ?`)
	if err != nil {
		return stats, fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer update.Close()

	snapshot := make(map[string]bool, len(issues))

	for _, iss := range issues {
		snapshot[iss.Key] = true
		date := iss.Date.Format(record.DateLayout)

		var existing string
		err := selectHash.QueryRowContext(ctx, iss.Key).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			if _, err := insert.ExecContext(ctx,
				iss.Key, date, iss.Channel, iss.Source, iss.Reporter, iss.Problem,
				string(iss.Status), iss.RawStatus, iss.Description, iss.Detail,
				iss.Reply, iss.Result, iss.ContentHash, now, now,
			); err != nil {
				return BatchStats{}, fmt.Errorf("failed to insert issue %s: %w", iss.Key, err)
			}
			stats.Inserted++

		case err != nil:
			return BatchStats{}, fmt.Errorf("failed to look up issue %s: %w", iss.Key, err)

		case existing == iss.ContentHash:
			stats.Unchanged++

		default:
			if _, err := update.ExecContext(ctx,
				date, iss.Channel, iss.Source, iss.Reporter, iss.Problem,
				string(iss.Status), iss.RawStatus, iss.Description, iss.Detail,
				iss.Reply, iss.Result, iss.ContentHash, now, iss.Key,
			); err != nil {
				return BatchStats{}, fmt.Errorf("failed to update issue %s: %w", iss.Key, err)
			}
			stats.Updated++
		}
	}

	if prune {
		rows, err := tx.QueryContext(ctx, "SELECT key FROM issues")
		if err != nil {
			return BatchStats{}, fmt.Errorf("failed to list keys for prune: %w", err)
		}
		var stale []string
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return BatchStats{}, fmt.Errorf("failed to scan key: %w", err)
			}
			if !snapshot[key] {
				stale = append(stale, key)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return BatchStats{}, fmt.Errorf("failed to list keys for prune: %w", err)
		}

		for _, key := range stale {
			if _, err := tx.ExecContext(ctx, "DELETE FROM issues WHERE key = ?", key); err != nil {
				return BatchStats{}, fmt.Errorf("failed to prune issue %s: %w", key, err)
			}
			stats.Pruned++
		}
	}

	if err := tx.Commit(); err != nil {
		return BatchStats{}, fmt.Errorf("failed to commit batch: %w", err)
	}

	return stats, nil
}

// Filter selects issues for Query. Zero values mean "any".
type Filter struct {
	From    time.Time
	To      time.Time
	Status  record.Status
	Problem string
	Channel string
	// Keyword matches case-insensitively as a substring of the
	// description and detail fields.
	Keyword string
	Limit   int
	Offset  int
}

// Query returns issues matching the filter, ordered by date ascending with
// the identity key as tiebreak, plus the total match count ignoring
// limit/offset.
func (st *Store) Query(ctx context.Context, f Filter) ([]*record.Issue, int, error) {
	var conditions []string
	var args []interface{}

	if !f.From.IsZero() {
		conditions = append(conditions, "date >= ?")
		args = append(args, f.From.Format(record.DateLayout))
	}
	if !f.To.IsZero() {
		conditions = append(conditions, "date <= ?")
		args = append(args, f.To.Format(record.DateLayout))
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Problem != "" {
		conditions = append(conditions, "problem = ?")
		args = append(args, f.Problem)
	}
	if f.Channel != "" {
		conditions = append(conditions, "channel = ?")
		args = append(args, f.Channel)
	}
	if f.Keyword != "" {
		conditions = append(conditions, "(instr(lower(description), lower(?)) > 0 OR instr(lower(detail), lower(?)) > 0)")
		args = append(args, f.Keyword, f.Keyword)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := st.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count issues: %w", err)
	}

	query := "SELECT " + issueColumns + " FROM issues" + where + " ORDER BY date ASC, key ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	} else if f.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET.
		query += " LIMIT -1"
	}
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := st.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	issues, err := scanIssues(rows)
	if err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

// GetIssue retrieves a single issue by identity key.
// Returns ErrNotFound if no issue has that key.
func (st *Store) GetIssue(ctx context.Context, key string) (*record.Issue, error) {
	row := st.conn.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE key = ?", key)

	iss, err := scanIssue(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", key, err)
	}
	return iss, nil
}

// SetNotes updates the local-only annotation of one issue. This is the only
// write path for the notes column; syncs never touch it.
// Returns ErrNotFound if the key does not exist.
func (st *Store) SetNotes(ctx context.Context, key, notes string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := st.conn.ExecContext(ctx,
		"UPDATE issues SET notes = ?, updated_at = ? WHERE key = ?", notes, now, key)
	if err != nil {
		return fmt.Errorf("failed to set notes for %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set notes for %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IssueCount returns the total number of issues in the store.
func (st *Store) IssueCount(ctx context.Context) (int, error) {
	var count int
	if err := st.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return count, nil
}

// Stats aggregates issue counts for the dashboard charts.
type Stats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByProblem  map[string]int `json:"by_problem"`
	ByChannel  map[string]int `json:"by_channel"`
	ByReporter map[string]int `json:"by_reporter"`
}

// Stats computes aggregate counts grouped by status, problem category,
// channel, and reporter.
func (st *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByStatus:   make(map[string]int),
		ByProblem:  make(map[string]int),
		ByChannel:  make(map[string]int),
		ByReporter: make(map[string]int),
	}

	if err := st.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count issues: %w", err)
	}

	groups := []struct {
		column string
		dest   map[string]int
	}{
		{"status", stats.ByStatus},
		{"problem", stats.ByProblem},
		{"channel", stats.ByChannel},
		{"reporter", stats.ByReporter},
	}
	for _, g := range groups {
		query := fmt.Sprintf(
			"SELECT %s, COUNT(*) FROM issues WHERE %s != '' GROUP BY %s", g.column, g.column, g.column)
		rows, err := st.conn.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate by %s: %w", g.column, err)
		}
		for rows.Next() {
			var value string
			var count int
			if err := rows.Scan(&value, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s aggregate: %w", g.column, err)
			}
			g.dest[value] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to aggregate by %s: %w", g.column, err)
		}
	}

	return stats, nil
}

// distinctColumns are the columns DistinctValues may be asked about.
// The column name is interpolated into SQL, so the whitelist is load-bearing.
var distinctColumns = map[string]bool{
	"channel":  true,
	"reporter": true,
	"problem":  true,
	"status":   true,
	"source":   true,
}

// DistinctValues returns the sorted distinct non-empty values of a column,
// for the dashboard's filter dropdowns.
func (st *Store) DistinctValues(ctx context.Context, column string) ([]string, error) {
	if !distinctColumns[column] {
		return nil, fmt.Errorf("column %q not allowed", column)
	}

	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM issues WHERE %s != '' ORDER BY %s", column, column, column)
	rows, err := st.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan distinct %s: %w", column, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query distinct %s: %w", column, err)
	}
	return values, nil
}

// scanIssues collects every row of an issue query.
func scanIssues(rows *sql.Rows) ([]*record.Issue, error) {
	var issues []*record.Issue
	for rows.Next() {
		iss, err := scanIssue(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issues: %w", err)
	}
	return issues, nil
}

// scanIssue scans one row in issueColumns order.
func scanIssue(scan func(...interface{}) error) (*record.Issue, error) {
	var iss record.Issue
	var date, status, createdAt, updatedAt string

	err := scan(
		&iss.Key, &date, &iss.Channel, &iss.Source, &iss.Reporter, &iss.Problem,
		&status, &iss.RawStatus, &iss.Description, &iss.Detail, &iss.Reply,
		&iss.Result, &iss.ContentHash, &iss.Notes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(record.DateLayout, date); err == nil {
		iss.Date = t
	}
	iss.Status = record.Status(status)

	return &iss, nil
}
