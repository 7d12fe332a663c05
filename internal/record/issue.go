// Package record converts raw spreadsheet rows into typed issue records.
//
// The issue log lives in a shared spreadsheet with no real primary key, so
// identity is derived deterministically from a fixed subset of fields
// (date, channel, reporter, description). Two rows that agree on those
// fields are the same logical issue regardless of what the other columns
// say; non-key fields are last-write-wins on sync.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Status is the closed set of progress states an issue can be in.
// Free-text spreadsheet values are folded into this set by NormalizeStatus;
// anything unrecognized becomes StatusOther rather than failing the row.
type Status string

const (
	StatusDone       Status = "done"
	StatusInProgress Status = "in_progress"
	StatusPending    Status = "pending"
	StatusBlocked    Status = "blocked"
	StatusOther      Status = "other"
)

// Statuses lists every valid Status, in display order.
var Statuses = []Status{StatusDone, StatusInProgress, StatusPending, StatusBlocked, StatusOther}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDone, StatusInProgress, StatusPending, StatusBlocked, StatusOther:
		return true
	}
	return false
}

// statusAliases maps lowercased spreadsheet progress values to canonical
// statuses. The spreadsheet has accumulated every capitalization of these
// over time, so matching is case-insensitive.
var statusAliases = map[string]Status{
	"done":        StatusDone,
	"in progress": StatusInProgress,
	"in_progress": StatusInProgress,
	"in-progress": StatusInProgress,
	"pending":     StatusPending,
	"block":       StatusBlocked,
	"blocked":     StatusBlocked,
}

// NormalizeStatus folds a raw progress value into the closed Status set.
// Unrecognized values map to StatusOther; the raw text is preserved on the
// record so nothing is lost.
func NormalizeStatus(raw string) Status {
	if s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusOther
}

// Issue is one normalized row of the issue log.
//
// All fields except Notes are sourced from the spreadsheet and are freely
// overwritten on sync. Notes is local-only: it is edited through the
// dashboard or CLI and must never be touched by a sync.
type Issue struct {
	// Key is the deterministic identity, stable across re-syncs of an
	// unchanged row. See ComputeKey.
	Key string

	Date        time.Time
	Channel     string
	Source      string // where the issue was originally reported
	Reporter    string
	Problem     string // problem category (closed-ish set maintained upstream)
	Status      Status
	RawStatus   string // spreadsheet progress text before normalization
	Description string // short issue description, part of the identity
	Detail      string // free-text body of the issue
	Reply       string
	Result      string

	// ContentHash covers every remote-sourced field. Reconciliation
	// compares hashes to decide whether an upsert is a real change,
	// which is what makes a repeated sync of an unchanged snapshot a
	// no-op.
	ContentHash string

	// Notes is the local-only annotation, never sourced from the sheet.
	Notes string
}

// DateLayout is the canonical date representation used in the store and API.
const DateLayout = "2006-01-02"

// dateLayouts are the formats seen in the spreadsheet, tried in order.
var dateLayouts = []string{
	"01/02/2006",
	"2006-01-02",
	"01/02/06",
	"02/01/2006",
}

// ParseDate parses a spreadsheet date value, trying each known layout.
// Returns a zero time and false if none match.
func ParseDate(raw string) (time.Time, bool) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ComputeKey derives the identity key from the fixed key-field subset.
// The key is the hex SHA-256 of "date|channel|reporter|description" with
// each part trimmed and the date canonicalized, so unchanged rows hash
// identically on every sync.
func ComputeKey(date time.Time, channel, reporter, description string) string {
	parts := []string{
		date.Format(DateLayout),
		strings.TrimSpace(channel),
		strings.TrimSpace(reporter),
		strings.TrimSpace(description),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// computeContentHash hashes every remote-sourced field of the issue.
// Notes is deliberately excluded: local annotations must not make a record
// look remotely changed.
func computeContentHash(iss *Issue) string {
	parts := []string{
		iss.Date.Format(DateLayout),
		iss.Channel,
		iss.Source,
		iss.Reporter,
		iss.Problem,
		string(iss.Status),
		iss.RawStatus,
		iss.Description,
		iss.Detail,
		iss.Reply,
		iss.Result,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Finalize recomputes Key and ContentHash from the current field values.
// Call after any mutation of remote-sourced fields.
func (iss *Issue) Finalize() {
	iss.Key = ComputeKey(iss.Date, iss.Channel, iss.Reporter, iss.Description)
	iss.ContentHash = computeContentHash(iss)
}
