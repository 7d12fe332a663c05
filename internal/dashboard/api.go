package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/zlyuan/issuedash/internal/record"
	"github.com/zlyuan/issuedash/internal/store"
	"github.com/zlyuan/issuedash/internal/syncer"
)

// IssueStore is the slice of the store the API needs. *store.Store
// satisfies it.
type IssueStore interface {
	Query(ctx context.Context, f store.Filter) ([]*record.Issue, int, error)
	GetIssue(ctx context.Context, key string) (*record.Issue, error)
	SetNotes(ctx context.Context, key, notes string) error
	Stats(ctx context.Context) (*store.Stats, error)
	DistinctValues(ctx context.Context, column string) ([]string, error)
	LastSyncRun(ctx context.Context) (*store.RunRecord, error)
	ListSyncRuns(ctx context.Context, limit int) ([]*store.RunRecord, error)
}

// SyncRunner triggers a sync run on demand.
type SyncRunner interface {
	RunSync(ctx context.Context) (*syncer.Result, error)
}

// notifyingRunner broadcasts every run's outcome to connected clients, so
// scheduled and manual syncs alike refresh open dashboards.
type notifyingRunner struct {
	inner  SyncRunner
	server *Server
}

func (n *notifyingRunner) RunSync(ctx context.Context) (*syncer.Result, error) {
	res, err := n.inner.RunSync(ctx)
	if errors.Is(err, syncer.ErrSyncInProgress) {
		return res, err
	}
	if err != nil {
		payload := map[string]string{"error": err.Error()}
		if res != nil {
			payload["run_id"] = res.RunID
			payload["outcome"] = res.Outcome
		}
		n.server.broadcastJSON(MessageTypeSyncFailed, payload)
		return res, err
	}

	n.server.broadcastJSON(MessageTypeSyncComplete, res)
	if stats, statsErr := n.server.store.Stats(ctx); statsErr == nil {
		n.server.broadcastJSON(MessageTypeStats, stats)
	}
	return res, nil
}

const (
	defaultPageSize = 200
	maxPageSize     = 1000
)

// issueJSON is the wire shape of one issue.
type issueJSON struct {
	Key         string `json:"key"`
	Date        string `json:"date"`
	Channel     string `json:"channel,omitempty"`
	Source      string `json:"source,omitempty"`
	Reporter    string `json:"reporter,omitempty"`
	Problem     string `json:"problem,omitempty"`
	Status      string `json:"status"`
	RawStatus   string `json:"raw_status,omitempty"`
	Description string `json:"description"`
	Detail      string `json:"detail,omitempty"`
	Reply       string `json:"reply,omitempty"`
	Result      string `json:"result,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

func toIssueJSON(iss *record.Issue) issueJSON {
	return issueJSON{
		Key:         iss.Key,
		Date:        iss.Date.Format(record.DateLayout),
		Channel:     iss.Channel,
		Source:      iss.Source,
		Reporter:    iss.Reporter,
		Problem:     iss.Problem,
		Status:      string(iss.Status),
		RawStatus:   iss.RawStatus,
		Description: iss.Description,
		Detail:      iss.Detail,
		Reply:       iss.Reply,
		Result:      iss.Result,
		Notes:       iss.Notes,
	}
}

// handleListIssues serves GET /api/issues with filter query parameters.
func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{
		Problem: q.Get("problem"),
		Channel: q.Get("channel"),
		Keyword: q.Get("q"),
		Limit:   defaultPageSize,
	}

	if raw := q.Get("status"); raw != "" {
		status := record.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status %q", raw)
			return
		}
		f.Status = status
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(record.DateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date %q, want YYYY-MM-DD", raw)
			return
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(record.DateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date %q, want YYYY-MM-DD", raw)
			return
		}
		f.To = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit %q", raw)
			return
		}
		f.Limit = min(n, maxPageSize)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset %q", raw)
			return
		}
		f.Offset = n
	}

	issues, total, err := s.store.Query(r.Context(), f)
	if err != nil {
		s.logger.Printf("Query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	out := make([]issueJSON, 0, len(issues))
	for _, iss := range issues {
		out = append(out, toIssueJSON(iss))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issues": out,
		"total":  total,
	})
}

// handleGetIssue serves GET /api/issues/{key}.
func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	iss, err := s.store.GetIssue(r.Context(), r.PathValue("key"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "issue not found")
		return
	}
	if err != nil {
		s.logger.Printf("GetIssue failed: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, toIssueJSON(iss))
}

// handleSetNotes serves PATCH /api/issues/{key}/notes with a {"notes": ...}
// body.
func (s *Server) handleSetNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	key := r.PathValue("key")
	err := s.store.SetNotes(r.Context(), key, body.Notes)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "issue not found")
		return
	}
	if err != nil {
		s.logger.Printf("SetNotes failed: %v", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	s.broadcastJSON(MessageTypeIssueUpdate, map[string]string{
		"key":   key,
		"notes": body.Notes,
	})
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "notes": body.Notes})
}

// handleStats serves GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Printf("Stats failed: %v", err)
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleFilters serves GET /api/filters: the distinct values backing the
// dashboard's filter dropdowns.
func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]string, 5)
	for _, column := range []string{"channel", "reporter", "problem", "source"} {
		values, err := s.store.DistinctValues(r.Context(), column)
		if err != nil {
			s.logger.Printf("DistinctValues(%s) failed: %v", column, err)
			writeError(w, http.StatusInternalServerError, "filters failed")
			return
		}
		if values == nil {
			values = []string{}
		}
		out[column+"s"] = values
	}

	statuses := make([]string, 0, len(record.Statuses))
	for _, st := range record.Statuses {
		statuses = append(statuses, string(st))
	}
	out["statuses"] = statuses

	writeJSON(w, http.StatusOK, out)
}

// handleLastSync serves GET /api/sync/last.
func (s *Server) handleLastSync(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.LastSyncRun(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no sync has run yet")
		return
	}
	if err != nil {
		s.logger.Printf("LastSyncRun failed: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleListRuns serves GET /api/sync/runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit %q", raw)
			return
		}
		limit = n
	}

	runs, err := s.store.ListSyncRuns(r.Context(), limit)
	if err != nil {
		s.logger.Printf("ListSyncRuns failed: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleTriggerSync serves POST /api/sync: a manual run through the same
// lock as the schedule. Responds 409 when a run is already in flight.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.runner.RunSync(r.Context())
	if errors.Is(err, syncer.ErrSyncInProgress) {
		writeError(w, http.StatusConflict, "sync already in progress")
		return
	}
	if err != nil {
		s.logger.Printf("Manual sync failed: %v", err)
		writeError(w, http.StatusBadGateway, "sync failed: %v", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{
		"error": fmt.Sprintf(format, args...),
	})
}
