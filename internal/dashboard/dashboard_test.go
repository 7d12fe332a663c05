package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/zlyuan/issuedash/internal/record"
	"github.com/zlyuan/issuedash/internal/store"
	"github.com/zlyuan/issuedash/internal/syncer"
)

// fakeRunner returns a canned sync result or error.
type fakeRunner struct {
	res *syncer.Result
	err error
}

func (f *fakeRunner) RunSync(ctx context.Context) (*syncer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func testServer(t *testing.T, runner SyncRunner) (*Server, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "issues.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if runner == nil {
		runner = &fakeRunner{res: &syncer.Result{Outcome: syncer.OutcomeSuccess}}
	}
	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	return NewServer(st, runner, cfg), st
}

func seedIssues(t *testing.T, st *store.Store) []*record.Issue {
	t.Helper()

	issues := []*record.Issue{
		{
			Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Channel:     "support",
			Reporter:    "alice",
			Problem:     "billing",
			Status:      record.StatusPending,
			Description: "login fails",
		},
		{
			Date:        time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
			Channel:     "bugs",
			Reporter:    "bob",
			Problem:     "performance",
			Status:      record.StatusDone,
			Description: "export hangs",
		},
	}
	for _, iss := range issues {
		iss.Finalize()
	}
	if _, err := st.ApplyBatch(context.Background(), issues, false); err != nil {
		t.Fatalf("failed to seed issues: %v", err)
	}
	return issues
}

func doRequest(t *testing.T, h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestListIssues(t *testing.T) {
	s, st := testServer(t, nil)
	seedIssues(t, st)
	h := s.Handler()

	tests := []struct {
		name string
		path string
		want int
	}{
		{"all", "/api/issues", 2},
		{"by status", "/api/issues?status=done", 1},
		{"by channel", "/api/issues?channel=support", 1},
		{"by problem", "/api/issues?problem=performance", 1},
		{"date range", "/api/issues?from=2025-06-02&to=2025-06-30", 1},
		{"keyword", "/api/issues?q=export", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, "GET", tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			var body struct {
				Issues []issueJSON `json:"issues"`
				Total  int         `json:"total"`
			}
			decodeBody(t, rec, &body)
			if len(body.Issues) != tt.want || body.Total != tt.want {
				t.Errorf("got %d issues (total %d), want %d", len(body.Issues), body.Total, tt.want)
			}
		})
	}
}

func TestListIssuesBadParams(t *testing.T) {
	s, _ := testServer(t, nil)
	h := s.Handler()

	for _, path := range []string{
		"/api/issues?status=bogus",
		"/api/issues?from=06/01/2025",
		"/api/issues?limit=zero",
		"/api/issues?offset=-1",
	} {
		rec := doRequest(t, h, "GET", path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestGetIssue(t *testing.T) {
	s, st := testServer(t, nil)
	issues := seedIssues(t, st)
	h := s.Handler()

	rec := doRequest(t, h, "GET", "/api/issues/"+issues[0].Key, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got issueJSON
	decodeBody(t, rec, &got)
	if got.Key != issues[0].Key || got.Description != "login fails" {
		t.Errorf("got %+v, want seeded issue", got)
	}
	if got.Date != "2025-06-01" {
		t.Errorf("date = %q, want 2025-06-01", got.Date)
	}

	rec = doRequest(t, h, "GET", "/api/issues/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing key status = %d, want 404", rec.Code)
	}
}

func TestSetNotes(t *testing.T) {
	s, st := testServer(t, nil)
	issues := seedIssues(t, st)
	h := s.Handler()

	rec := doRequest(t, h, "PATCH", "/api/issues/"+issues[0].Key+"/notes", `{"notes":"escalated"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	got, err := st.GetIssue(context.Background(), issues[0].Key)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got.Notes != "escalated" {
		t.Errorf("notes = %q, want escalated", got.Notes)
	}

	rec = doRequest(t, h, "PATCH", "/api/issues/nope/notes", `{"notes":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing key status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, h, "PATCH", "/api/issues/"+issues[0].Key+"/notes", `{bad json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, st := testServer(t, nil)
	seedIssues(t, st)

	rec := doRequest(t, s.Handler(), "GET", "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats store.Stats
	decodeBody(t, rec, &stats)
	if stats.Total != 2 || stats.ByStatus["pending"] != 1 || stats.ByStatus["done"] != 1 {
		t.Errorf("stats = %+v, want totals from seed data", stats)
	}
}

func TestFiltersEndpoint(t *testing.T) {
	s, st := testServer(t, nil)
	seedIssues(t, st)

	rec := doRequest(t, s.Handler(), "GET", "/api/filters", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var filters map[string][]string
	decodeBody(t, rec, &filters)
	if len(filters["channels"]) != 2 {
		t.Errorf("channels = %v, want 2 values", filters["channels"])
	}
	if len(filters["statuses"]) != len(record.Statuses) {
		t.Errorf("statuses = %v, want every known status", filters["statuses"])
	}
}

func TestTriggerSync(t *testing.T) {
	runner := &fakeRunner{res: &syncer.Result{
		RunID:   "run-1",
		Outcome: syncer.OutcomeSuccess,
		Fetched: 5,
	}}
	s, _ := testServer(t, runner)

	rec := doRequest(t, s.Handler(), "POST", "/api/sync", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res syncer.Result
	decodeBody(t, rec, &res)
	if res.RunID != "run-1" || res.Fetched != 5 {
		t.Errorf("result = %+v, want runner result echoed", res)
	}
}

func TestTriggerSyncConflict(t *testing.T) {
	s, _ := testServer(t, &fakeRunner{err: syncer.ErrSyncInProgress})

	rec := doRequest(t, s.Handler(), "POST", "/api/sync", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 while sync in progress", rec.Code)
	}
}

func TestTriggerSyncFailure(t *testing.T) {
	s, _ := testServer(t, &fakeRunner{err: errors.New("sheet unreachable")})

	rec := doRequest(t, s.Handler(), "POST", "/api/sync", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 on sync failure", rec.Code)
	}
}

func TestLastSyncEndpoint(t *testing.T) {
	s, st := testServer(t, nil)
	h := s.Handler()

	rec := doRequest(t, h, "GET", "/api/sync/last", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status before any run = %d, want 404", rec.Code)
	}

	run := &store.RunRecord{
		ID:        "run-1",
		StartedAt: time.Now().UTC(),
		Outcome:   "success",
	}
	if err := st.RecordSyncRun(context.Background(), run); err != nil {
		t.Fatalf("RecordSyncRun failed: %v", err)
	}

	rec = doRequest(t, h, "GET", "/api/sync/last", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got store.RunRecord
	decodeBody(t, rec, &got)
	if got.ID != "run-1" {
		t.Errorf("run = %+v, want run-1", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s.Handler(), "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s, want ok status", rec.Body.String())
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	s, _ := testServer(t, nil)

	// Drive the broadcast loop without binding a real port.
	s.wg.Add(1)
	go s.broadcastLoop()
	defer s.Stop()

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the server to register the client before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", s.ClientCount())
	}

	s.broadcastJSON(MessageTypeSyncComplete, map[string]string{"run_id": "run-1"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode broadcast %q: %v", data, err)
	}
	if msg.Type != MessageTypeSyncComplete {
		t.Errorf("message type = %q, want sync_complete", msg.Type)
	}
	if !strings.Contains(string(msg.Data), "run-1") {
		t.Errorf("message data = %s, want run id", msg.Data)
	}
}
