package sheet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleCSV = `Date,Channel / Chat,Owner,Category,Progress
06/01/2025,support,alice,login fails,Pending
06/02/2025,bugs,bob,export hangs,Done
`

func TestParseCSV(t *testing.T) {
	rows, err := parseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("parseCSV failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Index != 1 || rows[1].Index != 2 {
		t.Errorf("indexes = %d, %d, want 1-based", rows[0].Index, rows[1].Index)
	}
	if rows[0].Values["Owner"] != "alice" || rows[1].Values["Progress"] != "Done" {
		t.Errorf("values = %v", rows)
	}
}

func TestParseCSVShortRows(t *testing.T) {
	doc := "Date,Category,Progress\n06/01/2025,login fails\n"
	rows, err := parseCSV(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parseCSV failed: %v", err)
	}
	if got := rows[0].Values["Progress"]; got != "" {
		t.Errorf("missing cell = %q, want empty string", got)
	}
}

func TestParseCSVTrimsHeaders(t *testing.T) {
	doc := " Date , Category \n06/01/2025,login fails\n"
	rows, err := parseCSV(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parseCSV failed: %v", err)
	}
	if rows[0].Values["Date"] != "06/01/2025" {
		t.Errorf("values = %v, want trimmed header keys", rows[0].Values)
	}
}

func TestParseCSVEmptyDocument(t *testing.T) {
	_, err := parseCSV(strings.NewReader(""))
	fe, ok := AsFetchError(err)
	if !ok || fe.Kind != FetchFormat {
		t.Errorf("error = %v, want format FetchError", err)
	}
}

func TestHTTPSource(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer ts.Close()

	src := NewHTTPSource(ts.URL, time.Second)
	rows, err := src.FetchRows(context.Background())
	if err != nil {
		t.Fatalf("FetchRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}
}

func TestHTTPSourceErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		want   FetchErrorKind
	}{
		{http.StatusForbidden, FetchAuth},
		{http.StatusUnauthorized, FetchAuth},
		{http.StatusTooManyRequests, FetchRateLimit},
		{http.StatusInternalServerError, FetchNetwork},
	}
	for _, tt := range tests {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		src := NewHTTPSource(ts.URL, time.Second)
		_, err := src.FetchRows(context.Background())
		ts.Close()

		fe, ok := AsFetchError(err)
		if !ok || fe.Kind != tt.want {
			t.Errorf("status %d: error = %v, want kind %s", tt.status, err, tt.want)
		}
	}
}

func TestHTTPSourceUnreachable(t *testing.T) {
	src := NewHTTPSource("http://127.0.0.1:1/export.csv", 200*time.Millisecond)
	_, err := src.FetchRows(context.Background())
	fe, ok := AsFetchError(err)
	if !ok || fe.Kind != FetchNetwork {
		t.Errorf("error = %v, want network FetchError", err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0644); err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}

	src := NewFileSource(path)
	if src.Path() != path {
		t.Errorf("Path() = %q, want %q", src.Path(), path)
	}

	rows, err := src.FetchRows(context.Background())
	if err != nil {
		t.Fatalf("FetchRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}
}

func TestFileSourceMissing(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "missing.csv"))
	_, err := src.FetchRows(context.Background())
	fe, ok := AsFetchError(err)
	if !ok || fe.Kind != FetchNetwork {
		t.Errorf("error = %v, want network FetchError", err)
	}
}
