package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zlyuan/issuedash/internal/syncer"
)

// fakeRunner counts sync invocations and returns a canned result.
type fakeRunner struct {
	calls atomic.Int64
	err   error
}

func (f *fakeRunner) RunSync(ctx context.Context) (*syncer.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &syncer.Result{Outcome: syncer.OutcomeSuccess}, nil
}

func testConfig() *Config {
	return &Config{
		SyncInterval:     20 * time.Millisecond,
		DebounceInterval: 10 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	}
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, "", testConfig()); err == nil {
		t.Error("expected error for nil runner")
	}

	cfg := testConfig()
	cfg.SyncInterval = 0
	if _, err := New(&fakeRunner{}, "", cfg); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestDaemonSyncsOnStartAndInterval(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig()
	cfg.SyncOnStart = true

	d, err := New(runner, "", cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// One startup sync plus at least one tick.
	if !waitFor(t, time.Second, func() bool { return runner.calls.Load() >= 2 }) {
		t.Errorf("sync calls = %d, want at least 2", runner.calls.Load())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("daemon did not shut down")
	}
}

func TestDaemonSkipsSyncOnStart(t *testing.T) {
	runner := &fakeRunner{err: syncer.ErrSyncInProgress}
	cfg := testConfig()
	cfg.SyncInterval = time.Hour
	cfg.SyncOnStart = false

	d, err := New(runner, "", cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if n := runner.calls.Load(); n != 0 {
		t.Errorf("sync calls = %d, want 0 before first tick", n)
	}

	cancel()
	<-done
}

func TestDaemonSyncsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "issues.csv")
	if err := os.WriteFile(snapshot, []byte("Date,Category\n"), 0644); err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}

	runner := &fakeRunner{}
	cfg := testConfig()
	cfg.SyncInterval = time.Hour
	cfg.SyncOnStart = false

	d, err := New(runner, snapshot, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Let the watch get established, then touch the file.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(snapshot, []byte("Date,Category\n06/01/2025,login fails\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite snapshot: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return runner.calls.Load() >= 1 }) {
		t.Errorf("sync calls = %d, want at least 1 after file change", runner.calls.Load())
	}

	// A write to an unrelated file in the same directory must not trigger.
	before := runner.calls.Load()
	if err := os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x\n"), 0644); err != nil {
		t.Fatalf("failed to write unrelated file: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if runner.calls.Load() != before {
		t.Errorf("unrelated file triggered a sync")
	}

	cancel()
	<-done
}
