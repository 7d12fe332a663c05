// Package daemon runs scheduled synchronization in the background.
//
// The daemon:
// 1. Syncs on an interval (hourly by default)
// 2. Optionally watches a local CSV snapshot file and syncs on change
// 3. Handles graceful shutdown
//
// Every trigger path goes through the syncer's run lock, so an interval tick
// firing while a manual sync is in flight simply skips.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zlyuan/issuedash/internal/syncer"
)

// Runner triggers one sync run. *syncer.Syncer satisfies it; tests substitute
// a fake.
type Runner interface {
	RunSync(ctx context.Context) (*syncer.Result, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often a scheduled sync fires.
	SyncInterval time.Duration

	// DebounceInterval is how long a watched-file change must sit quiet
	// before it triggers a sync. Batches rapid editor saves together.
	DebounceInterval time.Duration

	// SyncOnStart runs an immediate sync before the schedule begins.
	SyncOnStart bool

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     time.Hour,
		DebounceInterval: 2 * time.Second,
		SyncOnStart:      true,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon schedules sync runs and optionally watches a snapshot file.
type Daemon struct {
	runner    Runner
	watchPath string
	config    *Config

	watcher   *fsnotify.Watcher
	changedAt time.Time
	changedMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. watchPath may be empty; when set it names a local
// CSV snapshot whose changes trigger an extra sync between scheduled ticks.
//
// Use Start() to begin.
func New(runner Runner, watchPath string, config *Config) (*Daemon, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive")
	}

	var watcher *fsnotify.Watcher
	if watchPath != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		runner:    runner,
		watchPath: watchPath,
		config:    config,
		watcher:   watcher,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins the daemon's operation. This blocks until ctx is cancelled or
// Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon (interval %s)", d.config.SyncInterval)

	if d.config.SyncOnStart {
		d.runSync("startup")
	}

	if d.watcher != nil {
		// Watch the directory, not the file: editors replace files by
		// rename, which drops a file-level watch.
		dir := filepath.Dir(d.watchPath)
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		d.config.Logger.Printf("Watching: %s", d.watchPath)

		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processDebounce()
	}

	d.wg.Add(1)
	go d.scheduleLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// scheduleLoop fires a sync on every interval tick.
func (d *Daemon) scheduleLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.runSync("schedule")
		}
	}
}

// watchFileEvents monitors filesystem events and stamps the debounce clock.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.watchPath) {
				continue
			}

			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.changedMu.Lock()
			d.changedAt = time.Now()
			d.changedMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processDebounce syncs once a change has been quiet long enough.
func (d *Daemon) processDebounce() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.changedMu.Lock()
			pending := !d.changedAt.IsZero() && time.Since(d.changedAt) >= d.config.DebounceInterval
			if pending {
				d.changedAt = time.Time{}
			}
			d.changedMu.Unlock()

			if pending {
				d.runSync("file change")
			}
		}
	}
}

// runSync executes one run, tolerating an already-running sync.
func (d *Daemon) runSync(trigger string) {
	res, err := d.runner.RunSync(d.ctx)
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		d.config.Logger.Printf("Sync (%s) skipped: another run in progress", trigger)
	case err != nil:
		d.config.Logger.Printf("Sync (%s) failed: %v", trigger, err)
	default:
		d.config.Logger.Printf("Sync (%s): %s, %d fetched", trigger, res.Outcome, res.Fetched)
	}
}
