package syncer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/flock"
)

// ErrSyncInProgress is returned when a sync is requested while another one
// holds the run lock.
var ErrSyncInProgress = errors.New("sync already in progress")

// Coordinator serializes sync runs. Scheduled ticks, file-watch triggers,
// and manual requests from the CLI or dashboard all go through the same
// single-slot lock, so at most one run mutates the store at a time.
//
// When constructed with a lock path the slot is also backed by an advisory
// file lock, which extends the guarantee across processes (a one-shot
// `issuedash sync` cannot race the daemon).
type Coordinator struct {
	mu   sync.Mutex
	busy bool

	fileLock *flock.Flock
}

// NewCoordinator creates a coordinator. lockPath may be empty, in which case
// only in-process exclusion applies.
func NewCoordinator(lockPath string) *Coordinator {
	c := &Coordinator{}
	if lockPath != "" {
		c.fileLock = flock.New(lockPath)
	}
	return c
}

// TryAcquire claims the run slot without blocking. Returns ErrSyncInProgress
// if another run holds it (in this process or, with a lock path, any other).
func (c *Coordinator) TryAcquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return ErrSyncInProgress
	}

	if c.fileLock != nil {
		locked, err := c.fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire sync lock file: %w", err)
		}
		if !locked {
			return ErrSyncInProgress
		}
	}

	c.busy = true
	return nil
}

// Release frees the run slot. Safe to call only after a successful
// TryAcquire.
func (c *Coordinator) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fileLock != nil {
		_ = c.fileLock.Unlock()
	}
	c.busy = false
}

// InProgress reports whether a run currently holds the slot.
func (c *Coordinator) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}
