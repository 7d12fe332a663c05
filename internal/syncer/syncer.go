// Package syncer orchestrates one-shot and scheduled synchronization of the
// remote issue sheet into the local store.
//
// A sync is a full-snapshot reconciliation: fetch every row, normalize,
// apply the batch transactionally, record a run. The source is never
// trusted blindly: a fetch failure aborts before any store mutation, and a
// snapshot that comes back empty against a non-empty store is treated as a
// source anomaly rather than a mass deletion.
package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zlyuan/issuedash/internal/record"
	"github.com/zlyuan/issuedash/internal/sheet"
	"github.com/zlyuan/issuedash/internal/store"
)

// Outcome classifies how a run ended.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Options tunes orchestrator behavior.
type Options struct {
	// Prune deletes store rows absent from the snapshot. Off by default:
	// rows that vanish from the sheet are kept until prune is requested
	// explicitly.
	Prune bool

	// FetchTimeout bounds a single fetch attempt.
	FetchTimeout time.Duration

	// MaxRetries is the number of fetch attempts for transient failures.
	MaxRetries int

	// RetryBaseDelay is the first backoff interval; it doubles per attempt.
	RetryBaseDelay time.Duration

	// RunRetention is how many sync run records to keep. 0 keeps all.
	RunRetention int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		FetchTimeout:   60 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 2 * time.Second,
		RunRetention:   500,
	}
}

// Result summarizes one sync run for callers; the same numbers land in the
// store's run history.
type Result struct {
	RunID      string             `json:"run_id"`
	Outcome    string             `json:"outcome"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Fetched    int                `json:"fetched"`
	Inserted   int                `json:"inserted"`
	Updated    int                `json:"updated"`
	Unchanged  int                `json:"unchanged"`
	Pruned     int                `json:"pruned"`
	Rejections []record.Rejection `json:"rejections,omitempty"`
	Suspicious bool               `json:"suspicious"`
	Err        error              `json:"-"`
}

// Syncer runs the fetch/normalize/reconcile pipeline.
type Syncer struct {
	store  *store.Store
	source sheet.Source
	norm   *record.Normalizer
	coord  *Coordinator
	opts   Options
	logger *log.Logger
}

// New creates a syncer. The coordinator is shared with whatever else can
// trigger runs (daemon schedule, dashboard button); pass the same instance
// everywhere.
func New(st *store.Store, source sheet.Source, norm *record.Normalizer, coord *Coordinator, opts Options, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultOptions().FetchTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultOptions().RetryBaseDelay
	}
	return &Syncer{
		store:  st,
		source: source,
		norm:   norm,
		coord:  coord,
		opts:   opts,
		logger: logger,
	}
}

// Coordinator returns the run lock shared by every trigger path.
func (s *Syncer) Coordinator() *Coordinator { return s.coord }

// RunSync executes one full sync. It returns ErrSyncInProgress without doing
// anything if another run holds the lock. Any other failure is recorded as a
// failed run in the store and also returned.
func (s *Syncer) RunSync(ctx context.Context) (*Result, error) {
	if err := s.coord.TryAcquire(); err != nil {
		return nil, err
	}
	defer s.coord.Release()

	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	s.logger.Printf("sync %s: starting", res.RunID)

	rows, err := s.fetchWithRetry(ctx)
	if err != nil {
		// Fail fast: nothing in the store has been touched.
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("fetch failed: %w", err)
		s.finish(ctx, res)
		return res, res.Err
	}
	res.Fetched = len(rows)

	issues, rejections := s.norm.NormalizeAll(rows)
	res.Rejections = rejections
	for _, rej := range rejections {
		s.logger.Printf("sync %s: rejected %s", res.RunID, rej)
	}

	if len(rows) == 0 {
		existing, err := s.store.IssueCount(ctx)
		if err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			s.finish(ctx, res)
			return res, res.Err
		}
		if existing > 0 {
			// An empty snapshot against a populated store smells like a
			// source outage. Flag it and leave the store alone.
			s.logger.Printf("sync %s: empty snapshot with %d stored issues, skipping apply", res.RunID, existing)
			res.Suspicious = true
			res.Outcome = OutcomePartial
			s.finish(ctx, res)
			return res, nil
		}
	}

	stats, err := s.store.ApplyBatch(ctx, issues, s.opts.Prune)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("apply failed: %w", err)
		s.finish(ctx, res)
		return res, res.Err
	}
	res.Inserted = stats.Inserted
	res.Updated = stats.Updated
	res.Unchanged = stats.Unchanged
	res.Pruned = stats.Pruned

	if len(rejections) > 0 {
		res.Outcome = OutcomePartial
	} else {
		res.Outcome = OutcomeSuccess
	}
	s.finish(ctx, res)

	s.logger.Printf("sync %s: %s (fetched=%d inserted=%d updated=%d unchanged=%d pruned=%d rejected=%d)",
		res.RunID, res.Outcome, res.Fetched, res.Inserted, res.Updated, res.Unchanged, res.Pruned, len(res.Rejections))
	return res, nil
}

// fetchWithRetry fetches the snapshot, retrying transient failures with
// exponential backoff. Auth and format errors are permanent and returned
// immediately.
func (s *Syncer) fetchWithRetry(ctx context.Context) ([]sheet.Row, error) {
	var lastErr error

	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		rows, err := s.source.FetchRows(fetchCtx)
		cancel()
		if err == nil {
			return rows, nil
		}
		lastErr = err

		if fe, ok := sheet.AsFetchError(err); ok {
			if fe.Kind == sheet.FetchAuth || fe.Kind == sheet.FetchFormat {
				return nil, err
			}
		}

		if attempt == s.opts.MaxRetries {
			break
		}
		delay := s.opts.RetryBaseDelay << (attempt - 1)
		s.logger.Printf("fetch attempt %d/%d failed (%v), retrying in %s", attempt, s.opts.MaxRetries, err, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("all %d fetch attempts failed: %w", s.opts.MaxRetries, lastErr)
}

// finish stamps the result and appends it to the run history. Recording is
// best-effort: a history write failure is logged, not surfaced, so it cannot
// mask the run's real outcome.
func (s *Syncer) finish(ctx context.Context, res *Result) {
	res.FinishedAt = time.Now().UTC()

	run := &store.RunRecord{
		ID:            res.RunID,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
		Outcome:       res.Outcome,
		RowsFetched:   res.Fetched,
		RowsInserted:  res.Inserted,
		RowsUpdated:   res.Updated,
		RowsUnchanged: res.Unchanged,
		RowsPruned:    res.Pruned,
		Rejections:    len(res.Rejections),
		Suspicious:    res.Suspicious,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}

	if err := s.store.RecordSyncRun(ctx, run); err != nil {
		s.logger.Printf("sync %s: failed to record run: %v", res.RunID, err)
		return
	}
	if s.opts.RunRetention > 0 {
		if err := s.store.PruneSyncRuns(ctx, s.opts.RunRetention); err != nil {
			s.logger.Printf("sync %s: failed to prune run history: %v", res.RunID, err)
		}
	}
}
