package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/index"
)

// Reindexer runs an index pass. *index.Indexer implements it.
type Reindexer interface {
	Run(ctx context.Context, mode index.Mode) (*index.Result, error)
}

// Batch reports one debounced reindex.
type Batch struct {
	Events []FileEvent
	Result *index.Result
	Err    error
}

// lockRetries bounds how often a batch waits out another indexer's lock.
const lockRetries = 3

// Runner performs an incremental reindex for every batch a Watcher emits.
type Runner struct {
	watcher *Watcher
	indexer Reindexer
	onBatch func(Batch)
}

// NewRunner creates a runner.
func NewRunner(w *Watcher, ix Reindexer) *Runner {
	return &Runner{watcher: w, indexer: ix}
}

// OnBatch registers a callback invoked after each reindex attempt.
func (r *Runner) OnBatch(fn func(Batch)) {
	r.onBatch = fn
}

// Run blocks until ctx is done, the watcher stops or the watcher fails to
// start. Reindex failures are reported and watching continues.
func (r *Runner) Run(ctx context.Context) error {
	startErr := make(chan error, 1)
	go func() { startErr <- r.watcher.Start(ctx) }()

	slog.Info("watch_started",
		slog.String("root", r.watcher.Root()),
		slog.String("mode", r.watcher.Mode()))

	for {
		select {
		case <-ctx.Done():
			_ = r.watcher.Stop()
			return nil
		case err := <-startErr:
			_ = r.watcher.Stop()
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		case err := <-r.watcher.Errors():
			slog.Warn("watch_error", slog.String("error", err.Error()))
		case events, ok := <-r.watcher.Events():
			if !ok {
				return nil
			}
			r.reindex(ctx, events)
		}
	}
}

func (r *Runner) reindex(ctx context.Context, events []FileEvent) {
	for _, e := range events {
		if e.Operation == OpConfigChange {
			slog.Warn("config_changed_restart_required", slog.String("path", e.Path))
		}
	}

	var (
		result *index.Result
		err    error
	)
	for attempt := 0; attempt <= lockRetries; attempt++ {
		result, err = r.indexer.Run(ctx, index.ModeIncremental)
		if !errors.Is(err, amanerrors.ErrFileLocked) {
			break
		}
		slog.Info("reindex_waiting_for_lock", slog.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.watcher.opts.Debounce):
		}
	}

	if err != nil {
		slog.Error("reindex_failed", amanerrors.FormatForLog(err)...)
	} else {
		slog.Info("reindex_complete",
			slog.Int("changes", len(events)),
			slog.Int("added", result.Added),
			slog.Int("deleted", result.Deleted),
			slog.Int("chunks", result.ChunksCount))
	}
	if r.onBatch != nil {
		r.onBatch(Batch{Events: events, Result: result, Err: err})
	}
}
