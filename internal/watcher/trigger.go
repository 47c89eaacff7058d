package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// minRetryDelay is the shortest wait before retrying a busy reindex.
const minRetryDelay = 100 * time.Millisecond

// ReindexFunc brings the index in line with the files on disk.
type ReindexFunc func(ctx context.Context) error

// Trigger runs a reindex for every batch a Watcher emits. Batches arriving
// during a reindex collapse into one follow-up run.
type Trigger struct {
	watcher *Watcher
	reindex ReindexFunc

	// retryDelay is the wait before retrying a run rejected as busy.
	retryDelay time.Duration

	// OnBatch, when set, is called before each reindex.
	OnBatch func(batch []FileEvent)
	// OnResult, when set, is called after each reindex.
	OnResult func(err error)
}

// NewTrigger connects w to reindex.
func NewTrigger(w *Watcher, reindex ReindexFunc) *Trigger {
	return &Trigger{watcher: w, reindex: reindex, retryDelay: max(w.opts.Debounce, minRetryDelay)}
}

// Run starts the watcher on root and reindexes on each batch until ctx is
// done. Returns nil on cancellation.
func (t *Trigger) Run(ctx context.Context, root string) error {
	watchErr := make(chan error, 1)
	go func() { watchErr <- t.watcher.Start(ctx, root) }()

	errs := t.watcher.Errors()
	for {
		select {
		case <-ctx.Done():
			_ = t.watcher.Stop()
			return nil
		case err := <-watchErr:
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		case batch, ok := <-t.watcher.Batches():
			if !ok {
				return nil
			}
			batch = t.drain(batch)
			if t.OnBatch != nil {
				t.OnBatch(batch)
			}
			t.run(ctx, batch)
		}
	}
}

// drain appends batches already queued so one run covers them all.
func (t *Trigger) drain(batch []FileEvent) []FileEvent {
	for {
		select {
		case more, ok := <-t.watcher.Batches():
			if !ok {
				return batch
			}
			batch = append(batch, more...)
		default:
			return batch
		}
	}
}

func (t *Trigger) run(ctx context.Context, batch []FileEvent) {
	for _, ev := range batch {
		if ev.Operation == OpConfigChange {
			slog.Info("watch_config_changed", slog.String("path", ev.Path))
		}
	}

	start := time.Now()
	err := t.reindex(ctx)
	for errors.IsKind(err, errors.KindIndexBusy) && ctx.Err() == nil {
		slog.Debug("watch_reindex_busy", slog.Duration("retry_in", t.retryDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.retryDelay):
		}
		err = t.reindex(ctx)
	}

	if err != nil && ctx.Err() == nil {
		slog.LogAttrs(ctx, slog.LevelError, "watch_reindex_failed", errors.LogAttrs(err)...)
	} else if err == nil {
		slog.Info("watch_reindex_complete",
			slog.Int("events", len(batch)),
			slog.Duration("duration", time.Since(start)))
	}
	if t.OnResult != nil {
		t.OnResult(err)
	}
}
