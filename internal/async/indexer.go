package async

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/index"
)

// IndexFunc performs one indexing run, reporting progress through progress.
type IndexFunc func(ctx context.Context, progress index.ProgressFunc) (*index.Stats, error)

// BackgroundIndexer runs indexing for one project in a background goroutine
// with progress tracking. A finished indexer can be started again.
type BackgroundIndexer struct {
	progress *IndexProgress

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	stats   *index.Stats
	err     error
}

// NewBackgroundIndexer creates an idle background indexer.
func NewBackgroundIndexer() *BackgroundIndexer {
	return &BackgroundIndexer{progress: NewIndexProgress()}
}

// Progress returns the progress tracker for this indexer.
func (b *BackgroundIndexer) Progress() *IndexProgress {
	return b.progress
}

// IsRunning returns true if a run is in flight.
func (b *BackgroundIndexer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start begins a run in a background goroutine and returns immediately.
// It returns an IndexBusy error if a run is already in flight. The run is
// bound to ctx, not to the caller's request.
func (b *BackgroundIndexer) Start(ctx context.Context, fn IndexFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return errors.New(errors.ErrCodeIndexBusy, "indexing is already in progress", nil).
			WithSuggestion("check progress with the status tool")
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.doneCh = make(chan struct{})
	b.stats, b.err = nil, nil
	b.progress.Begin()

	go b.run(runCtx, fn, b.doneCh)
	return nil
}

func (b *BackgroundIndexer) run(ctx context.Context, fn IndexFunc, done chan struct{}) {
	defer close(done)

	stats, err := fn(ctx, b.progress.Observe)

	b.mu.Lock()
	b.running = false
	b.stats, b.err = stats, err
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()
	cancel()

	if err != nil {
		b.progress.SetError(err.Error())
		slog.Warn("background_index_failed", slog.String("error", err.Error()))
		return
	}
	summary := ""
	if stats != nil {
		summary = stats.String()
	}
	b.progress.SetReady(summary)
}

// Stop cancels the run in flight, if any, and waits for it to finish.
func (b *BackgroundIndexer) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.doneCh
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current run completes and returns its result.
// It returns immediately when no run was ever started.
func (b *BackgroundIndexer) Wait() (*index.Stats, error) {
	b.mu.Lock()
	done := b.doneCh
	b.mu.Unlock()

	if done == nil {
		return nil, nil
	}
	<-done

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats, b.err
}

// Jobs holds one BackgroundIndexer per project key.
type Jobs struct {
	mu   sync.Mutex
	jobs map[string]*BackgroundIndexer
}

// NewJobs creates an empty registry.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*BackgroundIndexer)}
}

// Get returns the indexer for key, creating it on first use.
func (j *Jobs) Get(key string) *BackgroundIndexer {
	j.mu.Lock()
	defer j.mu.Unlock()

	b, ok := j.jobs[key]
	if !ok {
		b = NewBackgroundIndexer()
		j.jobs[key] = b
	}
	return b
}

// Lookup returns the indexer for key without creating one.
func (j *Jobs) Lookup(key string) (*BackgroundIndexer, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	b, ok := j.jobs[key]
	return b, ok
}

// StopAll cancels every run in flight and waits for them.
func (j *Jobs) StopAll() {
	j.mu.Lock()
	all := make([]*BackgroundIndexer, 0, len(j.jobs))
	for _, b := range j.jobs {
		all = append(all, b)
	}
	j.mu.Unlock()

	for _, b := range all {
		b.Stop()
	}
}
