package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/index"
)

func TestNewBackgroundIndexer(t *testing.T) {
	// Given/When: creating indexer
	b := NewBackgroundIndexer()

	// Then: it is idle and Wait returns at once
	require.NotNil(t, b)
	assert.False(t, b.IsRunning())
	assert.Equal(t, "idle", b.Progress().Snapshot().Status)
	stats, err := b.Wait()
	assert.Nil(t, stats)
	assert.NoError(t, err)
}

func TestBackgroundIndexer_Start_RunsInGoroutine(t *testing.T) {
	// Given: indexer with a task that blocks until released
	b := NewBackgroundIndexer()
	release := make(chan struct{})
	var started atomic.Bool

	// When: starting indexer
	err := b.Start(context.Background(), func(ctx context.Context, _ index.ProgressFunc) (*index.Stats, error) {
		started.Store(true)
		<-release
		return &index.Stats{IndexedFiles: 3, TotalChunks: 7}, nil
	})
	require.NoError(t, err)

	// Then: it runs in the background
	assert.True(t, b.IsRunning())
	assert.True(t, b.Progress().IsIndexing())

	close(release)
	stats, err := b.Wait()
	require.NoError(t, err)
	assert.True(t, started.Load())
	assert.False(t, b.IsRunning())
	assert.Equal(t, 3, stats.IndexedFiles)

	snap := b.Progress().Snapshot()
	assert.Equal(t, "ready", snap.Status)
	assert.Equal(t, "complete", snap.Stage)
	assert.InDelta(t, 100.0, snap.ProgressPct, 0.001)
	assert.Contains(t, snap.Summary, "3 files indexed, 7 chunks total")
}

func TestBackgroundIndexer_Start_RejectsConcurrentRun(t *testing.T) {
	// Given: a run in flight
	b := NewBackgroundIndexer()
	release := make(chan struct{})
	require.NoError(t, b.Start(context.Background(), func(ctx context.Context, _ index.ProgressFunc) (*index.Stats, error) {
		<-release
		return &index.Stats{}, nil
	}))

	// When: starting a second run
	err := b.Start(context.Background(), func(context.Context, index.ProgressFunc) (*index.Stats, error) {
		t.Fatal("second run must not start")
		return nil, nil
	})

	// Then: it is rejected as busy
	assert.True(t, cerrors.Is(err, cerrors.ErrCodeIndexBusy))

	close(release)
	_, err = b.Wait()
	require.NoError(t, err)
}

func TestBackgroundIndexer_Restart(t *testing.T) {
	// Given: a finished run
	b := NewBackgroundIndexer()
	var runs atomic.Int32
	fn := func(context.Context, index.ProgressFunc) (*index.Stats, error) {
		runs.Add(1)
		return &index.Stats{}, nil
	}
	require.NoError(t, b.Start(context.Background(), fn))
	_, err := b.Wait()
	require.NoError(t, err)

	// When: starting again
	require.NoError(t, b.Start(context.Background(), fn))
	_, err = b.Wait()

	// Then: it runs a second time
	require.NoError(t, err)
	assert.Equal(t, int32(2), runs.Load())
}

func TestBackgroundIndexer_Progress_UpdatesDuringRun(t *testing.T) {
	// Given: indexer that reports progress then waits
	b := NewBackgroundIndexer()
	reported := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, b.Start(context.Background(), func(ctx context.Context, progress index.ProgressFunc) (*index.Stats, error) {
		progress(index.Progress{Stage: index.StageEmbedding, Current: 5, Total: 10})
		close(reported)
		<-release
		return &index.Stats{}, nil
	}))

	// When: reading progress mid-run
	<-reported
	snap := b.Progress().Snapshot()

	// Then: the stage and overall percentage are reported
	assert.Equal(t, "indexing", snap.Status)
	assert.Equal(t, "embedding", snap.Stage)
	assert.Equal(t, 5, snap.Current)
	assert.Equal(t, 10, snap.Total)
	assert.InDelta(t, 65.0, snap.ProgressPct, 0.001)

	close(release)
	_, err := b.Wait()
	require.NoError(t, err)
}

func TestBackgroundIndexer_Error(t *testing.T) {
	// Given: a run that fails
	b := NewBackgroundIndexer()
	boom := errors.New("provider down")

	// When: running
	require.NoError(t, b.Start(context.Background(), func(context.Context, index.ProgressFunc) (*index.Stats, error) {
		return nil, boom
	}))
	_, err := b.Wait()

	// Then: the error is kept and reported
	assert.ErrorIs(t, err, boom)
	snap := b.Progress().Snapshot()
	assert.Equal(t, "error", snap.Status)
	assert.Equal(t, "provider down", snap.ErrorMessage)
}

func TestBackgroundIndexer_Stop_CancelsRun(t *testing.T) {
	// Given: indexer with a task that runs until canceled
	b := NewBackgroundIndexer()
	var stopped atomic.Bool
	require.NoError(t, b.Start(context.Background(), func(ctx context.Context, _ index.ProgressFunc) (*index.Stats, error) {
		<-ctx.Done()
		stopped.Store(true)
		return nil, ctx.Err()
	}))

	// When: stopping
	b.Stop()

	// Then: the task saw cancellation and the indexer is idle
	assert.True(t, stopped.Load())
	assert.False(t, b.IsRunning())
	_, err := b.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackgroundIndexer_ContextCancellation(t *testing.T) {
	// Given: indexer bound to a cancelable context
	b := NewBackgroundIndexer()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx, func(ctx context.Context, _ index.ProgressFunc) (*index.Stats, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	// When: the parent context is canceled
	cancel()

	// Then: the run ends
	done := make(chan struct{})
	go func() {
		_, _ = b.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on context cancel")
	}
	assert.False(t, b.IsRunning())
}

func TestJobs(t *testing.T) {
	// Given: a registry
	jobs := NewJobs()

	// When: getting the same key twice
	a := jobs.Get("/repo/a")
	again := jobs.Get("/repo/a")
	_, found := jobs.Lookup("/repo/b")

	// Then: the indexer is shared and unknown keys are not created
	assert.Same(t, a, again)
	assert.False(t, found)

	require.NoError(t, a.Start(context.Background(), func(ctx context.Context, _ index.ProgressFunc) (*index.Stats, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	jobs.StopAll()
	assert.False(t, a.IsRunning())
}
