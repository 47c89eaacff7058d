package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codecontext/internal/chunk"
	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/embed"
	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/filesync"
	"github.com/Aman-CERP/codecontext/internal/scanner"
	"github.com/Aman-CERP/codecontext/internal/snapshot"
	"github.com/Aman-CERP/codecontext/internal/store"
)

// failMarker makes the test embedder fail every batch that contains it.
const failMarker = "EMBEDFAIL"

// testEmbedder hashes each text into a one-hot vector. Texts holding
// failMarker fail with a transient error; permanent fails everything.
// When provider is set, Embed calls go to it instead.
type testEmbedder struct {
	mu        sync.Mutex
	permanent bool
	provider  embed.Embedder
	calls     int
}

func (e *testEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls++
	permanent := e.permanent
	provider := e.provider
	e.mu.Unlock()

	if provider != nil {
		return provider.Embed(ctx, texts)
	}
	if permanent {
		return nil, errors.New(errors.ErrCodeProviderAuth, "invalid api key", nil)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, failMarker) {
			return nil, errors.New(errors.ErrCodeProviderTimeout, "provider timed out", nil)
		}
		v := make([]float32, 8)
		v[xxhash.Sum64String(t)%8] = 1
		out[i] = v
	}
	return out, nil
}

func (e *testEmbedder) Dimensions() int                  { return 8 }
func (e *testEmbedder) ModelName() string                { return "test-model" }
func (e *testEmbedder) Available(_ context.Context) bool { return true }
func (e *testEmbedder) Close() error                     { return nil }

func (e *testEmbedder) setPermanent(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.permanent = v
}

func (e *testEmbedder) setProvider(p embed.Embedder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.provider = p
}

func (e *testEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// recordingAdapter logs the order of mutating store calls.
type recordingAdapter struct {
	store.Adapter

	mu  sync.Mutex
	ops []string
}

func (r *recordingAdapter) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingAdapter) Upsert(ctx context.Context, collection string, points []*store.Point) error {
	r.record("upsert")
	return r.Adapter.Upsert(ctx, collection, points)
}

func (r *recordingAdapter) Delete(ctx context.Context, collection string, ids []string) error {
	r.record("delete")
	return r.Adapter.Delete(ctx, collection, ids)
}

func (r *recordingAdapter) Flush(ctx context.Context, collection string) error {
	r.record("flush")
	return r.Adapter.Flush(ctx, collection)
}

func (r *recordingAdapter) operations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

type harness struct {
	cfg       *config.Config
	root      string
	indexer   *Indexer
	embedder  *testEmbedder
	store     *recordingAdapter
	snapshots *snapshot.FileStore
	locks     *RunLock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()

	sc, err := scanner.New()
	require.NoError(t, err)

	emb := &testEmbedder{}
	orch := embed.NewOrchestrator(emb, embed.Options{
		BatchSize:       1,
		Parallelism:     2,
		Retry:           errors.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		BreakerFailures: 1000,
	})

	adapter, err := store.NewLocalAdapter(store.AdapterConfigFrom(cfg))
	require.NoError(t, err)
	rec := &recordingAdapter{Adapter: adapter}
	t.Cleanup(func() { _ = rec.Close() })

	snaps := snapshot.NewFileStore(cfg.SnapshotPath())
	locks := NewRunLock(cfg.LocksPath())

	ix, err := New(cfg, Dependencies{
		Synchronizer: filesync.New(sc, filesync.Options{Workers: 2, RespectGitignore: true}),
		Chunker:      chunk.New(chunk.Options{}),
		Embedder:     orch,
		Store:        rec,
		Snapshots:    snaps,
		Locks:        locks,
	})
	require.NoError(t, err)

	root, err := scanner.ValidateRoot(t.TempDir())
	require.NoError(t, err)

	return &harness{
		cfg:       cfg,
		root:      root,
		indexer:   ix,
		embedder:  emb,
		store:     rec,
		snapshots: snaps,
		locks:     locks,
	}
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(h.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	// Bump mtime so the metadata pre-filter cannot reuse a stale hash.
	future := time.Now().Add(time.Duration(len(content)) * time.Millisecond)
	require.NoError(t, os.Chtimes(p, future, future))
}

func (h *harness) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(h.root, rel)))
}

func (h *harness) snapshot(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	snap, err := h.snapshots.Load(context.Background(), h.root)
	require.NoError(t, err)
	return snap
}

func (h *harness) collection() string {
	return store.CollectionName(h.root)
}

func (h *harness) payloads(t *testing.T, ids []string) map[string]*store.Payload {
	t.Helper()
	got, err := h.store.Payloads(context.Background(), h.collection(), ids)
	require.NoError(t, err)
	return got
}

const mainGo = `package main

import "fmt"

func main() {
	fmt.Println(greet("world"))
}
`

const utilGo = `package main

func greet(name string) string {
	return "hello " + name
}
`
