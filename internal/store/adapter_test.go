package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/errors"
)

func newTestAdapter(t *testing.T, backend BM25Backend) *LocalAdapter {
	t.Helper()
	a, err := NewLocalAdapter(AdapterConfig{Dir: t.TempDir(), LexicalBackend: backend})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func seedPoints() []*Point {
	return []*Point{
		{ID: "auth", Vector: []float32{1, 0, 0, 0}, Payload: Payload{RelativePath: "auth.go", StartLine: 1, EndLine: 3, Language: "go", Content: "func validateToken(token string) bool"}},
		{ID: "db", Vector: []float32{0, 1, 0, 0}, Payload: Payload{RelativePath: "db.go", StartLine: 1, EndLine: 5, Language: "go", Content: "func openDatabase(path string) error"}},
		{ID: "http", Vector: []float32{0, 0, 1, 0}, Payload: Payload{RelativePath: "server.py", StartLine: 2, EndLine: 8, Language: "python", Content: "def serve_http(port): pass"}},
	}
}

func TestCollectionName(t *testing.T) {
	a := CollectionName("/home/dev/project")
	b := CollectionName("/home/dev/project/")
	c := CollectionName("/home/dev/other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^code_chunks_[0-9a-f]{16}$`, a)
}

func TestLocalAdapter_HybridQuery(t *testing.T) {
	for _, backend := range []BM25Backend{BM25BackendSQLite, BM25BackendBleve} {
		t.Run(string(backend), func(t *testing.T) {
			// Given: a collection with three chunks
			a := newTestAdapter(t, backend)
			ctx := context.Background()
			require.NoError(t, a.Upsert(ctx, "code_chunks_test", seedPoints()))

			// When: the vector points at "auth" and the text names the token check
			hits, err := a.Query(ctx, "code_chunks_test", &Query{
				Vector: []float32{1, 0, 0, 0},
				Text:   "validate token",
				TopK:   2,
			})
			require.NoError(t, err)

			// Then: "auth" wins with both legs contributing
			require.Len(t, hits, 2)
			assert.Equal(t, "auth", hits[0].ID)
			assert.Equal(t, 1, hits[0].DenseRank)
			assert.Equal(t, 1, hits[0].LexicalRank)
			assert.InDelta(t, 2.0/61, hits[0].Score, 1e-9)
			assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
		})
	}
}

func TestLocalAdapter_QueryLegsAreOptional(t *testing.T) {
	a := newTestAdapter(t, "")
	ctx := context.Background()
	require.NoError(t, a.Upsert(ctx, "code_chunks_test", seedPoints()))

	lexicalOnly, err := a.Query(ctx, "code_chunks_test", &Query{Text: "openDatabase", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"db"}, hitIDs(lexicalOnly))

	denseOnly, err := a.Query(ctx, "code_chunks_test", &Query{Vector: []float32{0, 0, 1, 0}, TopK: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"http"}, hitIDs(denseOnly))

	byPath, err := a.Query(ctx, "code_chunks_test", &Query{Text: "server", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"http"}, hitIDs(byPath))
}

func TestLocalAdapter_ThresholdAfterFusion(t *testing.T) {
	a := newTestAdapter(t, "")
	ctx := context.Background()
	require.NoError(t, a.Upsert(ctx, "code_chunks_test", seedPoints()))

	hits, err := a.Query(ctx, "code_chunks_test", &Query{Vector: []float32{1, 0, 0, 0}, Text: "token", TopK: 5, Threshold: 0.99})

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLocalAdapter_NotIndexed(t *testing.T) {
	a := newTestAdapter(t, "")
	ctx := context.Background()

	assert.False(t, a.HasCollection("code_chunks_missing"))

	_, err := a.Query(ctx, "code_chunks_missing", &Query{Text: "x", TopK: 1})
	require.Error(t, err)
	assert.Equal(t, errors.KindNotIndexed, errors.KindOf(err))

	_, err = a.Payloads(ctx, "code_chunks_missing", []string{"a"})
	assert.True(t, errors.Is(err, errors.ErrCodeNotIndexed))

	// Delete and Flush on a missing collection are no-ops.
	assert.NoError(t, a.Delete(ctx, "code_chunks_missing", []string{"a"}))
	assert.NoError(t, a.Flush(ctx, "code_chunks_missing"))
}

func TestLocalAdapter_DeleteAndPayloads(t *testing.T) {
	a := newTestAdapter(t, "")
	ctx := context.Background()
	require.NoError(t, a.Upsert(ctx, "code_chunks_test", seedPoints()))

	// When: "db" is deleted
	require.NoError(t, a.Delete(ctx, "code_chunks_test", []string{"db"}))

	// Then: neither leg nor the payload store returns it
	hits, err := a.Query(ctx, "code_chunks_test", &Query{Vector: []float32{0, 1, 0, 0}, Text: "database", TopK: 5})
	require.NoError(t, err)
	assert.NotContains(t, hitIDs(hits), "db")

	payloads, err := a.Payloads(ctx, "code_chunks_test", []string{"auth", "db"})
	require.NoError(t, err)
	assert.Contains(t, payloads, "auth")
	assert.NotContains(t, payloads, "db")
}

func TestLocalAdapter_DimensionMismatch(t *testing.T) {
	a := newTestAdapter(t, "")
	ctx := context.Background()
	require.NoError(t, a.Upsert(ctx, "code_chunks_test", seedPoints()))

	err := a.Upsert(ctx, "code_chunks_test", []*Point{{ID: "x", Vector: []float32{1, 2}, Payload: Payload{RelativePath: "x.go"}}})

	require.Error(t, err)
	assert.Equal(t, errors.KindVectorStore, errors.KindOf(err))
	assert.True(t, errors.Is(err, errors.ErrCodeDimensionMismatch))
}

func TestLocalAdapter_InvalidPoints(t *testing.T) {
	a := newTestAdapter(t, "")
	ctx := context.Background()

	assert.Error(t, a.Upsert(ctx, "code_chunks_test", []*Point{{ID: "", Vector: []float32{1}}}))
	assert.Error(t, a.Upsert(ctx, "code_chunks_test", []*Point{{ID: "x"}}))
	assert.Error(t, a.Upsert(ctx, "../escape", seedPoints()))
	assert.NoError(t, a.Upsert(ctx, "code_chunks_test", nil))
	assert.False(t, a.HasCollection("code_chunks_test"))
}

func TestLocalAdapter_PersistsAcrossInstances(t *testing.T) {
	// Given: a flushed collection
	dir := t.TempDir()
	ctx := context.Background()
	a1, err := NewLocalAdapter(AdapterConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, a1.Upsert(ctx, "code_chunks_test", seedPoints()))
	require.NoError(t, a1.SetEdges(ctx, "code_chunks_test", []Edge{{Source: "auth", Target: "db", Kind: "CONTINUES"}}))
	require.NoError(t, a1.Flush(ctx, "code_chunks_test"))
	require.NoError(t, a1.Close())

	// When: a new adapter opens the same directory
	a2, err := NewLocalAdapter(AdapterConfig{Dir: dir})
	require.NoError(t, err)
	defer func() { _ = a2.Close() }()

	// Then: vectors, terms, payloads and edges are all back
	assert.True(t, a2.HasCollection("code_chunks_test"))
	hits, err := a2.Query(ctx, "code_chunks_test", &Query{Vector: []float32{1, 0, 0, 0}, Text: "token", TopK: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"auth"}, hitIDs(hits))

	edges, err := a2.Edges(ctx, "code_chunks_test", []string{"auth"})
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	stats, err := a2.Stats(ctx, "code_chunks_test")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, stats.Vectors)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 4, stats.Dimensions)
}

func TestLocalAdapter_FlushCompactsReplacedVectors(t *testing.T) {
	// Given: a collection whose chunks are replaced on every run
	a := newTestAdapter(t, "")
	ctx := context.Background()
	require.NoError(t, a.Upsert(ctx, "code_chunks_test", seedPoints()))
	require.NoError(t, a.Flush(ctx, "code_chunks_test"))

	// When: a file is reindexed repeatedly with fresh ids
	prev := "auth"
	for i := range 20 {
		id := fmt.Sprintf("auth-%d", i)
		p := &Point{ID: id, Vector: []float32{1, float32(i) * 0.1, 0, 0}, Payload: seedPoints()[0].Payload}
		require.NoError(t, a.Upsert(ctx, "code_chunks_test", []*Point{p}))
		require.NoError(t, a.Delete(ctx, "code_chunks_test", []string{prev}))
		require.NoError(t, a.Flush(ctx, "code_chunks_test"))
		prev = id
	}

	// Then: flushing keeps the dead nodes under a quarter of the live ones
	stats, err := a.Stats(ctx, "code_chunks_test")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Vectors)
	assert.LessOrEqual(t, stats.Orphans*4, stats.Vectors)

	hits, err := a.Query(ctx, "code_chunks_test", &Query{Vector: []float32{1, 1.9, 0, 0}, TopK: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"auth-19"}, hitIDs(hits))
}

func TestLocalAdapter_CloseFlushes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a1, err := NewLocalAdapter(AdapterConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, a1.Upsert(ctx, "code_chunks_test", seedPoints()))
	require.NoError(t, a1.Close())
	require.NoError(t, a1.Close())

	a2, err := NewLocalAdapter(AdapterConfig{Dir: dir})
	require.NoError(t, err)
	defer func() { _ = a2.Close() }()

	stats, err := a2.Stats(ctx, "code_chunks_test")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Vectors)
}

func TestLocalAdapter_EvictionKeepsData(t *testing.T) {
	// Given: room for a single open collection
	a, err := NewLocalAdapter(AdapterConfig{Dir: t.TempDir(), OpenCollections: 1})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	ctx := context.Background()

	// When: three collections are written in turn
	for i := range 3 {
		require.NoError(t, a.Upsert(ctx, fmt.Sprintf("code_chunks_%d", i), seedPoints()))
	}

	// Then: every evicted collection was flushed and reopens intact
	for i := range 3 {
		hits, err := a.Query(ctx, fmt.Sprintf("code_chunks_%d", i), &Query{Vector: []float32{0, 1, 0, 0}, TopK: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"db"}, hitIDs(hits))
	}
	assert.Equal(t, 1, a.open.Len())
}

func TestLocalAdapter_DropCollection(t *testing.T) {
	a := newTestAdapter(t, "")
	ctx := context.Background()
	require.NoError(t, a.Upsert(ctx, "code_chunks_test", seedPoints()))
	require.True(t, a.HasCollection("code_chunks_test"))

	require.NoError(t, a.DropCollection(ctx, "code_chunks_test"))

	assert.False(t, a.HasCollection("code_chunks_test"))
	assert.NoDirExists(t, filepath.Join(a.cfg.Dir, "code_chunks_test"))
	_, err := a.Query(ctx, "code_chunks_test", &Query{Text: "token", TopK: 1})
	assert.Equal(t, errors.KindNotIndexed, errors.KindOf(err))

	// Dropping again is harmless.
	assert.NoError(t, a.DropCollection(ctx, "code_chunks_test"))
}

func TestLocalAdapter_ClosedRejectsWork(t *testing.T) {
	a, err := NewLocalAdapter(AdapterConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.Error(t, a.Upsert(context.Background(), "code_chunks_test", seedPoints()))
}

func TestNewLocalAdapter_Config(t *testing.T) {
	_, err := NewLocalAdapter(AdapterConfig{})
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))

	_, err = NewLocalAdapter(AdapterConfig{Dir: t.TempDir(), LexicalBackend: "lucene"})
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))

	_, err = NewLocalAdapter(AdapterConfig{Dir: t.TempDir(), MetadataDriver: "postgres"})
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))

	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()
	ac := AdapterConfigFrom(cfg)
	assert.Equal(t, filepath.Join(cfg.Storage.DataDir, "collections"), ac.Dir)
	assert.Equal(t, BM25BackendSQLite, ac.LexicalBackend)
	assert.Equal(t, 60, ac.RRFConstant)
}

func TestDefaultCandidates(t *testing.T) {
	assert.Equal(t, 20, DefaultCandidates(1))
	assert.Equal(t, 20, DefaultCandidates(5))
	assert.Equal(t, 40, DefaultCandidates(10))
}
