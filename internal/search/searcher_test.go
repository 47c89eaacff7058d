package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codecontext/internal/chunk"
	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/store"
)

// keywordEmbedder maps texts to one-hot vectors by topic keyword.
type keywordEmbedder struct {
	calls int
}

func (k *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	k.calls++
	return topicVector(text), nil
}

func topicVector(text string) []float32 {
	v := make([]float32, 4)
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "auth"):
		v[0] = 1
	case strings.Contains(t, "database"), strings.Contains(t, "query"):
		v[1] = 1
	case strings.Contains(t, "http"), strings.Contains(t, "handler"):
		v[2] = 1
	default:
		v[3] = 1
	}
	return v
}

func point(id, rel, lang, content string, start, end int) *store.Point {
	return &store.Point{
		ID:     id,
		Vector: topicVector(content),
		Payload: store.Payload{
			RelativePath: rel,
			StartLine:    start,
			EndLine:      end,
			Language:     lang,
			Content:      content,
		},
	}
}

type fixture struct {
	root     string
	store    *store.LocalAdapter
	embedder *keywordEmbedder
	searcher *Searcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewLocalAdapter(store.AdapterConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	emb := &keywordEmbedder{}
	s, err := New(emb, st)
	require.NoError(t, err)
	return &fixture{root: t.TempDir(), store: st, embedder: emb, searcher: s}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	name := store.CollectionName(f.root)
	points := []*store.Point{
		point("auth1", "internal/auth/login.go", "go", "func authenticateUser(name, password string) error { return checkAuth(name) }", 1, 10),
		point("auth2", "internal/auth/login.go", "go", "// continued auth logic\nfunc checkAuth(name string) error { return nil }", 8, 20),
		point("auth3", "internal/auth/login.go", "go", "func auditAuth() {}", 18, 25),
		point("db1", "db/query.py", "python", "def run_database_query(sql): return cursor.execute(sql)", 1, 5),
		point("http1", "api/handler.ts", "typescript", "export function httpHandler(req) { return respond(req) }", 1, 7),
		point("http2", "api-v2/handler.ts", "typescript", "export function httpHandlerV2(req) { return respond(req) }", 1, 7),
	}
	require.NoError(t, f.store.Upsert(ctx, name, points))
	require.NoError(t, f.store.SetEdges(ctx, name, []store.Edge{
		{Source: "auth1", Target: "auth2", Kind: string(chunk.EdgeContinues)},
		{Source: "auth2", Target: "auth3", Kind: string(chunk.EdgeContinues)},
		{Source: "db1", Target: "auth1", Kind: string(chunk.EdgeParentOf)},
	}))
	require.NoError(t, f.store.Flush(ctx, name))
}

func resultIDs(results []*Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	_, err = New(&keywordEmbedder{}, nil)
	assert.Error(t, err)
}

func TestSearch_RanksMatchingChunkFirst(t *testing.T) {
	// Given an indexed project
	f := newFixture(t)
	f.seed(t)

	// When searching for an auth concept
	results, err := f.searcher.Search(context.Background(), f.root, "authenticateUser", Options{})

	// Then the chunk matching both legs ranks first with its metadata
	require.NoError(t, err)
	require.NotEmpty(t, results)
	top := results[0]
	assert.Equal(t, "auth1", top.ChunkID)
	assert.Equal(t, "internal/auth/login.go", top.RelativePath)
	assert.Equal(t, 1, top.StartLine)
	assert.Equal(t, 10, top.EndLine)
	assert.Equal(t, "go", top.Language)
	assert.Contains(t, top.Content, "authenticateUser")
	assert.LessOrEqual(t, len(results), DefaultTopK)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "scores must be non-increasing")
	}
}

func TestSearch_FollowsContinuations(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	results, err := f.searcher.Search(context.Background(), f.root, "authenticateUser", Options{TopK: 1})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"auth2", "auth3"}, results[0].Continuations)
}

func TestSearch_ThresholdCanEmptyResults(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	results, err := f.searcher.Search(context.Background(), f.root, "nonexistent concept xyz123", Options{Threshold: 0.99})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_Filters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		opts  Options
		check func(t *testing.T, r *Result)
	}{
		{
			name:  "extension without dot",
			query: "httpHandler respond",
			opts:  Options{Extensions: []string{"ts"}},
			check: func(t *testing.T, r *Result) { assert.True(t, strings.HasSuffix(r.RelativePath, ".ts")) },
		},
		{
			name:  "extension with dot",
			query: "query database",
			opts:  Options{Extensions: []string{".PY"}},
			check: func(t *testing.T, r *Result) { assert.Equal(t, "db/query.py", r.RelativePath) },
		},
		{
			name:  "language",
			query: "authenticateUser httpHandler",
			opts:  Options{Language: "TypeScript"},
			check: func(t *testing.T, r *Result) { assert.Equal(t, "typescript", r.Language) },
		},
		{
			name:  "scope respects directory boundary",
			query: "httpHandler respond",
			opts:  Options{Scopes: []string{"/api/"}},
			check: func(t *testing.T, r *Result) { assert.Equal(t, "api/handler.ts", r.RelativePath) },
		},
	}

	f := newFixture(t)
	f.seed(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := f.searcher.Search(context.Background(), f.root, tt.query, tt.opts)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			for _, r := range results {
				tt.check(t, r)
			}
		})
	}
}

func TestSearch_NotIndexed(t *testing.T) {
	// Given a project that was never indexed
	f := newFixture(t)

	// When searching it
	_, err := f.searcher.Search(context.Background(), f.root, "anything", Options{})

	// Then a not-indexed error is returned without embedding the query
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotIndexed, errors.GetCode(err))
	assert.True(t, errors.IsKind(err, errors.KindNotIndexed))
	assert.Zero(t, f.embedder.calls)
}

func TestSearch_ValidatesInput(t *testing.T) {
	tests := []struct {
		name  string
		query string
		opts  Options
		code  string
	}{
		{"blank query", "   ", Options{}, errors.ErrCodeQueryEmpty},
		{"negative top_k", "q", Options{TopK: -1}, errors.ErrCodeInvalidTopK},
		{"top_k too large", "q", Options{TopK: MaxTopK + 1}, errors.ErrCodeInvalidTopK},
		{"negative threshold", "q", Options{Threshold: -0.1}, errors.ErrCodeInvalidThreshold},
		{"threshold above one", "q", Options{Threshold: 1.5}, errors.ErrCodeInvalidThreshold},
		{"negative graph hops", "q", Options{MaxGraphHops: -1}, errors.ErrCodeInvalidInput},
		{"too many graph hops", "q", Options{MaxGraphHops: MaxGraphHops + 1}, errors.ErrCodeInvalidInput},
		{"negative graph limit", "q", Options{GraphLimit: -1}, errors.ErrCodeInvalidInput},
	}

	f := newFixture(t)
	f.seed(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.searcher.Search(context.Background(), f.root, tt.query, tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.True(t, errors.IsKind(err, errors.KindValidation))
		})
	}
}

func TestSearch_TopKBounds(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	results, err := f.searcher.Search(context.Background(), f.root, "respond handler auth", Options{TopK: 2})

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.NotContains(t, resultIDs(results), "")
}

// gappyAdapter hides some payloads and can fail neighbour lookups.
type gappyAdapter struct {
	store.Adapter
	hidden       map[string]bool
	neighborsErr error
}

func (g *gappyAdapter) Payloads(ctx context.Context, collection string, ids []string) (map[string]*store.Payload, error) {
	out, err := g.Adapter.Payloads(ctx, collection, ids)
	for id := range g.hidden {
		delete(out, id)
	}
	return out, err
}

func (g *gappyAdapter) Neighbors(ctx context.Context, collection string, ids []string) ([]store.Edge, error) {
	if g.neighborsErr != nil {
		return nil, g.neighborsErr
	}
	return g.Adapter.Neighbors(ctx, collection, ids)
}

func TestSearch_MissingPayloadDoesNotShortenResults(t *testing.T) {
	// Given the best hit of a query has lost its payload
	f := newFixture(t)
	f.seed(t)
	query := "respond handler auth"
	full, err := f.searcher.Search(context.Background(), f.root, query, Options{TopK: 2})
	require.NoError(t, err)
	require.Len(t, full, 2)

	gappy := &gappyAdapter{Adapter: f.store, hidden: map[string]bool{full[0].ChunkID: true}}
	s, err := New(f.embedder, gappy)
	require.NoError(t, err)

	// When searching without filters
	results, err := s.Search(context.Background(), f.root, query, Options{TopK: 2})

	// Then the next hit fills its place
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.NotContains(t, resultIDs(results), full[0].ChunkID)
	assert.Equal(t, full[1].ChunkID, results[0].ChunkID)
}

func seedCall(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	name := store.CollectionName(f.root)
	require.NoError(t, f.store.SetEdges(ctx, name, []store.Edge{
		{Source: "http1", Target: "db1", Kind: string(chunk.EdgeCalls)},
	}))
}

func TestSearch_GraphExpansion(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"disabled", Options{TopK: 1}, []string{"auth1"}},
		{"one hop both directions", Options{TopK: 1, MaxGraphHops: 1}, []string{"auth1", "auth2", "db1"}},
		{"two hops", Options{TopK: 1, MaxGraphHops: 2}, []string{"auth1", "auth2", "db1", "auth3", "http1"}},
		{"limit", Options{TopK: 1, MaxGraphHops: 2, GraphLimit: 3}, []string{"auth1", "auth2", "db1"}},
		{"filters apply to related chunks", Options{TopK: 1, MaxGraphHops: 2, Language: "go"}, []string{"auth1", "auth2", "auth3"}},
	}

	f := newFixture(t)
	f.seed(t)
	seedCall(t, f)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := f.searcher.Search(context.Background(), f.root, "authenticateUser", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resultIDs(results))

			assert.False(t, results[0].Related)
			for _, r := range results[1:] {
				assert.True(t, r.Related)
				assert.Zero(t, r.Score)
				assert.NotEmpty(t, r.Content)
			}
		})
	}
}

func TestSearch_GraphExpansionFailureKeepsRankedResults(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	gappy := &gappyAdapter{Adapter: f.store, neighborsErr: errors.StoreError("edges unavailable", nil)}
	s, err := New(f.embedder, gappy)
	require.NoError(t, err)

	results, err := s.Search(context.Background(), f.root, "authenticateUser", Options{TopK: 1, MaxGraphHops: 1})

	require.NoError(t, err)
	assert.Equal(t, []string{"auth1"}, resultIDs(results))
}
