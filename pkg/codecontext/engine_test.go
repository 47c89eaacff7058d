package codecontext

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/errors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Model = ""

	eng, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

var sampleProject = map[string]string{
	"auth/session.go": `package auth

// ValidateSession checks that a session token is still valid.
func ValidateSession(token string) bool {
	return token != "" && !isExpired(token)
}

func isExpired(token string) bool { return false }
`,
	"db/migrate.py": `def run_migrations(connection):
    for migration in pending_migrations(connection):
        migration.apply(connection)
`,
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Embeddings.Provider = "carrier-pigeon"
	_, err = New(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfiguration))
}

func TestEngine_IndexThenSearch(t *testing.T) {
	// Given: an engine and a small project
	eng := newTestEngine(t)
	root := writeProject(t, sampleProject)
	ctx := context.Background()

	// When: the project is indexed and searched
	stats, err := eng.Index(ctx, root, false)
	require.NoError(t, err)
	results, err := eng.Search(ctx, root, "ValidateSession token", 0, 0)

	// Then: the session code ranks first
	require.NoError(t, err)
	assert.Equal(t, 2, stats.IndexedFiles)
	require.NotEmpty(t, results)
	assert.Equal(t, "auth/session.go", results[0].RelativePath)
	assert.LessOrEqual(t, len(results), eng.Config().Search.DefaultTopK)
}

func TestEngine_SearchWithOptionsFiltersLanguage(t *testing.T) {
	eng := newTestEngine(t)
	root := writeProject(t, sampleProject)
	ctx := context.Background()
	_, err := eng.Index(ctx, root, false)
	require.NoError(t, err)

	results, err := eng.SearchWithOptions(ctx, root, "session migrations", SearchOptions{Language: "python"})

	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "db/migrate.py", r.RelativePath)
	}
}

func TestEngine_SearchBeforeIndex(t *testing.T) {
	eng := newTestEngine(t)
	root := writeProject(t, sampleProject)

	_, err := eng.Search(context.Background(), root, "anything", 5, 0)

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotIndexed))
	assert.False(t, eng.HasIndex(root))
}

func TestEngine_StatusAndClear(t *testing.T) {
	// Given: an indexed project
	eng := newTestEngine(t)
	root := writeProject(t, sampleProject)
	ctx := context.Background()
	stats, err := eng.Index(ctx, root, false)
	require.NoError(t, err)

	// When: its status is read
	st, err := eng.Status(ctx, root)

	// Then: counts match the run
	require.NoError(t, err)
	assert.True(t, st.Indexed)
	assert.False(t, st.Indexing)
	assert.Equal(t, stats.TotalChunks, st.Chunks)
	assert.Equal(t, 2, st.Files)
	assert.False(t, st.LastIndexed.IsZero())
	assert.True(t, eng.HasIndex(root))

	// When: the index is cleared
	require.NoError(t, eng.ClearIndex(ctx, root))

	// Then: the project is no longer indexed and the next run starts fresh
	assert.False(t, eng.HasIndex(root))
	st, err = eng.Status(ctx, root)
	require.NoError(t, err)
	assert.False(t, st.Indexed)

	again, err := eng.Reindex(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Added)
}

func TestEngine_ClearWhileIndexingIsBusy(t *testing.T) {
	eng := newTestEngine(t)
	root := writeProject(t, sampleProject)
	ctx := context.Background()

	var clearErr error
	_, err := eng.IndexWithOptions(ctx, root, IndexOptions{Progress: func(p Progress) {
		if p.Stage == "chunking" && clearErr == nil {
			clearErr = eng.ClearIndex(ctx, root)
		}
	}})

	require.NoError(t, err)
	require.Error(t, clearErr)
	assert.True(t, errors.IsKind(clearErr, errors.KindIndexBusy))
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	eng := newTestEngine(t)
	assert.NoError(t, eng.Close())
	assert.NoError(t, eng.Close())
}
