// Package integration exercises the engine together with the watcher and
// the MCP server on real files, with the static embedder.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/mcp"
	"github.com/Aman-CERP/codecontext/internal/watcher"
	"github.com/Aman-CERP/codecontext/pkg/codecontext"
)

func newEngine(t *testing.T) (*codecontext.Engine, *config.Config) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Model = ""

	eng, err := codecontext.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, cfg
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func resultPaths(results []*codecontext.SearchResult) []string {
	paths := make([]string, 0, len(results))
	for _, r := range results {
		paths = append(paths, r.RelativePath)
	}
	return paths
}

func TestIndexModifyDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t)

	// Given: an indexed project
	root := t.TempDir()
	writeFile(t, root, "billing/invoice.go", "package billing\n\n// ComputeInvoiceTotal sums line items.\nfunc ComputeInvoiceTotal(items []int) int {\n\ttotal := 0\n\tfor _, i := range items {\n\t\ttotal += i\n\t}\n\treturn total\n}\n")
	writeFile(t, root, "notes.md", "# Notes\n\nShipping rules live in the logistics service.\n")
	stats, err := eng.Index(ctx, root, false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Added)

	// When: one file changes and the other is deleted
	writeFile(t, root, "billing/invoice.go", "package billing\n\n// ApplyRefund reverses a captured payment.\nfunc ApplyRefund(amount int) int {\n\treturn -amount\n}\n")
	require.NoError(t, os.Remove(filepath.Join(root, "notes.md")))
	stats, err = eng.Reindex(ctx, root)
	require.NoError(t, err)

	// Then: the run reports both changes and search reflects them
	assert.Equal(t, 1, stats.Modified)
	assert.Equal(t, 1, stats.Removed)
	assert.Positive(t, stats.DeletedChunks)

	results, err := eng.Search(ctx, root, "ApplyRefund", 10, 0)
	require.NoError(t, err)
	assert.Contains(t, resultPaths(results), "billing/invoice.go")
	assert.NotContains(t, resultPaths(results), "notes.md")
	for _, r := range results {
		assert.NotContains(t, r.Content, "ComputeInvoiceTotal")
	}

	// And: an unchanged tree is a no-op
	stats, err = eng.Reindex(ctx, root)
	require.NoError(t, err)
	assert.Zero(t, stats.Added+stats.Modified+stats.Removed)
	assert.Zero(t, stats.StoredChunks)
}

func TestWatcherTriggersReindex(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	eng, _ := newEngine(t)

	// Given: an indexed project under a polling watcher
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	_, err := eng.Index(ctx, root, false)
	require.NoError(t, err)

	w, err := watcher.New(watcher.Options{
		Debounce:     50 * time.Millisecond,
		PollInterval: 100 * time.Millisecond,
		ForcePolling: true,
	})
	require.NoError(t, err)

	results := make(chan error, 4)
	trigger := watcher.NewTrigger(w, func(ctx context.Context) error {
		_, err := eng.Reindex(ctx, root)
		return err
	})
	trigger.OnResult = func(err error) { results <- err }

	done := make(chan error, 1)
	go func() { done <- trigger.Run(ctx, root) }()

	// When: a new file appears after the first poll
	time.Sleep(300 * time.Millisecond)
	writeFile(t, root, "pkg/ratelimit.go", "package pkg\n\n// TokenBucketLimiter throttles requests per client.\ntype TokenBucketLimiter struct{}\n")

	// Then: a reindex runs and the file becomes searchable
	select {
	case err := <-results:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("reindex was not triggered")
	}

	found, err := eng.Search(ctx, root, "TokenBucketLimiter", 5, 0)
	require.NoError(t, err)
	assert.Contains(t, resultPaths(found), "pkg/ratelimit.go")

	cancel()
	assert.NoError(t, <-done)
}

func TestMCPServerOverRealEngine(t *testing.T) {
	ctx := context.Background()
	eng, cfg := newEngine(t)

	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/shop\n\ngo 1.22\n")
	writeFile(t, root, "cart/cart.go", "package cart\n\n// AddToCart puts a product in the shopping cart.\nfunc AddToCart(id string) {}\n")

	srv, err := mcp.NewServer(eng, cfg, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	// When: indexing through the tool and waiting for it
	out, err := srv.CallTool(ctx, mcp.ToolIndex, map[string]any{"wait": true})
	require.NoError(t, err)
	idx := out.(*mcp.IndexOutput)
	assert.Equal(t, root, idx.ProjectPath)

	// Then: status and search see the project
	out, err = srv.CallTool(ctx, mcp.ToolIndexStatus, map[string]any{})
	require.NoError(t, err)
	status := out.(*mcp.StatusOutput)
	assert.Equal(t, "shop", status.Project.Name)
	assert.Equal(t, "go", status.Project.Type)
	assert.True(t, status.Stats.Indexed)
	assert.Positive(t, status.Stats.FileCount)

	out, err = srv.CallTool(ctx, mcp.ToolSearch, map[string]any{"query": "AddToCart", "limit": 3})
	require.NoError(t, err)
	search := out.(*mcp.SearchOutput)
	require.NotEmpty(t, search.Results)

	var files []string
	for _, r := range search.Results {
		files = append(files, r.FilePath)
	}
	assert.Contains(t, files, "cart/cart.go")
}
