package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func paths(files []*File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	sort.Strings(out)
	return out
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"pkg/lib/utils_test.go", "go"},
		{"app.js", "javascript"},
		{"Component.jsx", "javascript"},
		{"app.ts", "typescript"},
		{"Component.TSX", "typescript"},
		{"script.py", "python"},
		{"Main.java", "java"},
		{"main.rs", "rust"},
		{"main.cpp", "cpp"},
		{"README.md", ""},
		{"LICENSE", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path))
			assert.Equal(t, tt.want != "", IsSupported(tt.path))
		})
	}
	assert.Contains(t, Extensions(), ".rs")
}

func TestScanner_Collect_FiltersTree(t *testing.T) {
	// Given: a project with sources, ignored dirs, hidden files and docs
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py":                  "def a(): pass\n",
		"src/b.go":              "package src\n",
		"src/gen/c.go":          "package gen\n",
		"node_modules/lib/x.js": "module.exports = 1\n",
		".hidden/secret.py":     "x = 1\n",
		".env":                  "TOKEN=1\n",
		"README.md":             "# readme\n",
		"logs/debug.py":         "print(1)\n",
		"config/credentials.py": "KEY = 'x'\n",
		".gitignore":            "logs/\n",
		"src/.gitignore":        "gen/\n",
	})
	s, err := New()
	require.NoError(t, err)

	// When: collecting with gitignore support
	files, err := s.Collect(context.Background(), Options{Root: root, RespectGitignore: true})

	// Then: only indexable, non-ignored sources remain
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "src/b.go"}, paths(files))

	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.AbsPath))
		assert.Positive(t, f.Size)
		assert.False(t, f.ModTime.IsZero())
	}
}

func TestScanner_Collect_ExtraPatternsAndNegation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py":          "a = 1\n",
		"b_test.py":     "b = 1\n",
		"keep_test.py":  "k = 1\n",
		"docs/guide.py": "g = 1\n",
	})
	s, err := New()
	require.NoError(t, err)

	files, err := s.Collect(context.Background(), Options{
		Root:   root,
		Ignore: []string{"*_test.py", "!keep_test.py", "/docs"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "keep_test.py"}, paths(files))
}

func TestScanner_Collect_SkipsBinaryAndLarge(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"ok.go":  "package ok\n",
		"bin.go": "pack\x00age\n",
		"big.go": string(make([]byte, 2048)),
	})
	s, err := New()
	require.NoError(t, err)

	files, err := s.Collect(context.Background(), Options{Root: root, MaxFileSize: 1024})

	require.NoError(t, err)
	assert.Equal(t, []string{"ok.go"}, paths(files))
}

func TestScanner_Collect_IncludeHidden(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{".tools/run.py": "x = 1\n"})
	s, err := New()
	require.NoError(t, err)

	files, err := s.Collect(context.Background(), Options{Root: root, IncludeHidden: true})

	require.NoError(t, err)
	assert.Equal(t, []string{".tools/run.py"}, paths(files))
}

func TestScanner_Collect_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "package a\n"})
	s, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Collect(ctx, Options{Root: root})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.go")
	require.NoError(t, os.WriteFile(file, []byte("package f\n"), 0o644))

	abs, err := ValidateRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, abs)

	_, err = ValidateRoot(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, errors.ErrCodePathNotFound))
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))

	_, err = ValidateRoot(file)
	assert.True(t, errors.Is(err, errors.ErrCodePathNotDirectory))
}

func TestScanner_Matcher_MirrorsScanRules(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":     "tmp/\n",
		"pkg/.gitignore": "*.gen.go\n",
	})
	s, err := New()
	require.NoError(t, err)

	m := s.Matcher(root, []string{"*.bak"}, true)

	assert.True(t, m.Match("tmp/x.go", false))
	assert.True(t, m.Match("node_modules/a.js", false))
	assert.True(t, m.Match("pkg/a.gen.go", false))
	assert.True(t, m.Match("old.bak", false))
	assert.False(t, m.Match("pkg/a.go", false))
}

func TestScanner_GitignoreCacheRefreshesOnChange(t *testing.T) {
	// Given: a scan with one .gitignore
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "package a\n", "b.go": "package b\n", ".gitignore": "a.go\n"})
	s, err := New()
	require.NoError(t, err)
	files, err := s.Collect(context.Background(), Options{Root: root, RespectGitignore: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go"}, paths(files))

	// When: the .gitignore changes and the cache is invalidated
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("b.go\n"), 0o644))
	s.Invalidate()

	// Then: the new rules apply
	files, err = s.Collect(context.Background(), Options{Root: root, RespectGitignore: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, paths(files))
}
