package filesync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codecontext/internal/scanner"
	"github.com/Aman-CERP/codecontext/internal/snapshot"
)

func newSync(t *testing.T) *Synchronizer {
	t.Helper()
	sc, err := scanner.New()
	require.NoError(t, err)
	return New(sc, Options{Workers: 2, RespectGitignore: true})
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// snapshotOf records a tree as if every file had been indexed.
func snapshotOf(tree *Tree) *snapshot.Snapshot {
	s := snapshot.New(tree.Root)
	for p, e := range tree.Files {
		s.Files[p] = &snapshot.FileRecord{RelativePath: p, ContentHash: e.Hash, Size: e.Size, ModTime: e.ModTime}
	}
	s.Dirs = DirHashes(tree.Hashes())
	return s
}

func TestSynchronizer_Detect_FirstRunAddsEverything(t *testing.T) {
	// Given: a fresh project with two files
	root := t.TempDir()
	write(t, root, "a.py", "def a(): pass\n")
	write(t, root, "b.py", "def b(): pass\n")
	s := newSync(t)

	// When: detecting against an empty snapshot
	tree, cs, err := s.Detect(context.Background(), root, nil, snapshot.New(root), false)

	// Then: both files are added
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py"}, cs.AddedPaths())
	assert.Empty(t, cs.Removed)
	assert.Empty(t, cs.Modified)
	assert.Len(t, tree.Files, 2)
	assert.Contains(t, tree.Dirs, "")
}

func TestSynchronizer_Detect_ModifiedAndRemoved(t *testing.T) {
	// Given: an indexed project
	root := t.TempDir()
	write(t, root, "a.py", "def a(): pass\n")
	write(t, root, "b.py", "def b(): pass\n")
	write(t, root, "pkg/c.go", "package pkg\n")
	s := newSync(t)
	tree, _, err := s.Detect(context.Background(), root, nil, nil, false)
	require.NoError(t, err)
	prev := snapshotOf(tree)

	// When: a.py changes and b.py is deleted
	write(t, root, "a.py", "def a():\n    return 1\n")
	require.NoError(t, os.Remove(filepath.Join(root, "b.py")))
	_, cs, err := s.Detect(context.Background(), root, nil, prev, false)

	// Then: the change set reflects exactly that
	require.NoError(t, err)
	assert.Empty(t, cs.Added)
	assert.Equal(t, []string{"a.py"}, cs.ModifiedPaths())
	assert.Equal(t, []string{"b.py"}, cs.RemovedPaths())
	assert.Equal(t, []string{"a.py"}, cs.ToIndex())
}

func TestSynchronizer_Detect_UnchangedIsEmpty(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.py", "x = 1\n")
	s := newSync(t)
	tree, _, err := s.Detect(context.Background(), root, nil, nil, false)
	require.NoError(t, err)

	tree2, cs, err := s.Detect(context.Background(), root, nil, snapshotOf(tree), false)

	require.NoError(t, err)
	assert.True(t, cs.IsEmpty())
	assert.Equal(t, 1, tree2.Reused)
}

func TestSynchronizer_Detect_ForceMarksEverything(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.py", "x = 1\n")
	write(t, root, "b.py", "y = 2\n")
	s := newSync(t)
	tree, _, err := s.Detect(context.Background(), root, nil, nil, false)
	require.NoError(t, err)
	prev := snapshotOf(tree)
	delete(prev.Files, "b.py")
	prev.Files["gone.py"] = &snapshot.FileRecord{RelativePath: "gone.py", ContentHash: "1"}

	_, cs, err := s.Detect(context.Background(), root, nil, prev, true)

	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, cs.ModifiedPaths())
	assert.Equal(t, []string{"b.py"}, cs.AddedPaths())
	assert.Equal(t, []string{"gone.py"}, cs.RemovedPaths())
}

func TestSynchronizer_Detect_HonorsPatterns(t *testing.T) {
	// Given: files matched by a caller-supplied pattern
	root := t.TempDir()
	write(t, root, "a.py", "x = 1\n")
	write(t, root, "gen/b.py", "y = 2\n")
	s := newSync(t)

	// When: ignoring gen/
	_, cs, err := s.Detect(context.Background(), root, []string{"gen/"}, nil, true)

	// Then: ignored files never appear, even when forced
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, cs.AddedPaths())
}

func TestSynchronizer_Scan_MetadataPreFilterReusesHash(t *testing.T) {
	// Given: a snapshot whose record matches size and mtime but not the hash
	root := t.TempDir()
	write(t, root, "a.py", "x = 1\n")
	info, err := os.Stat(filepath.Join(root, "a.py"))
	require.NoError(t, err)
	prev := snapshot.New(root)
	prev.Files["a.py"] = &snapshot.FileRecord{
		RelativePath: "a.py",
		ContentHash:  "cafebabecafebabe",
		Size:         info.Size(),
		ModTime:      info.ModTime().UnixNano(),
	}

	// When: scanning
	tree, err := newSync(t).Scan(context.Background(), root, nil, prev)

	// Then: the file is not re-read
	require.NoError(t, err)
	assert.Equal(t, "cafebabecafebabe", tree.Files["a.py"].Hash)
	assert.Equal(t, 1, tree.Reused)
}

func TestSynchronizer_Scan_Cancelled(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.py", "x = 1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSync(t).Scan(ctx, root, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiff_SkippedFilesAreNeverRemovedOrAdded(t *testing.T) {
	// Given: an unreadable file with a previous record and one without
	cur := &Tree{Files: map[string]*Entry{
		"a.py": {Path: "a.py", Hash: "h1", Skipped: true},
	}}
	cur.Dirs = DirHashes(cur.Hashes())
	prev := snapshot.New("/p")
	prev.Files["a.py"] = &snapshot.FileRecord{RelativePath: "a.py", ContentHash: "h1"}

	// Then: neither plain nor forced diffs report it
	assert.True(t, Diff(cur, prev, false).IsEmpty())
	assert.True(t, Diff(cur, prev, true).IsEmpty())
}

func TestDiff_EqualCompositeSkipsSubtree(t *testing.T) {
	// Given: a tree whose pkg/ composite matches the snapshot's record
	cur := &Tree{Files: map[string]*Entry{
		"main.go":  {Hash: "1"},
		"pkg/a.go": {Hash: "2"},
	}}
	cur.Dirs = DirHashes(cur.Hashes())
	prev := snapshot.New("/p")
	prev.Files["main.go"] = &snapshot.FileRecord{ContentHash: "0"}
	prev.Files["pkg/a.go"] = &snapshot.FileRecord{ContentHash: "stale"}
	prev.Dirs = map[string]string{"": "different", "pkg": cur.Dirs["pkg"]}

	// When: diffing
	cs := Diff(cur, prev, false)

	// Then: only the root-level file is inspected
	assert.Equal(t, []string{"main.go"}, cs.ModifiedPaths())
	assert.NotContains(t, cs.Modified, "pkg/a.go")
}

func TestDiff_NilPrevious(t *testing.T) {
	cur := &Tree{Files: map[string]*Entry{"a.go": {Hash: "1"}}}
	cur.Dirs = DirHashes(cur.Hashes())

	cs := Diff(cur, nil, false)

	assert.Equal(t, []string{"a.go"}, cs.AddedPaths())
}

func TestDirHashes_PropagateToAncestorsOnly(t *testing.T) {
	base := map[string]string{"a.go": "1", "x/b.go": "2", "x/y/c.go": "3", "z/d.go": "4"}
	before := DirHashes(base)

	changed := map[string]string{"a.go": "1", "x/b.go": "2", "x/y/c.go": "CHANGED", "z/d.go": "4"}
	after := DirHashes(changed)

	assert.Len(t, before, 4)
	assert.NotEqual(t, before[""], after[""])
	assert.NotEqual(t, before["x"], after["x"])
	assert.NotEqual(t, before["x/y"], after["x/y"])
	assert.Equal(t, before["z"], after["z"])
	assert.Equal(t, before, DirHashes(base))
}

func TestDirHashes_FileVersusDirectoryNamesDiffer(t *testing.T) {
	a := DirHashes(map[string]string{"x": "1"})
	b := DirHashes(map[string]string{"x/y": "1"})
	assert.NotEqual(t, a[""], b[""])
}

func TestHashFile_MatchesHashBytes(t *testing.T) {
	root := t.TempDir()
	write(t, root, "f.go", "package f\n")

	h, err := HashFile(filepath.Join(root, "f.go"))

	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("package f\n")), h)
	assert.Len(t, h, 16)

	_, err = HashFile(filepath.Join(root, "missing.go"))
	assert.Error(t, err)
}
