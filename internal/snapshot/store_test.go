package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

func sample(project string) *Snapshot {
	s := New(project)
	s.Files["a.py"] = &FileRecord{RelativePath: "a.py", ContentHash: "aa", Size: 10, ModTime: 1, ChunkIDs: []string{"c1", "c2"}}
	s.Files["pkg/b.go"] = &FileRecord{RelativePath: "pkg/b.go", ContentHash: "bb", Size: 20, ModTime: 2, ChunkIDs: []string{"c3"}}
	s.Dirs[""] = "root"
	s.Dirs["pkg"] = "pkg"
	return s
}

func TestFileStore_Load_MissingIsEmpty(t *testing.T) {
	store := NewFileStore(t.TempDir())

	snap, err := store.Load(context.Background(), "/projects/x")

	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
	assert.Equal(t, FormatVersion, snap.Version)
	assert.False(t, store.Exists("/projects/x"))
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	// Given: a saved snapshot
	store := NewFileStore(filepath.Join(t.TempDir(), "snapshots"))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	require.NoError(t, store.Save(context.Background(), sample("/projects/x")))

	// When: loading it back
	snap, err := store.Load(context.Background(), "/projects/x")

	// Then: records and directory hashes survive
	require.NoError(t, err)
	assert.True(t, store.Exists("/projects/x"))
	assert.Equal(t, []string{"a.py", "pkg/b.go"}, snap.Paths())
	assert.Equal(t, 3, snap.TotalChunks())
	assert.Equal(t, "pkg", snap.Dirs["pkg"])
	assert.Equal(t, fixed, snap.GeneratedAt)

	// And: no temp files are left behind
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_SeparateProjectsSeparateFiles(t *testing.T) {
	store := NewFileStore(t.TempDir())
	assert.NotEqual(t, store.PathFor("/a"), store.PathFor("/b"))
	assert.Equal(t, store.PathFor("/a/"), store.PathFor("/a"))
	assert.Len(t, Key("/a"), 16)
}

func TestFileStore_Load_VersionMismatchIsEmpty(t *testing.T) {
	store := NewFileStore(t.TempDir())
	path := store.PathFor("/p")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"files":{"a.py":{"content_hash":"x"}}}`), 0o644))

	snap, err := store.Load(context.Background(), "/p")

	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestFileStore_Load_CorruptIsFileSystemError(t *testing.T) {
	store := NewFileStore(t.TempDir())
	require.NoError(t, os.WriteFile(store.PathFor("/p"), []byte("{not json"), 0o644))

	_, err := store.Load(context.Background(), "/p")

	require.Error(t, err)
	assert.Equal(t, errors.KindFileSystem, errors.KindOf(err))
	assert.True(t, errors.Is(err, errors.ErrCodeSnapshotCorrupt))
}

func TestFileStore_Delete(t *testing.T) {
	store := NewFileStore(t.TempDir())
	require.NoError(t, store.Save(context.Background(), sample("/p")))

	require.NoError(t, store.Delete(context.Background(), "/p"))
	assert.False(t, store.Exists("/p"))
	assert.NoError(t, store.Delete(context.Background(), "/p"))
}

func TestFileStore_CancelledContext(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Save(ctx, sample("/p")), context.Canceled)
	assert.False(t, store.Exists("/p"))
}

func TestSnapshot_CloneIsDeep(t *testing.T) {
	orig := sample("/p")
	c := orig.Clone()

	c.Files["a.py"].ChunkIDs[0] = "changed"
	c.Dirs[""] = "changed"
	delete(c.Files, "pkg/b.go")

	assert.Equal(t, "c1", orig.Files["a.py"].ChunkIDs[0])
	assert.Equal(t, "root", orig.Dirs[""])
	assert.Len(t, orig.Files, 2)
}
