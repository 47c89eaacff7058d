package snapshot

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// Store loads and saves snapshots keyed by absolute project path.
type Store interface {
	Load(ctx context.Context, projectPath string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, projectPath string) error
	Exists(projectPath string) bool
}

// FileStore keeps one JSON document per project in a directory.
type FileStore struct {
	dir string
	now func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir. The directory is created lazily.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

// Dir returns the snapshot directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// PathFor returns the document path for a project.
func (s *FileStore) PathFor(projectPath string) string {
	return filepath.Join(s.dir, Key(projectPath)+".json")
}

// Key is the 16-hex-digit xxhash64 of the cleaned absolute project path.
func Key(projectPath string) string {
	if abs, err := filepath.Abs(projectPath); err == nil {
		projectPath = abs
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(filepath.Clean(projectPath)))
}

// Exists reports whether a snapshot document exists for the project.
func (s *FileStore) Exists(projectPath string) bool {
	_, err := os.Stat(s.PathFor(projectPath))
	return err == nil
}

// Load reads the snapshot for a project. A missing document or one written
// by another format version yields an empty snapshot.
func (s *FileStore) Load(ctx context.Context, projectPath string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.PathFor(projectPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return New(projectPath), nil
		}
		return nil, errors.New(errors.ErrCodeSnapshotCorrupt, "cannot read snapshot", err).
			WithDetail("path", path)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.New(errors.ErrCodeSnapshotCorrupt, "snapshot is not valid JSON", err).
			WithDetail("path", path).
			WithSuggestion("run 'codecontext clear' and index again")
	}
	if snap.Version != FormatVersion {
		slog.Warn("snapshot_version_mismatch",
			slog.String("path", path),
			slog.Int("found", snap.Version),
			slog.Int("expected", FormatVersion))
		return New(projectPath), nil
	}

	if snap.Files == nil {
		snap.Files = make(map[string]*FileRecord)
	}
	if snap.Dirs == nil {
		snap.Dirs = make(map[string]string)
	}
	for p, r := range snap.Files {
		if r == nil {
			delete(snap.Files, p)
			continue
		}
		r.RelativePath = p
	}
	snap.ProjectPath = projectPath
	return &snap, nil
}

// Save writes the snapshot atomically (temp file + rename).
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap == nil {
		return errors.InternalError("nil snapshot", nil)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.New(errors.ErrCodeSnapshotWrite, "cannot create snapshot directory", err).
			WithDetail("path", s.dir)
	}

	snap.Version = FormatVersion
	snap.GeneratedAt = s.now().UTC()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.New(errors.ErrCodeSnapshotWrite, "cannot encode snapshot", err)
	}

	path := s.PathFor(snap.ProjectPath)
	tmp := path + "." + strconv.Itoa(os.Getpid()) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return errors.New(errors.ErrCodeSnapshotWrite, "cannot write snapshot", err).WithDetail("path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.New(errors.ErrCodeSnapshotWrite, "cannot replace snapshot", err).WithDetail("path", path)
	}

	slog.Debug("snapshot_saved",
		slog.String("path", path),
		slog.Int("files", len(snap.Files)),
		slog.Int("chunks", snap.TotalChunks()))
	return nil
}

// Delete removes the project's snapshot. Deleting a missing one is not an error.
func (s *FileStore) Delete(ctx context.Context, projectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.PathFor(projectPath)
	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.New(errors.ErrCodeSnapshotWrite, "cannot delete snapshot", err).WithDetail("path", path)
	}
	return nil
}
