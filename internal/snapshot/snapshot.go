// Package snapshot persists the per-project record of indexed files: each
// file's content hash, stat metadata and the chunk ids stored for it.
// A snapshot is only written after the vector store accepted the matching
// changes, so it always describes what is actually searchable.
package snapshot

import (
	"sort"
	"time"
)

// FormatVersion is the on-disk format version. Documents with a different
// version are discarded and the project is re-indexed from scratch.
const FormatVersion = 2

// FileRecord describes one indexed file.
type FileRecord struct {
	RelativePath string   `json:"relative_path"`
	ContentHash  string   `json:"content_hash"`
	Size         int64    `json:"size"`
	ModTime      int64    `json:"mtime_ns"`
	ChunkIDs     []string `json:"chunk_ids"`
}

// Snapshot is the indexed state of one project.
type Snapshot struct {
	Version     int                    `json:"version"`
	ProjectPath string                 `json:"project_path"`
	Files       map[string]*FileRecord `json:"files"`
	// Dirs maps a slash-separated directory ("" is the root) to the
	// composite hash of everything below it.
	Dirs        map[string]string `json:"dirs,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// New returns an empty snapshot for a project.
func New(projectPath string) *Snapshot {
	return &Snapshot{
		Version:     FormatVersion,
		ProjectPath: projectPath,
		Files:       make(map[string]*FileRecord),
		Dirs:        make(map[string]string),
	}
}

// IsEmpty reports whether no files are recorded.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Files) == 0
}

// Get returns the record for a relative path.
func (s *Snapshot) Get(rel string) (*FileRecord, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.Files[rel]
	return r, ok
}

// TotalChunks counts chunk ids across all files.
func (s *Snapshot) TotalChunks() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, r := range s.Files {
		n += len(r.ChunkIDs)
	}
	return n
}

// Paths returns the recorded relative paths in sorted order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Files))
	for p := range s.Files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		Version:     s.Version,
		ProjectPath: s.ProjectPath,
		Files:       make(map[string]*FileRecord, len(s.Files)),
		Dirs:        make(map[string]string, len(s.Dirs)),
		GeneratedAt: s.GeneratedAt,
	}
	for p, r := range s.Files {
		rc := *r
		rc.ChunkIDs = append([]string(nil), r.ChunkIDs...)
		c.Files[p] = &rc
	}
	for d, h := range s.Dirs {
		c.Dirs[d] = h
	}
	return c
}
