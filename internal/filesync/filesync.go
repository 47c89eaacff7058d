// Package filesync detects which project files changed since the last
// indexing run. It walks the project, hashes file contents on a bounded
// worker pool (reusing previous hashes when size and mtime are unchanged),
// aggregates the hashes into a directory hash tree and diffs that tree
// against the stored snapshot.
package filesync

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/scanner"
	"github.com/Aman-CERP/codecontext/internal/snapshot"
)

// Entry is a scanned, hashed file.
type Entry struct {
	Path     string
	AbsPath  string
	Size     int64
	ModTime  int64 // unix ns
	Hash     string
	Language string
	// Skipped marks a file that could not be read. It carries its previous
	// hash so the hash tree and diff treat it as unchanged.
	Skipped bool
}

// Tree is the hashed state of a project on disk.
type Tree struct {
	Root  string
	Files map[string]*Entry
	Dirs  map[string]string
	// Skipped lists unreadable files, sorted.
	Skipped []string
	// Reused counts files whose hash came from the metadata pre-filter.
	Reused int
}

func (t *Tree) paths() []string {
	out := make([]string, 0, len(t.Files))
	for p := range t.Files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Hashes returns the content hash of every readable file.
func (t *Tree) Hashes() map[string]string {
	out := make(map[string]string, len(t.Files))
	for p, e := range t.Files {
		out[p] = e.Hash
	}
	return out
}

// Options configures a Synchronizer.
type Options struct {
	// Workers bounds concurrent hashing (0 = NumCPU).
	Workers int
	// Ignore holds patterns applied to every scan.
	Ignore []string
	// RespectGitignore loads the project's .gitignore files.
	RespectGitignore bool
	// MaxFileSize skips larger files (0 = scanner default).
	MaxFileSize int64
}

// Synchronizer scans projects and computes change sets.
type Synchronizer struct {
	scanner *scanner.Scanner
	opts    Options
}

// New creates a Synchronizer over a shared scanner.
func New(sc *scanner.Scanner, opts Options) *Synchronizer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Synchronizer{scanner: sc, opts: opts}
}

// Scan walks root, excluding ignored files, and hashes what remains.
// Files whose size and mtime match the previous record reuse its hash
// without being read.
func (s *Synchronizer) Scan(ctx context.Context, root string, patterns []string, previous *snapshot.Snapshot) (*Tree, error) {
	start := time.Now()
	ignore := append(append([]string(nil), s.opts.Ignore...), patterns...)

	files, err := s.scanner.Collect(ctx, scanner.Options{
		Root:             root,
		Ignore:           ignore,
		RespectGitignore: s.opts.RespectGitignore,
		MaxFileSize:      s.opts.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}

	tree := &Tree{Root: root, Files: make(map[string]*Entry, len(files))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e := &Entry{
				Path:     f.Path,
				AbsPath:  f.AbsPath,
				Size:     f.Size,
				ModTime:  f.ModTime.UnixNano(),
				Language: f.Language,
			}

			prev, hasPrev := previous.Get(f.Path)
			reused := false
			if hasPrev && prev.ContentHash != "" && prev.Size == e.Size && prev.ModTime == e.ModTime {
				e.Hash = prev.ContentHash
				reused = true
			} else {
				h, err := HashFile(f.AbsPath)
				if err != nil {
					slog.LogAttrs(gctx, slog.LevelWarn, "file_unreadable",
						errors.LogAttrs(errors.FileError(f.Path, err))...)
					if !hasPrev {
						mu.Lock()
						tree.Skipped = append(tree.Skipped, f.Path)
						mu.Unlock()
						return nil
					}
					e.Hash = prev.ContentHash
					e.Skipped = true
				} else {
					e.Hash = h
				}
			}

			mu.Lock()
			tree.Files[f.Path] = e
			if reused {
				tree.Reused++
			}
			if e.Skipped {
				tree.Skipped = append(tree.Skipped, f.Path)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(tree.Skipped)
	tree.Dirs = DirHashes(tree.Hashes())

	slog.Debug("sync_scan_complete",
		slog.String("root", root),
		slog.Int("files", len(tree.Files)),
		slog.Int("reused_hashes", tree.Reused),
		slog.Int("skipped", len(tree.Skipped)),
		slog.Duration("duration", time.Since(start)))
	return tree, nil
}

// Detect scans root and diffs it against previous in one step.
func (s *Synchronizer) Detect(ctx context.Context, root string, patterns []string, previous *snapshot.Snapshot, force bool) (*Tree, *ChangeSet, error) {
	tree, err := s.Scan(ctx, root, patterns, previous)
	if err != nil {
		return nil, nil, err
	}
	return tree, Diff(tree, previous, force), nil
}
