package scanner

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/gitignore"
)

// gitignoreCacheSize bounds the number of parsed .gitignore files kept.
const gitignoreCacheSize = 1000

// Scanner walks project trees. It is safe for concurrent use and caches
// parsed .gitignore files across scans.
type Scanner struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *ignoreFile]
}

// ignoreFile is a parsed .gitignore together with the mtime it was read at.
type ignoreFile struct {
	modTime  int64
	patterns []string
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *ignoreFile](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	return &Scanner{cache: cache}, nil
}

// Scan streams every indexable file under opts.Root. The channel is closed
// when the walk finishes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	root, err := ValidateRoot(opts.Root)
	if err != nil {
		return nil, err
	}
	opts.Root = root
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, opts, results)
	}()
	return results, nil
}

// Collect runs Scan and gathers all files. Walk errors abort collection.
func (s *Scanner) Collect(ctx context.Context, opts Options) ([]*File, error) {
	ch, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}
	var files []*File
	var walkErr error
	for r := range ch {
		if r.Err != nil {
			walkErr = r.Err
			continue
		}
		files = append(files, r.File)
	}
	if walkErr != nil {
		return nil, walkErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// Matcher builds the ignore matcher for a root: defaults, extra patterns
// and, when requested, every .gitignore in the tree. The watcher uses it to
// filter events with the same rules as a scan.
func (s *Scanner) Matcher(root string, extra []string, respectGitignore bool) *gitignore.Matcher {
	m := gitignore.New()
	m.AddAll(DefaultExcludes)
	m.AddAll(extra)
	if respectGitignore {
		s.addGitignore(m, root, "")
	}
	return m
}

// Invalidate drops cached .gitignore contents.
func (s *Scanner) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}

// ValidateRoot resolves root to an absolute path and checks that it is a
// readable directory.
func ValidateRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.New(errors.ErrCodePathNotFound, "cannot resolve path "+root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", errors.New(errors.ErrCodePathNotFound, "path does not exist: "+abs, err).
				WithDetail("path", abs)
		}
		return "", errors.New(errors.ErrCodePathUnreadable, "cannot access path: "+abs, err).
			WithDetail("path", abs)
	}
	if !info.IsDir() {
		return "", errors.New(errors.ErrCodePathNotDirectory, "path is not a directory: "+abs, nil).
			WithDetail("path", abs)
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", errors.New(errors.ErrCodePathUnreadable, "directory is not readable: "+abs, err).
			WithDetail("path", abs)
	}
	_ = f.Close()
	return abs, nil
}

func (s *Scanner) walk(ctx context.Context, opts Options, results chan<- Result) {
	m := gitignore.New()
	m.AddAll(DefaultExcludes)
	m.AddAll(opts.Ignore)
	sensitive := gitignore.New()
	sensitive.AddAll(sensitivePatterns)

	if opts.RespectGitignore {
		s.loadIgnoreFile(m, opts.Root, "")
	}

	err := filepath.WalkDir(opts.Root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable subdirectories are skipped, not fatal.
			slog.Debug("scan_entry_unreadable", slog.String("path", p), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(opts.Root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if (!opts.IncludeHidden && isHidden(d.Name())) || d.Name() == ".git" || m.Match(rel, true) {
				return filepath.SkipDir
			}
			if opts.RespectGitignore {
				s.loadIgnoreFile(m, p, rel)
			}
			return nil
		}

		if !opts.IncludeHidden && isHidden(d.Name()) {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}

		lang := DetectLanguage(rel)
		if lang == "" || m.Match(rel, false) || sensitive.Match(path.Base(rel), false) {
			return nil
		}

		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			return nil
		}
		if info.Size() > opts.MaxFileSize {
			slog.Debug("scan_file_too_large", slog.String("path", rel), slog.Int64("size", info.Size()))
			return nil
		}
		if isBinary(p) {
			return nil
		}

		f := &File{
			Path:     rel,
			AbsPath:  p,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Language: lang,
		}
		select {
		case results <- Result{File: f}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded) {
		select {
		case results <- Result{Err: errors.New(errors.ErrCodePathUnreadable, "scan failed", err)}:
		case <-ctx.Done():
		}
	}
}

// addGitignore loads .gitignore files for dir and all of its subdirectories.
func (s *Scanner) addGitignore(m *gitignore.Matcher, dir, base string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" || (p != dir && isHidden(d.Name())) {
			return filepath.SkipDir
		}
		rel, _ := filepath.Rel(dir, p)
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = base
		} else if base != "" {
			rel = base + "/" + rel
		}
		if rel != "" && m.Match(rel, true) {
			return filepath.SkipDir
		}
		s.loadIgnoreFile(m, p, rel)
		return nil
	})
}

// loadIgnoreFile adds dir/.gitignore to m, scoped to base.
func (s *Scanner) loadIgnoreFile(m *gitignore.Matcher, dir, base string) {
	file := filepath.Join(dir, ".gitignore")
	info, err := os.Stat(file)
	if err != nil {
		return
	}

	s.mu.Lock()
	cached, ok := s.cache.Get(file)
	s.mu.Unlock()
	if !ok || cached.modTime != info.ModTime().UnixNano() {
		data, err := os.ReadFile(file)
		if err != nil {
			slog.Debug("gitignore_unreadable", slog.String("path", file), slog.String("error", err.Error()))
			return
		}
		cached = &ignoreFile{
			modTime:  info.ModTime().UnixNano(),
			patterns: strings.Split(string(data), "\n"),
		}
		s.mu.Lock()
		s.cache.Add(file, cached)
		s.mu.Unlock()
	}

	for _, p := range cached.patterns {
		m.AddWithBase(p, base)
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// isBinary reports whether the first 512 bytes contain a NUL byte.
// Files that cannot be opened are passed through so hashing reports them.
func isBinary(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}
