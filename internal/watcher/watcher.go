package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/gitignore"
	"github.com/Aman-CERP/codecontext/internal/scanner"
)

// Watcher reports debounced batches of changes under one project root.
type Watcher struct {
	opts      Options
	debouncer *Debouncer
	fs        *fsnotify.Watcher
	poller    *Poller
	errs      chan error

	mu      sync.RWMutex
	root    string
	ignore  *gitignore.Matcher
	stopped bool
	stopCh  chan struct{}
}

// New creates a Watcher. It uses fsnotify when available and polling otherwise.
func New(opts Options) (*Watcher, error) {
	opts = opts.withDefaults()
	w := &Watcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce, opts.BufferSize),
		errs:      make(chan error, 16),
		ignore:    gitignore.New(),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fs = fsw
			return w, nil
		}
		slog.Warn("watch_fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.poller = NewPoller(opts.PollInterval, w.ignored)
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fs != nil {
		return "fsnotify"
	}
	return "polling"
}

// Batches returns debounced event batches. It is closed by Stop.
func (w *Watcher) Batches() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Start watches root until ctx is done or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context, root string) error {
	abs, err := scanner.ValidateRoot(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.root = abs
	w.mu.Unlock()
	w.loadIgnore()

	slog.Info("watch_started", slog.String("path", abs), slog.String("mode", w.Mode()))
	if w.fs != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return errors.New(errors.ErrCodeInternal, "failed to watch project", err).WithDetail("path", w.root)
	}
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case ev, ok := <-w.poller.Events():
				if !ok {
					return
				}
				w.add(ev)
			}
		}
	}()
	err := w.poller.Start(ctx, w.root)
	if ctx.Err() != nil {
		_ = w.Stop()
	}
	return err
}

// handle converts an fsnotify event. Chmod events are dropped; new
// directories are added to the watch list.
func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
		if isDir && !w.ignored(rel, true) {
			if err := w.addTree(ev.Name); err != nil {
				w.emitError(err)
			}
		}
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	w.add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// add filters an event and queues it. Ignore and config files are turned
// into their dedicated operations.
func (w *Watcher) add(ev FileEvent) {
	switch filepath.Base(ev.Path) {
	case ".gitignore":
		w.loadIgnore()
		ev.Operation = OpIgnoreChange
	case config.ProjectConfigName:
		ev.Operation = OpConfigChange
	default:
		if w.ignored(ev.Path, ev.IsDir) {
			return
		}
	}
	w.debouncer.Add(ev)
}

// addTree registers dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(w.root, p)
		if rel != "." && w.ignored(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		return w.fs.Add(p)
	})
}

// ignored applies the scanner's rules: hidden entries, built-in excludes,
// extra patterns and .gitignore files.
func (w *Watcher) ignored(rel string, isDir bool) bool {
	if rel == "" || rel == "." {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ignore.Match(rel, isDir)
}

// loadIgnore rebuilds the matcher from the built-in excludes, the extra
// patterns and every .gitignore in the project.
func (w *Watcher) loadIgnore() {
	m := gitignore.New()
	m.AddAll(scanner.DefaultExcludes)
	m.AddAll(w.opts.Ignore)

	w.mu.RLock()
	root := w.root
	w.mu.RUnlock()

	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.IsDir() || d.Name() != ".gitignore" {
			return nil
		}
		base, _ := filepath.Rel(root, filepath.Dir(p))
		if base == "." {
			base = ""
		}
		if err := m.AddFile(p, base); err != nil {
			slog.Warn("watch_gitignore_unreadable", slog.String("path", p), slog.String("error", err.Error()))
		}
		return nil
	})

	w.mu.Lock()
	w.ignore = m
	w.mu.Unlock()
}

// alwaysWatched reports whether rel is a file whose changes matter even
// though ignore rules would hide it.
func alwaysWatched(rel string) bool {
	switch filepath.Base(rel) {
	case ".gitignore", config.ProjectConfigName:
		return true
	}
	return false
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errs <- err:
	default:
	}
}

// Stop ends watching and closes the batch and error channels. It is idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fs != nil {
		_ = w.fs.Close()
	}
	if w.poller != nil {
		_ = w.poller.Stop()
	}
	close(w.errs)
	return nil
}
