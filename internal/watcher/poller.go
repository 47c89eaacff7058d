package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// Poller detects changes by walking the project on an interval and
// comparing size and mtime.
type Poller struct {
	interval time.Duration
	skip     func(rel string, isDir bool) bool
	events   chan FileEvent

	mu      sync.Mutex
	state   map[string]entryState
	stopped bool
	stopCh  chan struct{}
}

type entryState struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPoller creates a poller. skip may be nil.
func NewPoller(interval time.Duration, skip func(rel string, isDir bool) bool) *Poller {
	if skip == nil {
		skip = func(string, bool) bool { return false }
	}
	return &Poller{
		interval: interval,
		skip:     skip,
		events:   make(chan FileEvent, 256),
		state:    make(map[string]entryState),
		stopCh:   make(chan struct{}),
	}
}

// Events returns raw, undebounced events.
func (p *Poller) Events() <-chan FileEvent {
	return p.events
}

// Start records a baseline and then polls until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context, root string) error {
	p.mu.Lock()
	p.state = p.walk(root)
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.Poll(root)
		}
	}
}

// Poll walks root once and emits the differences to the previous walk.
func (p *Poller) Poll(root string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	current := p.walk(root)
	now := time.Now()
	for rel, cur := range current {
		prev, ok := p.state[rel]
		switch {
		case !ok:
			p.emit(FileEvent{Path: rel, Operation: OpCreate, IsDir: cur.isDir, Timestamp: now})
		case !cur.isDir && (prev.size != cur.size || !prev.modTime.Equal(cur.modTime)):
			p.emit(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel, prev := range p.state {
		if _, ok := current[rel]; !ok {
			p.emit(FileEvent{Path: rel, Operation: OpDelete, IsDir: prev.isDir, Timestamp: now})
		}
	}
	p.state = current
}

func (p *Poller) walk(root string) map[string]entryState {
	out := make(map[string]entryState, len(p.state))
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if p.skip(rel, d.IsDir()) && !alwaysWatched(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[rel] = entryState{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	if err != nil {
		slog.Warn("watch_poll_failed", slog.Any("error", errors.FileError(root, err)))
	}
	return out
}

// emit must be called with p.mu held.
func (p *Poller) emit(ev FileEvent) {
	select {
	case p.events <- ev:
	default:
		slog.Warn("watch_poll_event_dropped", slog.String("path", ev.Path), slog.String("op", ev.Operation.String()))
	}
}

// Stop ends polling. It is idempotent.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	return nil
}
