package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// plainStep limits plain output to one line per this fraction of a stage.
const plainStep = 0.1

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	stage    Stage
	started  bool
	lastFrac float64
	errors   int
	warnings int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress prints the first and last report of each stage and one
// line per tenth in between, so large projects do not flood the log.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || event.Stage != r.stage {
		r.started = true
		r.stage = event.Stage
		r.lastFrac = -1
	}

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}

	if event.Total <= 0 {
		if msg != "" {
			_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
		}
		return
	}

	frac := float64(event.Current) / float64(event.Total)
	if event.Current < event.Total && r.lastFrac >= 0 && frac-r.lastFrac < plainStep {
		return
	}
	r.lastFrac = frac

	line := fmt.Sprintf("[%s] %d/%d %s", event.Stage.Icon(), event.Current, event.Total, event.Stage.Unit())
	if msg != "" {
		line += " - " + msg
	}
	_, _ = fmt.Fprintln(r.out, line)
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
		r.warnings++
	} else {
		r.errors++
	}

	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files indexed, %d chunks total in %s\n",
		stats.Files, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	_, _ = fmt.Fprintf(r.out, "Changes: +%d added, ~%d modified, -%d removed\n",
		stats.Added, stats.Modified, stats.Removed)

	if stats.Skipped > 0 || stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, "Not indexed: %d skipped (unreadable), %d failed (embedding); they are retried on the next run\n",
			stats.Skipped, stats.Failed)
	}
	if r.errors > 0 || r.warnings > 0 {
		_, _ = fmt.Fprintf(r.out, "Reported: %d errors, %d warnings\n", r.errors, r.warnings)
	}
	if stats.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%d dims)\n", stats.Model, stats.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
