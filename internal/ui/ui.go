// Package ui renders indexing progress and index status in the terminal:
// a bubbletea view for interactive terminals and plain lines for pipes and CI.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/codecontext/internal/index"
)

// Stage is an indexing stage in pipeline order.
type Stage int

const (
	StageScanning Stage = iota
	StageChunking
	StageEmbedding
	StageStoring
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageChunking:
		return "Chunking"
	case StageEmbedding:
		return "Embedding"
	case StageStoring:
		return "Storing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageChunking:
		return "CHUNK"
	case StageEmbedding:
		return "EMBED"
	case StageStoring:
		return "STORE"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// Unit names what Current and Total count in this stage.
func (s Stage) Unit() string {
	if s == StageChunking {
		return "files"
	}
	return "chunks"
}

// StageFromIndex maps a pipeline stage name to a Stage.
func StageFromIndex(s index.Stage) Stage {
	switch s {
	case index.StageChunking:
		return StageChunking
	case index.StageEmbedding:
		return StageEmbedding
	case index.StageStoring:
		return StageStoring
	case index.StageComplete:
		return StageComplete
	default:
		return StageScanning
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent represents an error during processing.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// CompletionStats contains final indexing statistics.
type CompletionStats struct {
	Files    int
	Chunks   int
	Added    int
	Modified int
	Removed  int
	Skipped  int
	Failed   int
	Duration time.Duration

	Model      string
	Dimensions int
}

// CompletionFromStats converts the result of an indexing run.
func CompletionFromStats(s *index.Stats) CompletionStats {
	if s == nil {
		return CompletionStats{}
	}
	return CompletionStats{
		Files:    s.IndexedFiles,
		Chunks:   s.TotalChunks,
		Added:    s.Added,
		Modified: s.Modified,
		Removed:  s.Removed,
		Skipped:  s.Skipped,
		Failed:   s.Failed,
		Duration: s.Duration,
	}
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// ProgressFunc adapts r to the indexing pipeline's progress callback.
func ProgressFunc(r Renderer) index.ProgressFunc {
	return func(p index.Progress) {
		r.UpdateProgress(ProgressEvent{
			Stage:       StageFromIndex(p.Stage),
			Current:     p.Current,
			Total:       p.Total,
			CurrentFile: p.File,
		})
	}
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	ProjectDir string // shown in the TUI header
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithProjectDir sets the project directory path to display in header.
func WithProjectDir(dir string) ConfigOption {
	return func(c *Config) {
		c.ProjectDir = dir
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals and a plain
// text renderer for CI, pipes, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
