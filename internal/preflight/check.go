// Package preflight checks that a project can be indexed before a long run
// starts: the project is readable, the data directory is writable with room
// to spare, file descriptors suffice for the scanner and the embedding
// provider answers.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/embed"
	"github.com/Aman-CERP/codecontext/internal/scanner"
)

const (
	// MinDiskSpaceBytes is the free space required under the data directory.
	MinDiskSpaceBytes = 100 * 1024 * 1024

	// MinFileDescriptors is the descriptor limit below which hashing
	// workers and open collections may run out.
	MinFileDescriptors = 1024

	// probeTimeout bounds the embedding provider check.
	probeTimeout = 5 * time.Second
)

// CheckStatus is the outcome of one check.
type CheckStatus int

// Check outcomes. Only a failed required check blocks indexing.
const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns PASS, WARN or FAIL.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether a required check failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs the checks for one configuration.
type Checker struct {
	cfg      *config.Config
	embedder embed.Embedder
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedder probes e instead of the provider built from the configuration.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) { c.embedder = e }
}

// New creates a Checker for cfg.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against projectPath.
func (c *Checker) RunAll(ctx context.Context, projectPath string) []CheckResult {
	return []CheckResult{
		c.CheckProject(projectPath),
		c.CheckConfig(),
		c.CheckDataDir(),
		c.CheckDiskSpace(),
		c.CheckFileDescriptors(),
		c.CheckEmbedder(ctx),
	}
}

// CheckProject verifies the project root exists and is a readable directory.
func (c *Checker) CheckProject(path string) CheckResult {
	r := CheckResult{Name: "project", Required: true}
	root, err := scanner.ValidateRoot(path)
	if err != nil {
		r.Status = StatusFail
		r.Message = err.Error()
		return r
	}
	r.Message = root
	return r
}

// CheckConfig validates the loaded configuration.
func (c *Checker) CheckConfig() CheckResult {
	r := CheckResult{Name: "config", Required: true}
	if err := c.cfg.Validate(); err != nil {
		r.Status = StatusFail
		r.Message = err.Error()
		return r
	}
	r.Message = fmt.Sprintf("provider %s, lexical backend %s", c.cfg.Embeddings.Provider, c.cfg.Search.LexicalBackend)
	return r
}

// CheckDataDir verifies the data directory can be created and written.
func (c *Checker) CheckDataDir() CheckResult {
	dir := c.cfg.Storage.DataDir
	r := CheckResult{Name: "data_dir", Required: true, Details: dir}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot create: %v", err)
		return r
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("not writable: %v", err)
		return r
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	r.Message = "writable"
	return r
}

// CheckDiskSpace verifies free space under the data directory.
func (c *Checker) CheckDiskSpace() CheckResult {
	r := CheckResult{Name: "disk_space", Required: true}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(existingParent(c.cfg.Storage.DataDir), &stat); err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("cannot check disk space: %v", err)
		return r
	}

	available := stat.Bavail * uint64(stat.Bsize)
	r.Message = fmt.Sprintf("%s free (minimum: 100 MB)", formatBytes(available))
	if available < MinDiskSpaceBytes {
		r.Status = StatusFail
	}
	return r
}

// CheckFileDescriptors verifies the open file limit.
func (c *Checker) CheckFileDescriptors() CheckResult {
	r := CheckResult{Name: "file_descriptors", Required: false}

	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("cannot check file descriptor limit: %v", err)
		return r
	}

	r.Message = fmt.Sprintf("%d (minimum: %d)", limit.Cur, MinFileDescriptors)
	if limit.Cur < MinFileDescriptors {
		r.Status = StatusWarn
		r.Details = "Run 'ulimit -n 10240' to increase the limit"
	}
	return r
}

// CheckEmbedder verifies the embedding provider answers.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	r := CheckResult{Name: "embedder", Required: true}

	e := c.embedder
	if e == nil {
		built, err := embed.NewEmbedder(c.cfg)
		if err != nil {
			r.Status = StatusFail
			r.Message = err.Error()
			return r
		}
		defer func() { _ = built.Close() }()
		e = built
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := embed.Check(ctx, e); err != nil {
		r.Status = StatusFail
		r.Message = err.Error()
		r.Details = fmt.Sprintf("provider %s; set embeddings.provider to 'static' to index offline", c.cfg.Embeddings.Provider)
		return r
	}

	r.Message = fmt.Sprintf("%s (%s)", e.ModelName(), c.cfg.Embeddings.Provider)
	return r
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// Summary returns "failed", "ready_with_warnings" or "ready".
func Summary(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// Print writes one line per check and the summary to w.
func Print(w io.Writer, results []CheckResult, verbose bool) {
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if verbose && r.Details != "" {
			_, _ = fmt.Fprintf(w, "       %s\n", r.Details)
		}
	}
	_, _ = fmt.Fprintf(w, "\nStatus: %s\n", strings.ToUpper(Summary(results)))
}

// existingParent walks up from path to the nearest directory that exists.
func existingParent(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
