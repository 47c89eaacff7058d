// Package async runs indexing in the background and tracks its progress, so
// long-lived callers such as the MCP server can answer status queries while a
// run is in flight.
package async

import (
	"sync"
	"time"

	"github.com/Aman-CERP/codecontext/internal/index"
)

// IndexingStatus represents the overall indexing state.
type IndexingStatus string

const (
	// StatusIdle means no run has been started.
	StatusIdle IndexingStatus = "idle"
	// StatusIndexing indicates indexing is in progress.
	StatusIndexing IndexingStatus = "indexing"
	// StatusReady indicates the last run completed.
	StatusReady IndexingStatus = "ready"
	// StatusError indicates the last run failed.
	StatusError IndexingStatus = "error"
)

// stageSpan maps each pipeline stage to its share of overall progress,
// as [start, end) percentages.
var stageSpan = map[index.Stage][2]float64{
	index.StageScanning:  {0, 5},
	index.StageChunking:  {5, 40},
	index.StageEmbedding: {40, 90},
	index.StageStoring:   {90, 100},
	index.StageComplete:  {100, 100},
}

// IndexProgressSnapshot is an immutable snapshot of indexing progress.
type IndexProgressSnapshot struct {
	Status         string    `json:"status"`
	Stage          string    `json:"stage,omitempty"`
	Current        int       `json:"current"`
	Total          int       `json:"total"`
	File           string    `json:"file,omitempty"`
	ProgressPct    float64   `json:"progress_pct"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Summary        string    `json:"summary,omitempty"`
}

// IndexProgress provides thread-safe tracking of one project's indexing.
type IndexProgress struct {
	mu sync.RWMutex

	status     IndexingStatus
	stage      index.Stage
	current    int
	total      int
	file       string
	startTime  time.Time
	finishTime time.Time
	errMessage string
	summary    string
}

// NewIndexProgress creates an idle progress tracker.
func NewIndexProgress() *IndexProgress {
	return &IndexProgress{status: StatusIdle}
}

// Begin resets the tracker for a new run.
func (p *IndexProgress) Begin() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIndexing
	p.stage = index.StageScanning
	p.current, p.total = 0, 0
	p.file = ""
	p.startTime = time.Now()
	p.finishTime = time.Time{}
	p.errMessage = ""
	p.summary = ""
}

// Observe records a pipeline progress report. It has the shape of
// index.ProgressFunc and is safe for concurrent use.
func (p *IndexProgress) Observe(r index.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusIndexing {
		return
	}
	p.stage = r.Stage
	p.current = r.Current
	p.total = r.Total
	p.file = r.File
}

// SetError marks the run as failed.
func (p *IndexProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errMessage = message
	p.finishTime = time.Now()
}

// SetReady marks the run as complete with a one-line summary.
func (p *IndexProgress) SetReady(summary string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
	p.stage = index.StageComplete
	p.summary = summary
	p.finishTime = time.Now()
}

// IsIndexing returns true if a run is in progress.
func (p *IndexProgress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns an immutable copy of the current progress state.
func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := IndexProgressSnapshot{
		Status:       string(p.status),
		Stage:        string(p.stage),
		Current:      p.current,
		Total:        p.total,
		File:         p.file,
		StartedAt:    p.startTime,
		FinishedAt:   p.finishTime,
		ErrorMessage: p.errMessage,
		Summary:      p.summary,
	}

	switch p.status {
	case StatusReady:
		snap.ProgressPct = 100
	case StatusIndexing, StatusError:
		snap.ProgressPct = overallPercent(p.stage, p.current, p.total)
	}

	if !p.startTime.IsZero() {
		end := p.finishTime
		if end.IsZero() {
			end = time.Now()
		}
		snap.ElapsedSeconds = int(end.Sub(p.startTime).Seconds())
	}
	return snap
}

// overallPercent places the stage-local fraction inside the stage's span.
func overallPercent(stage index.Stage, current, total int) float64 {
	span, ok := stageSpan[stage]
	if !ok {
		return 0
	}
	frac := 0.0
	if total > 0 {
		frac = min(float64(current)/float64(total), 1)
	}
	return span[0] + (span[1]-span[0])*frac
}
