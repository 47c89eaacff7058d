package ui

import (
	"sync"
	"time"
)

const (
	// speedSampleEvery spaces throughput samples to smooth out batch bursts.
	speedSampleEvery = 500 * time.Millisecond

	// etaSmoothing weights a new ETA against the previous one.
	etaSmoothing = 0.3

	// speedSmoothing weights a new throughput sample against the average.
	speedSmoothing = 0.2
)

// ProgressTracker holds the state shown by the TUI. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	stage      Stage
	current    int
	total      int
	file       string
	stageStart time.Time
	lastETA    time.Duration

	lastCurrent int
	lastSample  time.Time
	speed       SpeedStats
	samples     int

	errors   int
	warnings int
}

// SpeedStats contains throughput in items per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64 // 0.0 to 1.0
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	Speed       SpeedStats
}

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageScanning,
		stageStart: now,
		lastSample: now,
	}
}

// Observe applies a progress event, switching stage when it changes.
func (p *ProgressTracker) Observe(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if event.Stage != p.stage {
		p.stage = event.Stage
		p.stageStart = now
		p.lastETA = 0
		p.lastCurrent = 0
		p.lastSample = now
		p.speed = SpeedStats{}
		p.samples = 0
		p.file = ""
	}

	p.current = event.Current
	p.total = event.Total
	if event.CurrentFile != "" {
		p.file = event.CurrentFile
	}

	elapsed := now.Sub(p.lastSample)
	if elapsed < speedSampleEvery {
		return
	}
	if delta := event.Current - p.lastCurrent; delta > 0 {
		rate := float64(delta) / elapsed.Seconds()
		p.speed.Current = rate
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = rate
		} else {
			p.speed.Avg = speedSmoothing*rate + (1-speedSmoothing)*p.speed.Avg
		}
		p.speed.Peak = max(p.speed.Peak, rate)
	}
	p.lastCurrent = event.Current
	p.lastSample = now
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot. It updates the smoothed ETA.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1)
	}
	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    progress,
		ETA:         p.eta(progress),
		CurrentFile: p.file,
		ErrorCount:  p.errors,
		WarnCount:   p.warnings,
		Speed:       p.speed,
	}
}

// eta extrapolates the stage's elapsed time, smoothed exponentially so
// uneven embedding batches do not make it jump. Callers hold mu.
func (p *ProgressTracker) eta(progress float64) time.Duration {
	if progress <= 0 || progress >= 1 {
		return 0
	}
	elapsed := time.Since(p.stageStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothing*float64(remaining) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}
