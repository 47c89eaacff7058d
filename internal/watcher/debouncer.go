package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer merges events per path until no event arrived for one window,
// then emits the merged events as one batch sorted by path.
//
//	CREATE then MODIFY  gives CREATE
//	CREATE then DELETE  cancels out
//	DELETE then CREATE  gives MODIFY
//	anything else       keeps the later operation
type Debouncer struct {
	window time.Duration
	output chan []FileEvent

	mu      sync.Mutex
	pending map[string]pending
	timer   *time.Timer
	stopped bool
}

type pending struct {
	event FileEvent
	first Operation
}

// NewDebouncer creates a debouncer emitting on a channel buffered for size batches.
func NewDebouncer(window time.Duration, size int) *Debouncer {
	if size <= 0 {
		size = 1
	}
	return &Debouncer{
		window:  window,
		output:  make(chan []FileEvent, size),
		pending: make(map[string]pending),
	}
}

// Add queues ev and restarts the window.
func (d *Debouncer) Add(ev FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if prev, ok := d.pending[ev.Path]; ok {
		op, keep := merge(prev.first, ev.Operation)
		if !keep {
			delete(d.pending, ev.Path)
		} else {
			ev.Operation = op
			d.pending[ev.Path] = pending{event: ev, first: prev.first}
		}
	} else {
		d.pending[ev.Path] = pending{event: ev, first: ev.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// merge combines the first and a later operation on one path. keep is false
// when the two cancel out.
func merge(first, next Operation) (op Operation, keep bool) {
	switch {
	case first == OpCreate && next == OpModify:
		return OpCreate, true
	case first == OpCreate && next == OpDelete:
		return 0, false
	case first == OpDelete && next == OpCreate:
		return OpModify, true
	default:
		return next, true
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, p := range d.pending {
		batch = append(batch, p.event)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.pending = make(map[string]pending)

	select {
	case d.output <- batch:
	default:
		// The consumer is still busy with earlier batches. Reindexing is
		// incremental, so the next batch picks the dropped changes up.
		slog.Warn("watch_batch_dropped", slog.Int("events", len(batch)))
	}
}

// Output returns the batch channel. It is closed by Stop.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Pending returns the number of paths waiting for the window to close.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop drops pending events and closes the output. It is idempotent.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	close(d.output)
}
