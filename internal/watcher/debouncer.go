package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer collects changed paths and emits them as one batch once no new
// change has arrived for the quiet interval.
type Debouncer struct {
	interval time.Duration
	pending  map[string]struct{}
	mu       sync.Mutex
	timer    *time.Timer
	output   chan []string
}

// NewDebouncer creates a debouncer with the specified quiet interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		pending:  make(map[string]struct{}),
		output:   make(chan []string, 16),
	}
}

// Output returns the channel that receives batches of sorted paths.
func (d *Debouncer) Output() <-chan []string {
	return d.output
}

// Add records a change and restarts the quiet interval.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[path] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.flush)
}

// Stop cancels any pending flush.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// flush sends the pending paths to the output channel and resets the set.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return
	}

	batch := make([]string, 0, len(d.pending))
	for path := range d.pending {
		batch = append(batch, path)
	}
	sort.Strings(batch)

	d.pending = make(map[string]struct{})
	select {
	case d.output <- batch:
	default:
		// A batch is already waiting; it triggers the same full re-index.
	}
}
