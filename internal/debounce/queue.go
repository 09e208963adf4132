package debounce

import (
	"log/slog"
	"sync"
	"time"
)

const (
	defaultDelay    = 10 * time.Second
	defaultMaxDelay = 120 * time.Second
)

// pendingEntry is the internal per-path debounce state.
type pendingEntry struct {
	path      string
	latest    FileChange
	firstSeen time.Time
	fireAt    time.Time
	timer     *time.Timer
}

// Config configures a Queue. Zero value uses the package defaults.
type Config struct {
	// Delay is the quiet period required after the latest change before a
	// path becomes ready. Must be > 0; defaults to 10s.
	Delay time.Duration
	// MaxDelay is the hard ceiling on how long a path may stay pending.
	// Must be > Delay; if misconfigured it is forced to 2*Delay and a
	// warning is logged once.
	MaxDelay time.Duration
	// Logger receives the one-time misconfiguration warning. Defaults to
	// slog.Default().
	Logger *slog.Logger
	// now is overridable for deterministic tests.
	now func() time.Time
}

// Queue is a thread-safe debouncing change queue. The zero value is not
// usable; construct with New.
type Queue struct {
	delay    time.Duration
	maxDelay time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	pending  map[string]*pendingEntry
	readyQ   []FileChange
	readyIdx map[string]int
	notify   chan struct{}
}

// New creates a Queue, normalizing misconfigured delays.
func New(cfg Config) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = defaultDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay == 0 {
		maxDelay = defaultMaxDelay
	}
	if maxDelay <= delay {
		maxDelay = 2 * delay
		logger.Warn("debounce: max_delay misconfigured, forcing to 2*delay",
			"delay", delay, "max_delay", maxDelay)
	}
	now := cfg.now
	if now == nil {
		now = time.Now
	}

	return &Queue{
		delay:    delay,
		maxDelay: maxDelay,
		logger:   logger,
		now:      now,
		pending:  make(map[string]*pendingEntry),
		readyIdx: make(map[string]int),
		notify:   make(chan struct{}),
	}
}

// Add enqueues a change, creating or updating the pending entry for its
// path per the debounce/coalesce rules in the package doc.
func (q *Queue) Add(change FileChange) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	existing, ok := q.pending[change.Path]
	if !ok {
		entry := &pendingEntry{
			path:      change.Path,
			latest:    change,
			firstSeen: now,
			fireAt:    now.Add(q.delay),
		}
		q.pending[change.Path] = entry
		q.scheduleLocked(entry)
		return
	}

	// Create-then-delete within the same window: the file came and went,
	// drop the entry entirely rather than emitting a ready event.
	if existing.latest.Kind == Created && change.Kind == Deleted {
		q.cancelTimerLocked(existing)
		delete(q.pending, change.Path)
		return
	}

	existing.latest = change
	deadline := existing.firstSeen.Add(q.maxDelay)
	candidate := now.Add(q.delay)
	if candidate.After(deadline) {
		candidate = deadline
	}
	existing.fireAt = candidate

	if !now.Before(deadline) {
		q.cancelTimerLocked(existing)
		delete(q.pending, change.Path)
		q.transitionToReadyLocked(existing.latest)
		return
	}

	q.cancelTimerLocked(existing)
	q.scheduleLocked(existing)
}

// scheduleLocked arms (or re-arms) the wake-up timer for entry. Must be
// called with q.mu held. The callback re-validates that the entry is still
// the current pending one before transitioning, so a timer that loses a
// race against a concurrent reschedule becomes a safe no-op.
func (q *Queue) scheduleLocked(entry *pendingEntry) {
	d := entry.fireAt.Sub(q.now())
	if d < 0 {
		d = 0
	}
	path := entry.path
	entry.timer = time.AfterFunc(d, func() {
		q.mu.Lock()
		current, ok := q.pending[path]
		if !ok || current != entry {
			q.mu.Unlock()
			return
		}
		delete(q.pending, path)
		q.transitionToReadyLocked(current.latest)
		q.mu.Unlock()
	})
}

// cancelTimerLocked stops entry's pending timer, if any. Must be called
// with q.mu held.
func (q *Queue) cancelTimerLocked(entry *pendingEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
}

// transitionToReadyLocked moves change into the ready queue. If the path is
// already present in the ready queue (not yet drained), its entry is
// updated in place rather than duplicated, preserving FIFO order by the
// earlier transition. Must be called with q.mu held.
func (q *Queue) transitionToReadyLocked(change FileChange) {
	if idx, ok := q.readyIdx[change.Path]; ok {
		q.readyQ[idx] = change
		return
	}
	q.readyIdx[change.Path] = len(q.readyQ)
	q.readyQ = append(q.readyQ, change)
	q.signalLocked()
}

// signalLocked wakes any blocked Wait callers. Must be called with q.mu held.
func (q *Queue) signalLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// Drain removes and returns up to maxN entries from the head of the ready
// queue.
func (q *Queue) Drain(maxN int) []FileChange {
	q.mu.Lock()
	defer q.mu.Unlock()

	if maxN <= 0 || len(q.readyQ) == 0 {
		return nil
	}
	n := maxN
	if n > len(q.readyQ) {
		n = len(q.readyQ)
	}

	batch := make([]FileChange, n)
	copy(batch, q.readyQ[:n])
	for _, c := range batch {
		delete(q.readyIdx, c.Path)
	}
	q.readyQ = q.readyQ[n:]
	for path, idx := range q.readyIdx {
		q.readyIdx[path] = idx - n
	}
	return batch
}

// Wait blocks until the ready queue is non-empty or timeout elapses,
// returning true if items are available.
func (q *Queue) Wait(timeout time.Duration) bool {
	q.mu.Lock()
	if len(q.readyQ) > 0 {
		q.mu.Unlock()
		return true
	}
	ch := q.notify
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.readyQ) > 0
	}
}

// PendingCount returns the number of paths currently debouncing.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ReadyCount returns the number of entries waiting to be drained.
func (q *Queue) ReadyCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.readyQ)
}

// Clear discards all pending and ready state, stopping any armed timers.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, entry := range q.pending {
		q.cancelTimerLocked(entry)
	}
	q.pending = make(map[string]*pendingEntry)
	q.readyQ = nil
	q.readyIdx = make(map[string]int)
}
