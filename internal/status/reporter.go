// Package status tracks scheduler throughput: processed/failed counters and
// a bounded ring of recent successes and failures, snapshotted under a
// single lock the way the teacher's worker pool exposes its own Stats().
package status

import (
	"sync"
	"time"
)

// SuccessEntry records one successfully processed path.
type SuccessEntry struct {
	Path     string
	WallTime time.Time
}

// FailureEntry records one failed path, with the error truncated to a short
// summary so the ring never grows unbounded on pathological error strings.
type FailureEntry struct {
	Path         string
	WallTime     time.Time
	ErrorSummary string
}

const maxErrorSummaryLen = 100

// Snapshot is an immutable copy of the reporter's state at a point in time.
type Snapshot struct {
	Processed       uint64
	Failed          uint64
	StartedAt       time.Time
	UptimeSeconds   float64
	FilesPerSecond  float64
	RecentSuccesses []SuccessEntry
	RecentFailures  []FailureEntry
}

// Reporter is a thread-safe counter and bounded-history recorder for the
// scheduler's processing loop. The zero value is not usable; use New.
type Reporter struct {
	mu sync.Mutex

	capacity int
	now      func() time.Time

	processed uint64
	failed    uint64
	startedAt time.Time

	successes []SuccessEntry
	failures  []FailureEntry
}

// Option configures a Reporter at construction.
type Option func(*Reporter)

// WithClock overrides the time source; tests use this to control uptime and
// files-per-second derivations deterministically.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// New creates a Reporter with the given ring capacity H (must be >= 1).
func New(capacity int, opts ...Option) *Reporter {
	if capacity < 1 {
		capacity = 1
	}
	r := &Reporter{
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startedAt = r.now()
	return r
}

// ReportSuccess increments the processed counter and appends to the
// successes ring, evicting the oldest entry once the ring is full.
func (r *Reporter) ReportSuccess(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed++
	r.successes = appendRing(r.successes, SuccessEntry{Path: path, WallTime: r.now()}, r.capacity)
}

// ReportFailure increments the failed counter and appends to the failures
// ring. errorText longer than 100 characters is truncated with an ellipsis.
func (r *Reporter) ReportFailure(path string, errorText string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failed++
	r.failures = appendRing(r.failures, FailureEntry{
		Path:         path,
		WallTime:     r.now(),
		ErrorSummary: truncate(errorText, maxErrorSummaryLen),
	}, r.capacity)
}

// Snapshot returns a deep copy of the current counters, ring contents, and
// derived rates. The returned value shares no state with the Reporter.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	uptime := r.now().Sub(r.startedAt).Seconds()
	var rate float64
	if uptime > 0 {
		rate = float64(r.processed) / uptime
	}

	successes := make([]SuccessEntry, len(r.successes))
	copy(successes, r.successes)
	failures := make([]FailureEntry, len(r.failures))
	copy(failures, r.failures)

	return Snapshot{
		Processed:       r.processed,
		Failed:          r.failed,
		StartedAt:       r.startedAt,
		UptimeSeconds:   uptime,
		FilesPerSecond:  rate,
		RecentSuccesses: successes,
		RecentFailures:  failures,
	}
}

// Reset zeros the counters, empties both rings, and resets the uptime clock.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed = 0
	r.failed = 0
	r.successes = nil
	r.failures = nil
	r.startedAt = r.now()
}

func appendRing[T any](ring []T, entry T, capacity int) []T {
	ring = append(ring, entry)
	if len(ring) > capacity {
		ring = ring[len(ring)-capacity:]
	}
	return ring
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
