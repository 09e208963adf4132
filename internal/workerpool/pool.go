// Package workerpool runs N concurrent consumers of a debounce.Queue,
// isolating per-item failures from the pool's own lifetime. The consumer
// loop (wait/drain/process, cooperative stop) is new, but the shutdown
// discipline — a shared stop channel, a WaitGroup join with a bounded grace
// period, "log on overrun rather than kill" — is grounded on the teacher's
// infra.WorkerPool start/stop idiom.
package workerpool

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
	"github.com/jcjorel/docwatch-mcp/internal/debounce"
	"github.com/jcjorel/docwatch-mcp/internal/status"
)

// joinGrace is how long Stop waits, in total, for all workers to exit; it is
// one shared deadline, not a separate grace period per worker. Workers still
// running when it elapses are abandoned (one warning is logged; none is
// killed).
const joinGrace = 5 * time.Second

// internalErrorBackoff is the sleep applied after a worker hits an error in
// its own loop plumbing (not an extractor error), to avoid a tight spin.
const internalErrorBackoff = 5 * time.Second

// Extractor performs the actual work on one changed path. project is
// resolved per-path by a ProjectResolver (see Config) — the source system's
// hardcoded project_id=1 is explicitly not carried over; see SPEC_FULL.md
// §9.
type Extractor func(ctx context.Context, path string, contents []byte, project string) error

// DeleteHook is invoked instead of Extractor when a change is a deletion.
// It is optional; when nil, deletions are reported as successes without
// any side effect.
type DeleteHook func(ctx context.Context, path string, project string) error

// ProjectResolver maps a changed path to the project it belongs to.
type ProjectResolver func(path string) (string, error)

// WorkerState is a point-in-time view of one consumer goroutine.
type WorkerState struct {
	ID          int
	Busy        bool
	CurrentPath string
}

// Config configures a Pool.
type Config struct {
	WorkerThreads   int
	BatchSize       int
	Extractor       Extractor
	DeleteHook      DeleteHook
	ProjectResolver ProjectResolver
	Logger          *slog.Logger
}

// Pool runs WorkerThreads concurrent consumers of a debounce.Queue.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
	workers []*workerSlot
}

type workerSlot struct {
	mu    sync.Mutex
	state WorkerState
}

// New creates a Pool. WorkerThreads and BatchSize are normalized to 1 if
// non-positive.
func New(cfg Config) *Pool {
	if cfg.WorkerThreads < 1 {
		cfg.WorkerThreads = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ProjectResolver == nil {
		cfg.ProjectResolver = func(string) (string, error) { return "", nil }
	}
	return &Pool{cfg: cfg}
}

// Start launches exactly cfg.WorkerThreads consumers against queue,
// reporting outcomes to reporter. Calling Start while already running is a
// no-op that logs a warning.
func (p *Pool) Start(queue *debounce.Queue, reporter *status.Reporter) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.cfg.Logger.Warn("workerpool: start called while already running")
		return
	}

	p.stop = make(chan struct{})
	p.workers = make([]*workerSlot, p.cfg.WorkerThreads)
	for i := range p.workers {
		p.workers[i] = &workerSlot{state: WorkerState{ID: i}}
	}

	for i := 0; i < p.cfg.WorkerThreads; i++ {
		slot := p.workers[i]
		p.wg.Add(1)
		go p.runWorker(slot, queue, reporter, p.stop)
	}
	p.running = true
}

// Stop signals all workers to stop and joins them within one joinGrace
// period shared by all of them. A worker blocked in queue.Wait is not woken
// early; it sees the stop signal once its one-second wait returns.
// The pool is re-startable after Stop returns.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stop)
	p.running = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(joinGrace):
		p.cfg.Logger.Warn("workerpool: stop timed out waiting for workers, abandoning",
			"grace", joinGrace)
	}
}

// ActiveCount returns the number of workers currently busy.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()

	count := 0
	for _, w := range workers {
		w.mu.Lock()
		if w.state.Busy {
			count++
		}
		w.mu.Unlock()
	}
	return count
}

// ProcessingPaths returns the set of paths currently being processed.
func (p *Pool) ProcessingPaths() []string {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()

	var paths []string
	for _, w := range workers {
		w.mu.Lock()
		if w.state.Busy {
			paths = append(paths, w.state.CurrentPath)
		}
		w.mu.Unlock()
	}
	return paths
}

func (p *Pool) runWorker(slot *workerSlot, queue *debounce.Queue, reporter *status.Reporter, stop chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if !queue.Wait(time.Second) {
			continue
		}

		batch := queue.Drain(p.cfg.BatchSize)
		if len(batch) == 0 {
			continue
		}

		for i, change := range batch {
			select {
			case <-stop:
				// Leftover items were already removed from the ready queue
				// by Drain; they go back in through Add (and debounce again)
				// so a later Start on the same queue still processes them.
				for _, left := range batch[i:] {
					queue.Add(left)
				}
				return
			default:
			}

			if err := p.processOne(slot, reporter, change); err != nil {
				p.cfg.Logger.Error("workerpool: internal error, backing off", "path", change.Path, "error", err)
				select {
				case <-stop:
					for _, left := range batch[i+1:] {
						queue.Add(left)
					}
					return
				case <-time.After(internalErrorBackoff):
				}
			}
		}
	}
}

// processOne handles one changed path. Its return value is only ever an
// *internal* error — the extractor/delete hook's own errors are isolated by
// safeExtract/safeDeleteHook and reported via the status reporter, never
// returned here. A non-nil return means something in the worker's own
// plumbing (e.g. ProjectResolver) panicked, and the caller backs off.
func (p *Pool) processOne(slot *workerSlot, reporter *status.Reporter, change debounce.FileChange) (internalErr error) {
	slot.mu.Lock()
	slot.state.Busy = true
	slot.state.CurrentPath = change.Path
	slot.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			internalErr = corekind.New(corekind.InternalError, "worker loop panicked: %v", r)
		}
		slot.mu.Lock()
		slot.state.Busy = false
		slot.state.CurrentPath = ""
		slot.mu.Unlock()
		p.cfg.Logger.Debug("workerpool: item processed", "path", change.Path, "elapsed", time.Since(start))
	}()

	ctx := context.Background()

	project, err := p.cfg.ProjectResolver(change.Path)
	if err != nil {
		reporter.ReportFailure(change.Path, err.Error())
		return nil
	}

	if change.Kind == debounce.Deleted {
		if p.cfg.DeleteHook != nil {
			if err := p.safeDeleteHook(ctx, change.Path, project); err != nil {
				reporter.ReportFailure(change.Path, err.Error())
				return nil
			}
		}
		reporter.ReportSuccess(change.Path)
		return nil
	}

	contents, err := os.ReadFile(change.Path)
	if err != nil {
		reporter.ReportFailure(change.Path, err.Error())
		return nil
	}

	if err := p.safeExtract(ctx, change.Path, contents, project); err != nil {
		reporter.ReportFailure(change.Path, err.Error())
		return nil
	}

	reporter.ReportSuccess(change.Path)
	return nil
}

// safeExtract recovers from a panicking extractor, turning it into a
// WorkerPanic error so the containing item is isolated without taking the
// worker goroutine down with it.
func (p *Pool) safeExtract(ctx context.Context, path string, contents []byte, project string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = corekind.New(corekind.WorkerPanic, "extractor panicked: %v", r)
		}
	}()
	return p.cfg.Extractor(ctx, path, contents, project)
}

func (p *Pool) safeDeleteHook(ctx context.Context, path, project string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = corekind.New(corekind.WorkerPanic, "delete hook panicked: %v", r)
		}
	}()
	return p.cfg.DeleteHook(ctx, path, project)
}
