// Package scheduler glues the debounce queue, worker pool, and status
// reporter into a single idempotent start/stop unit — the component the
// kernel wires in as "scheduler".
package scheduler

import (
	"sync"
	"time"

	"github.com/jcjorel/docwatch-mcp/internal/debounce"
	"github.com/jcjorel/docwatch-mcp/internal/status"
	"github.com/jcjorel/docwatch-mcp/internal/workerpool"
)

// Config configures the Controller's owned Queue, Pool, and Reporter.
type Config struct {
	Delay           time.Duration
	MaxDelay        time.Duration
	WorkerThreads   int
	BatchSize       int
	StatusHistory   int
	Extractor       workerpool.Extractor
	DeleteHook      workerpool.DeleteHook
	ProjectResolver workerpool.ProjectResolver
}

// Controller owns a Queue, Pool, and Reporter for as long as it is running.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	running  bool
	queue    *debounce.Queue
	pool     *workerpool.Pool
	reporter *status.Reporter
}

// New creates a stopped Controller.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Start is idempotent: calling it while already running returns nil
// without effect. Each start from the stopped state builds a fresh queue,
// reporter, and pool; none of these steps can fail, so Start always
// returns nil.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	reporter := status.New(c.cfg.StatusHistory)
	queue := debounce.New(debounce.Config{Delay: c.cfg.Delay, MaxDelay: c.cfg.MaxDelay})
	pool := workerpool.New(workerpool.Config{
		WorkerThreads:   c.cfg.WorkerThreads,
		BatchSize:       c.cfg.BatchSize,
		Extractor:       c.cfg.Extractor,
		DeleteHook:      c.cfg.DeleteHook,
		ProjectResolver: c.cfg.ProjectResolver,
	})

	pool.Start(queue, reporter)

	c.queue = queue
	c.pool = pool
	c.reporter = reporter
	c.running = true
	return nil
}

// Stop is idempotent. It stops the owned pool; the queue and reporter are
// kept, so Snapshot, PendingCount, and ReadyCount keep reporting the last
// run until the next Start replaces them. IsRunning reflects the last
// successful transition.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	if c.pool != nil {
		c.pool.Stop()
	}
	c.running = false
}

// IsRunning reports whether the controller's last Start/Stop transition was
// a successful start.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Enqueue adds a change to the owned queue. It is a no-op if the controller
// is not running.
func (c *Controller) Enqueue(change debounce.FileChange) {
	c.mu.Lock()
	queue := c.queue
	running := c.running
	c.mu.Unlock()

	if running && queue != nil {
		queue.Add(change)
	}
}

// Snapshot returns the owned reporter's current snapshot, or the zero value
// if the controller has never started.
func (c *Controller) Snapshot() status.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reporter == nil {
		return status.Snapshot{}
	}
	return c.reporter.Snapshot()
}

// PendingCount and ReadyCount expose the owned queue's depth for the
// component's health/status surfaces.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue == nil {
		return 0
	}
	return c.queue.PendingCount()
}

func (c *Controller) ReadyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue == nil {
		return 0
	}
	return c.queue.ReadyCount()
}

// ActiveWorkers returns the owned pool's busy-worker count.
func (c *Controller) ActiveWorkers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		return 0
	}
	return c.pool.ActiveCount()
}

// Reporter returns the owned status.Reporter, or nil if the controller has
// never started. Used to wire status.Metrics against a running Controller.
func (c *Controller) Reporter() *status.Reporter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reporter
}

// Name satisfies kernel.Component.
func (c *Controller) Name() string { return "scheduler" }

// Dependencies satisfies kernel.Component; the scheduler has none of its
// own — any project/storage collaborator it needs is wired via Config
// before construction.
func (c *Controller) Dependencies() []string { return nil }

// Initialize satisfies kernel.Component.
func (c *Controller) Initialize(map[string]any) error { return c.Start() }

// Shutdown satisfies kernel.Component.
func (c *Controller) Shutdown() error { c.Stop(); return nil }

// IsInitialized satisfies kernel.Component.
func (c *Controller) IsInitialized() bool { return c.IsRunning() }
