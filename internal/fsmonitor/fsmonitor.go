// Package fsmonitor translates filesystem events into debounce.FileChange
// values behind a small Sink interface, so the scheduler never
// imports fsnotify directly. The recursive add-on-create / debounced
// refresh shape follows the teacher's skill watcher
// (internal/skills/manager.go's StartWatching/watchLoop/refreshWatches).
package fsmonitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
	"github.com/jcjorel/docwatch-mcp/internal/debounce"
)

// Sink receives translated changes; scheduler.Controller satisfies it via
// its Enqueue method.
type Sink interface {
	Enqueue(change debounce.FileChange)
}

// Monitor recursively watches Root, skipping paths matched by IgnoreGlobs,
// and feeds every observed change to Sink.
type Monitor struct {
	root    string
	ignore  []string
	sink    Sink
	logger  *slog.Logger

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	initialized bool
}

// New creates a stopped Monitor rooted at root.
func New(root string, ignoreGlobs []string, sink Sink, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{root: root, ignore: ignoreGlobs, sink: sink, logger: logger}
}

// Start begins watching. Calling Start while already running is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.watcher != nil {
		m.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.mu.Unlock()
		return corekind.Wrap(corekind.ConfigInvalid, err, "creating filesystem watcher")
	}
	m.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	if err := m.addTree(m.root); err != nil {
		m.logger.Warn("fsmonitor: initial tree watch failed", "root", m.root, "error", err)
	}

	m.wg.Add(1)
	go m.loop(watchCtx)
	return nil
}

// Stop halts watching and blocks until the event loop has exited.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	m.mu.Lock()
	watcher := m.watcher
	m.mu.Unlock()
	if watcher == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			m.handle(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("fsmonitor: watch error", "error", err)
		}
	}
}

func (m *Monitor) handle(event fsnotify.Event) {
	if m.ignored(event.Name) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := m.addTree(event.Name); err != nil {
				m.logger.Debug("fsmonitor: failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
		m.sink.Enqueue(debounce.FileChange{Path: event.Name, Kind: debounce.Created})
	case event.Op&fsnotify.Write != 0:
		m.sink.Enqueue(debounce.FileChange{Path: event.Name, Kind: debounce.Modified})
	case event.Op&fsnotify.Remove != 0:
		m.sink.Enqueue(debounce.FileChange{Path: event.Name, Kind: debounce.Deleted})
	case event.Op&fsnotify.Rename != 0:
		// fsnotify reports the departing name as Rename; the arriving name
		// (if any) surfaces separately as its own Create event.
		m.sink.Enqueue(debounce.FileChange{Path: event.Name, Kind: debounce.Renamed, OldPath: event.Name})
	}
}

func (m *Monitor) ignored(path string) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, glob := range m.ignore {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}
	return false
}

// Name satisfies kernel.Component.
func (m *Monitor) Name() string { return "monitor" }

// Dependencies satisfies kernel.Component; the monitor needs the scheduler
// started first so its Sink (the Controller) is already accepting work.
func (m *Monitor) Dependencies() []string { return []string{"scheduler"} }

// Initialize satisfies kernel.Component.
func (m *Monitor) Initialize(map[string]any) error {
	if err := m.Start(context.Background()); err != nil {
		return err
	}
	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

// Shutdown satisfies kernel.Component.
func (m *Monitor) Shutdown() error {
	m.Stop()
	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// IsInitialized satisfies kernel.Component.
func (m *Monitor) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// addTree walks root and adds every non-ignored directory to the watcher.
func (m *Monitor) addTree(root string) error {
	m.mu.Lock()
	watcher := m.watcher
	m.mu.Unlock()
	if watcher == nil {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries, keep walking
		}
		if !d.IsDir() {
			return nil
		}
		if m.ignored(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			m.logger.Debug("fsmonitor: failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}
