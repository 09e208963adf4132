package fsmonitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jcjorel/docwatch-mcp/internal/debounce"
)

type recordingSink struct {
	mu      sync.Mutex
	changes []debounce.FileChange
}

func (s *recordingSink) Enqueue(change debounce.FileChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, change)
}

func (s *recordingSink) snapshot() []debounce.FileChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]debounce.FileChange, len(s.changes))
	copy(out, s.changes)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMonitorReportsCreateAndModify(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	m := New(dir, nil, sink, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	path := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(sink.snapshot()) > 0 })
	found := false
	for _, c := range sink.snapshot() {
		if c.Path == path {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a change for %s, got %+v", path, sink.snapshot())
	}
}

func TestMonitorIgnoresMatchingGlobs(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	m := New(dir, []string{"**/*.tmp"}, sink, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	ignoredPath := filepath.Join(dir, "scratch.tmp")
	if err := os.WriteFile(ignoredPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	watchedPath := filepath.Join(dir, "keep.md")
	if err := os.WriteFile(watchedPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		for _, c := range sink.snapshot() {
			if c.Path == watchedPath {
				return true
			}
		}
		return false
	})

	for _, c := range sink.snapshot() {
		if c.Path == ignoredPath {
			t.Fatalf("expected ignored path to be filtered, got change: %+v", c)
		}
	}
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, nil, &recordingSink{}, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.Stop()
	m.Stop()
}
