package kernel

import (
	"errors"
	"testing"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
)

type fakeComponent struct {
	name    string
	deps    []string
	initErr error
	init    bool
	onInit  func()
	onShut  func()
	shutErr error
}

func (f *fakeComponent) Name() string           { return f.name }
func (f *fakeComponent) Dependencies() []string { return f.deps }
func (f *fakeComponent) IsInitialized() bool    { return f.init }

func (f *fakeComponent) Initialize(map[string]any) error {
	if f.onInit != nil {
		f.onInit()
	}
	if f.initErr != nil {
		return f.initErr
	}
	f.init = true
	return nil
}

func (f *fakeComponent) Shutdown() error {
	if f.onShut != nil {
		f.onShut()
	}
	f.init = false
	return f.shutErr
}

func TestInitOrderIsTopological(t *testing.T) {
	var order []string
	record := func(name string) func() { return func() { order = append(order, name) } }

	k := New(nil)
	c := &fakeComponent{name: "c", deps: []string{"b"}, onInit: record("c")}
	b := &fakeComponent{name: "b", deps: []string{"a"}, onInit: record("b")}
	a := &fakeComponent{name: "a", onInit: record("a")}

	_ = k.Register(c)
	_ = k.Register(b)
	_ = k.Register(a)

	if err := k.InitializeAll(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("expected topological order a,b,c, got %v", order)
	}
}

func TestCycleDetection(t *testing.T) {
	k := New(nil)
	a := &fakeComponent{name: "a", deps: []string{"b"}}
	b := &fakeComponent{name: "b", deps: []string{"a"}}
	_ = k.Register(a)
	_ = k.Register(b)

	err := k.InitializeAll(nil)
	if !corekind.Is(err, corekind.ComponentCycle) {
		t.Fatalf("expected ComponentCycle, got %v", err)
	}
	if a.IsInitialized() || b.IsInitialized() {
		t.Fatalf("expected no component initialized after cycle detection")
	}
}

func TestMissingDependencyFailsValidation(t *testing.T) {
	k := New(nil)
	_ = k.Register(&fakeComponent{name: "a", deps: []string{"ghost"}})

	missing := k.Validate()
	if len(missing) != 1 {
		t.Fatalf("expected one missing dep message, got %v", missing)
	}

	err := k.InitializeAll(nil)
	if !corekind.Is(err, corekind.ComponentMissingDep) {
		t.Fatalf("expected ComponentMissingDep, got %v", err)
	}
}

func TestDuplicateRegisterFails(t *testing.T) {
	k := New(nil)
	_ = k.Register(&fakeComponent{name: "a"})
	err := k.Register(&fakeComponent{name: "a"})
	if !corekind.Is(err, corekind.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid on duplicate register, got %v", err)
	}
}

func TestRollbackOnPartialFailure(t *testing.T) {
	var shutdownOrder []string
	k := New(nil)

	a := &fakeComponent{name: "a", onShut: func() { shutdownOrder = append(shutdownOrder, "a") }}
	b := &fakeComponent{name: "b", deps: []string{"a"}, onShut: func() { shutdownOrder = append(shutdownOrder, "b") }}
	c := &fakeComponent{name: "c", deps: []string{"b"}, initErr: errors.New("boom")}

	_ = k.Register(a)
	_ = k.Register(b)
	_ = k.Register(c)

	err := k.InitializeAll(nil)
	if !corekind.Is(err, corekind.ComponentInitFailed) {
		t.Fatalf("expected ComponentInitFailed, got %v", err)
	}
	if len(shutdownOrder) != 2 || shutdownOrder[0] != "b" || shutdownOrder[1] != "a" {
		t.Fatalf("expected rollback shutdown order b,a, got %v", shutdownOrder)
	}
	if a.IsInitialized() || b.IsInitialized() {
		t.Fatalf("expected rolled-back components to report not initialized")
	}
}

func TestComponentNotSettingInitializedFlagIsTreatedAsFailure(t *testing.T) {
	k := New(nil)
	_ = k.Register(&noFlagComponent{name: "broken"})
	err := k.InitializeAll(nil)
	if !corekind.Is(err, corekind.ComponentInitFailed) {
		t.Fatalf("expected ComponentInitFailed, got %v", err)
	}
}

// noFlagComponent always succeeds Initialize but never sets its
// initialized flag, exercising the kernel's "treat as failure" rule.
type noFlagComponent struct{ name string }

func (c *noFlagComponent) Name() string                   { return c.name }
func (c *noFlagComponent) Dependencies() []string         { return nil }
func (c *noFlagComponent) Initialize(map[string]any) error { return nil }
func (c *noFlagComponent) Shutdown() error                { return nil }
func (c *noFlagComponent) IsInitialized() bool            { return false }

func TestShutdownAllReversesOrderAndContinuesOnError(t *testing.T) {
	var shutdownOrder []string
	k := New(nil)

	a := &fakeComponent{name: "a", onShut: func() { shutdownOrder = append(shutdownOrder, "a") }}
	b := &fakeComponent{name: "b", deps: []string{"a"}, shutErr: errors.New("shutdown failed"), onShut: func() { shutdownOrder = append(shutdownOrder, "b") }}

	_ = k.Register(a)
	_ = k.Register(b)
	if err := k.InitializeAll(nil); err != nil {
		t.Fatal(err)
	}

	k.ShutdownAll()
	if len(shutdownOrder) != 2 || shutdownOrder[0] != "b" || shutdownOrder[1] != "a" {
		t.Fatalf("expected shutdown order b,a even with an error, got %v", shutdownOrder)
	}
}
