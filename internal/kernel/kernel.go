// Package kernel provides a minimal dependency-ordered lifecycle for the
// scheduler and its collaborators. Components never hold a back-pointer to
// the kernel — it operates purely on the small Component interface, the
// same shape the teacher's pkg/pluginsdk uses for its plugin lifecycle.
package kernel

import (
	"fmt"
	"log/slog"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
)

// Component is a named, dependency-declaring lifecycle participant.
type Component interface {
	Name() string
	Dependencies() []string
	Initialize(cfg map[string]any) error
	Shutdown() error
	IsInitialized() bool
}

// Kernel registers components and brings them up/down in dependency order.
type Kernel struct {
	logger *slog.Logger

	order      []string
	components map[string]Component
	initOrder  []string // names, in the order they were successfully initialized
}

// New creates an empty Kernel.
func New(logger *slog.Logger) *Kernel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kernel{
		logger:     logger,
		components: make(map[string]Component),
	}
}

// Register adds a component. Duplicate names fail with ConfigInvalid.
func (k *Kernel) Register(c Component) error {
	name := c.Name()
	if _, exists := k.components[name]; exists {
		return corekind.New(corekind.ConfigInvalid, "component %q already registered", name)
	}
	k.components[name] = c
	k.order = append(k.order, name)
	return nil
}

// Validate returns one message per missing dependency, of the form
// "Component 'X' depends on 'Y' which is not registered".
func (k *Kernel) Validate() []string {
	var missing []string
	for _, name := range k.order {
		c := k.components[name]
		for _, dep := range c.Dependencies() {
			if _, ok := k.components[dep]; !ok {
				missing = append(missing, fmt.Sprintf("Component %q depends on %q which is not registered", name, dep))
			}
		}
	}
	return missing
}

// InitializeAll computes a dependency order and initializes each component
// in turn, rolling back everything already initialized if any step fails.
func (k *Kernel) InitializeAll(cfg map[string]any) error {
	if missing := k.Validate(); len(missing) > 0 {
		for _, m := range missing {
			k.logger.Error("kernel: missing dependency", "detail", m)
		}
		return corekind.New(corekind.ComponentMissingDep, "missing dependencies: %v", missing)
	}

	initOrder, err := k.topoOrder()
	if err != nil {
		return err
	}

	k.initOrder = nil
	for _, name := range initOrder {
		c := k.components[name]
		if err := k.initOne(c); err != nil {
			k.rollback()
			return err
		}
		k.initOrder = append(k.initOrder, name)
	}
	return nil
}

func (k *Kernel) initOne(c Component) error {
	if err := c.Initialize(nil); err != nil {
		return corekind.Wrap(corekind.ComponentInitFailed, err, "component %q failed to initialize", c.Name())
	}
	if !c.IsInitialized() {
		return corekind.New(corekind.ComponentInitFailed, "component %q returned without setting is_initialized", c.Name())
	}
	return nil
}

// rollback shuts down everything in k.initOrder, in reverse, tolerating
// individual shutdown failures (each is logged, all are attempted).
func (k *Kernel) rollback() {
	for i := len(k.initOrder) - 1; i >= 0; i-- {
		name := k.initOrder[i]
		if err := k.components[name].Shutdown(); err != nil {
			k.logger.Error("kernel: rollback shutdown failed", "component", name, "error", err)
		}
	}
	k.initOrder = nil
}

// ShutdownAll shuts components down in the reverse of their initialization
// order, continuing through individual failures.
func (k *Kernel) ShutdownAll() {
	for i := len(k.initOrder) - 1; i >= 0; i-- {
		name := k.initOrder[i]
		if err := k.components[name].Shutdown(); err != nil {
			k.logger.Error("kernel: shutdown failed", "component", name, "error", err)
		}
	}
	k.initOrder = nil
}

// topoOrder repeatedly picks any component whose every dependency is
// already ordered, breaking ties by registration order. A cyclic remainder
// is a hard ComponentCycle error naming the stuck components.
func (k *Kernel) topoOrder() ([]string, error) {
	done := make(map[string]bool, len(k.order))
	var result []string

	for len(result) < len(k.order) {
		progressed := false
		for _, name := range k.order {
			if done[name] {
				continue
			}
			c := k.components[name]
			ready := true
			for _, dep := range c.Dependencies() {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				done[name] = true
				result = append(result, name)
				progressed = true
			}
		}
		if !progressed {
			var remaining []string
			for _, name := range k.order {
				if !done[name] {
					remaining = append(remaining, fmt.Sprintf("%s (unmet: %v)", name, unmetDeps(k.components[name], done)))
				}
			}
			return nil, corekind.New(corekind.ComponentCycle, "dependency cycle among: %v", remaining)
		}
	}
	return result, nil
}

func unmetDeps(c Component, done map[string]bool) []string {
	var unmet []string
	for _, dep := range c.Dependencies() {
		if !done[dep] {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}
