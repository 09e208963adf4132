package toolregistry

import (
	"context"
	"sync"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
)

// ResourceGet is a resource's lookup implementation. id may be empty for
// resources addressed purely by params (e.g. a search/listing resource).
type ResourceGet func(ctx context.Context, id string, params map[string]any, auth map[string]any, session string) (any, error)

// ResourceDefinition describes one registered resource.
type ResourceDefinition struct {
	Name        string
	Description string
	Get         ResourceGet
}

// ResourceRegistry is the parallel of Registry for resources, addressed by
// "<resource_name>/<id>".
type ResourceRegistry struct {
	mu        sync.RWMutex
	resources map[string]ResourceDefinition
	seq       []string
}

// NewResourceRegistry creates an empty ResourceRegistry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{resources: make(map[string]ResourceDefinition)}
}

// Register adds a resource definition. Fails with ConfigInvalid on a
// duplicate name.
func (r *ResourceRegistry) Register(def ResourceDefinition) error {
	if def.Name == "" {
		return corekind.New(corekind.ConfigInvalid, "resource name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[def.Name]; exists {
		return corekind.New(corekind.ConfigInvalid, "resource %q already registered", def.Name)
	}
	r.resources[def.Name] = def
	r.seq = append(r.seq, def.Name)
	return nil
}

// Unregister removes a resource. A miss is a silent no-op.
func (r *ResourceRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[name]; !ok {
		return
	}
	delete(r.resources, name)
	for i, n := range r.seq {
		if n == name {
			r.seq = append(r.seq[:i], r.seq[i+1:]...)
			break
		}
	}
}

// List returns resource names in registration order.
func (r *ResourceRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.seq))
	copy(out, r.seq)
	return out
}

// Get invokes the named resource's Get implementation. id identifies the
// specific instance ("<resource_name>/<id>"); it may be empty.
func (r *ResourceRegistry) Get(ctx context.Context, name, id string, params, auth map[string]any, session string) (result any, err error) {
	r.mu.RLock()
	def, ok := r.resources[name]
	r.mu.RUnlock()
	if !ok {
		return nil, corekind.New(corekind.ResourceNotFound, "resource %q is not registered", name)
	}
	if def.Get == nil {
		return nil, corekind.New(corekind.ResourceNotFound, "resource %q has no get implementation", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = corekind.New(corekind.ToolExecutionFailed, "resource %q panicked: %v", name, rec)
		}
	}()

	result, err = def.Get(ctx, id, params, auth, session)
	if err != nil {
		return nil, corekind.Wrap(corekind.ToolExecutionFailed, err, "resource %q failed", name)
	}
	return result, nil
}
