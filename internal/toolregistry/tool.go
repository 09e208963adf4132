// Package toolregistry holds the tool and resource catalog the JSON-RPC
// facade dispatches into: registration, lookup, and schema-validated
// execution. Schema compilation follows the teacher's ws_schema.go pattern
// (internal/gateway/ws_schema.go) — compile once at registration, validate
// decoded JSON values against the compiled schema on every call.
package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
)

// Impl is a tool's unary implementation.
type Impl func(ctx context.Context, input map[string]any) (any, error)

// StreamImpl is a tool's streaming implementation: it returns a channel of
// chunks, closed when the source is exhausted. The pipeline (internal/ndjson)
// drains it one chunk at a time.
type StreamImpl func(ctx context.Context, input map[string]any) (<-chan any, error)

// ToolDefinition describes one registered tool.
type ToolDefinition struct {
	Name         string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any // optional
	Tags         []string
	Version      string
	Impl         Impl
	Stream       StreamImpl // optional; nil means the tool has no streaming form
}

type compiledTool struct {
	def    ToolDefinition
	input  *jsonschema.Schema
	output *jsonschema.Schema // nil if OutputSchema is nil
}

// Registry is a thread-safe catalog of tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*compiledTool
	seq   []string // registration order, for stable list_tools output
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*compiledTool)}
}

// Register compiles the tool's schemas and adds it to the catalog. Fails
// with ConfigInvalid on a duplicate name or an uncompilable schema.
func (r *Registry) Register(def ToolDefinition) error {
	if def.Name == "" {
		return corekind.New(corekind.ConfigInvalid, "tool name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return corekind.New(corekind.ConfigInvalid, "tool %q already registered", def.Name)
	}

	inputSchema, err := compileSchema("tool_"+def.Name+"_input", def.InputSchema)
	if err != nil {
		return corekind.Wrap(corekind.ConfigInvalid, err, "tool %q: invalid input_schema", def.Name)
	}

	var outputSchema *jsonschema.Schema
	if def.OutputSchema != nil {
		outputSchema, err = compileSchema("tool_"+def.Name+"_output", def.OutputSchema)
		if err != nil {
			return corekind.Wrap(corekind.ConfigInvalid, err, "tool %q: invalid output_schema", def.Name)
		}
	}

	r.tools[def.Name] = &compiledTool{def: def, input: inputSchema, output: outputSchema}
	r.seq = append(r.seq, def.Name)
	return nil
}

// Unregister removes a tool. A miss is a silent no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	for i, n := range r.seq {
		if n == name {
			r.seq = append(r.seq[:i], r.seq[i+1:]...)
			break
		}
	}
}

// Get returns the tool definition for name.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.tools[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return ct.def, true
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// ListTools returns tool names in registration order, optionally filtered
// by a tag.
func (r *Registry) ListTools(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, name := range r.seq {
		ct := r.tools[name]
		if tag == "" || hasTag(ct.def.Tags, tag) {
			out = append(out, name)
		}
	}
	return out
}

// ListTags returns the set of distinct tags across all registered tools, in
// first-seen order.
func (r *Registry) ListTags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, name := range r.seq {
		for _, tag := range r.tools[name].def.Tags {
			if !seen[tag] {
				seen[tag] = true
				out = append(out, tag)
			}
		}
	}
	return out
}

// ValidateInput validates input against the named tool's input_schema,
// independent of which implementation (unary or streaming) ends up running
// it. Callers that dispatch to Stream directly (bypassing Execute) must call
// this themselves to get the same §4.L "validate input → ToolInvalidInput"
// step the unary path gets for free.
func (r *Registry) ValidateInput(name string, input map[string]any) error {
	r.mu.RLock()
	ct, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return corekind.New(corekind.ToolNotFound, "tool %q is not registered", name)
	}
	if err := validate(ct.input, input); err != nil {
		return corekind.Wrap(corekind.ToolInvalidInput, err, "tool %q: invalid input", name)
	}
	return nil
}

// Execute validates input against the tool's input_schema, invokes its
// unary impl, and (if an output_schema is set) validates the result before
// returning it.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (result any, err error) {
	r.mu.RLock()
	ct, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, corekind.New(corekind.ToolNotFound, "tool %q is not registered", name)
	}
	if ct.def.Impl == nil {
		return nil, corekind.New(corekind.ToolNotFound, "tool %q has no unary implementation", name)
	}

	if err := validate(ct.input, input); err != nil {
		return nil, corekind.Wrap(corekind.ToolInvalidInput, err, "tool %q: invalid input", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = corekind.New(corekind.ToolExecutionFailed, "tool %q panicked: %v", name, rec)
		}
	}()

	result, err = ct.def.Impl(ctx, input)
	if err != nil {
		return nil, corekind.Wrap(corekind.ToolExecutionFailed, err, "tool %q failed", name)
	}

	if ct.output != nil {
		if err := validate(ct.output, result); err != nil {
			return nil, corekind.Wrap(corekind.ToolInvalidOutput, err, "tool %q: invalid output", name)
		}
	}
	return result, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func compileSchema(id string, schema map[string]any) (*jsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return jsonschema.CompileString(id, string(raw))
}

func validate(schema *jsonschema.Schema, value any) error {
	if schema == nil {
		return nil
	}
	// jsonschema validates decoded JSON values (map[string]any, []any,
	// float64, ...); round-trip through JSON to normalize any Go-native
	// types (e.g. int) the same way a decoded request body would arrive.
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return schema.Validate(decoded)
}
