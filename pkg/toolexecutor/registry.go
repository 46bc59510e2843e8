package toolexecutor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/toolrun/pkg/schema"
)

type registryEntry struct {
	spec     *ToolSpec
	wire     string
	compiled *schema.Compiled // nil when ResolveParameters is set
}

// Registry maps tool names to specs. Registration normally happens at boot;
// lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*registryEntry
	wires  map[string]string
	order  []string
	logger zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*registryEntry),
		wires:  make(map[string]string),
		logger: logger,
	}
}

// Define registers spec and returns its name
func (r *Registry) Define(spec ToolSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("tool name cannot be empty")
	}
	if spec.Strategy.Kind() != StrategyNone && !spec.Strategy.valid() {
		return "", fmt.Errorf("%w: %s has an empty %s strategy", ErrNoStrategy, spec.Name, spec.Strategy.Kind())
	}
	if spec.Strategy.Kind() == StrategyNone && spec.AfterRun == nil && !spec.RunServer {
		return "", fmt.Errorf("%w: %s", ErrNoStrategy, spec.Name)
	}

	entry := &registryEntry{spec: &spec, wire: SanitizeWireName(spec.Name)}
	if spec.ResolveParameters == nil {
		params := spec.Parameters
		if params == nil {
			params = schema.Empty()
		}
		compiled, err := schema.Compile(params)
		if err != nil {
			return "", fmt.Errorf("tool %s: %w", spec.Name, err)
		}
		entry.compiled = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[spec.Name]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTool, spec.Name)
	}
	if other, exists := r.wires[entry.wire]; exists {
		return "", fmt.Errorf("%w: %s and %s both map to %s", ErrWireCollision, other, spec.Name, entry.wire)
	}

	r.tools[spec.Name] = entry
	r.wires[entry.wire] = spec.Name
	r.order = append(r.order, spec.Name)

	r.logger.Info().
		Str("tool", spec.Name).
		Str("wire", entry.wire).
		Str("strategy", spec.Strategy.Kind().String()).
		Bool("safe", spec.Safe).
		Msg("Tool registered")

	return spec.Name, nil
}

// Find returns the spec registered under exactly name, or nil
func (r *Registry) Find(name string) *ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.tools[name]; ok {
		return e.spec
	}
	return nil
}

// FindByWire returns the spec whose wire name is wire, or nil
func (r *Registry) FindByWire(wire string) *ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.wires[wire]; ok {
		return r.tools[name].spec
	}
	return nil
}

// WireName returns the wire name of a registered tool
func (r *Registry) WireName(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.tools[name]; ok {
		return e.wire, true
	}
	return "", false
}

// List returns all specs in registration order
func (r *Registry) List() []*ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].spec)
	}
	return out
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ResolveParameters returns the spec's parameter schema, calling its resolver
// when one is set. The default is an empty object schema.
func (r *Registry) ResolveParameters(ctx context.Context, spec *ToolSpec, ec *ExecutionContext) (schema.Schema, error) {
	c, err := r.compiledParameters(ctx, spec, ec)
	if err != nil {
		return nil, err
	}
	return c.Schema(), nil
}

func (r *Registry) compiledParameters(ctx context.Context, spec *ToolSpec, ec *ExecutionContext) (*schema.Compiled, error) {
	r.mu.RLock()
	e, ok := r.tools[spec.Name]
	r.mu.RUnlock()
	if ok && e.compiled != nil {
		return e.compiled, nil
	}

	if spec.ResolveParameters == nil {
		params := spec.Parameters
		if params == nil {
			params = schema.Empty()
		}
		return schema.Compile(params)
	}

	params, err := spec.ResolveParameters(ctx, ec)
	if err != nil {
		return nil, fmt.Errorf("resolve parameters for %s: %w", spec.Name, err)
	}
	if params == nil {
		params = schema.Empty()
	}
	return schema.Compile(params)
}

// FunctionDef is the function part of a manifest record
type FunctionDef struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Parameters  schema.Schema `json:"parameters" yaml:"parameters"`
}

// FunctionTool is one manifest record, in the shape function-calling models consume
type FunctionTool struct {
	Type     string      `json:"type" yaml:"type"`
	Function FunctionDef `json:"function" yaml:"function"`
}

// Manifest describes every registered tool under its wire name
func (r *Registry) Manifest(ctx context.Context) ([]FunctionTool, error) {
	specs := r.List()
	out := make([]FunctionTool, 0, len(specs))
	for _, spec := range specs {
		ft, err := r.ManifestEntry(ctx, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, ft)
	}
	return out, nil
}

// ManifestEntry describes one tool
func (r *Registry) ManifestEntry(ctx context.Context, spec *ToolSpec) (FunctionTool, error) {
	params, err := r.ResolveParameters(ctx, spec, detachedContext(spec.Name))
	if err != nil {
		return FunctionTool{}, err
	}
	return FunctionTool{
		Type: "function",
		Function: FunctionDef{
			Name:        SanitizeWireName(spec.Name),
			Description: spec.Description,
			Parameters:  params,
		},
	}, nil
}
