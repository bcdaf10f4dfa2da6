package tool

import (
	"errors"
	"fmt"

	"github.com/reins-ai/reins/pkg/registry"
)

// Registry lookup and registration errors.
var (
	// ErrDuplicateTool is returned when a tool name is already registered.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrToolNotFound is returned when no tool is registered under a name.
	ErrToolNotFound = errors.New("tool not found")
)

// Registry holds the tools available to the runtime, keyed by name.
// Registration is rejected for duplicate names; entries are never
// silently replaced.
type Registry struct {
	tools *registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{tools: registry.NewBaseRegistry[Tool]()}
}

// Register adds a tool under its own name.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	if t.Name() == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, ok := r.tools.Get(t.Name()); ok {
		return fmt.Errorf("tool %q: %w", t.Name(), ErrDuplicateTool)
	}
	return r.tools.Register(t.Name(), t)
}

// RegisterToolset registers every tool the toolset currently resolves.
// Registration stops at the first duplicate name.
func (r *Registry) RegisterToolset(tools []Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
	}
	return t, nil
}

// Callable returns the tool registered under name if it is callable.
func (r *Registry) Callable(name string) (CallableTool, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	ct, ok := t.(CallableTool)
	if !ok {
		return nil, fmt.Errorf("tool %q is not callable", name)
	}
	return ct, nil
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	return r.tools.Names()
}

// List returns all registered tools ordered by name, optionally filtered
// by a predicate.
func (r *Registry) List(pred Predicate) []Tool {
	all := r.tools.List()
	if pred == nil {
		return all
	}
	out := make([]Tool, 0, len(all))
	for _, t := range all {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

// Definitions returns LLM function-calling definitions for the tools
// visible through the predicate.
func (r *Registry) Definitions(pred Predicate) []Definition {
	tools := r.List(pred)
	defs := make([]Definition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ToDefinition(t))
	}
	return defs
}

// Remove unregisters a tool by name.
func (r *Registry) Remove(name string) error {
	if _, ok := r.tools.Get(name); !ok {
		return fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
	}
	return r.tools.Remove(name)
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	return r.tools.Count()
}
