package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "image-stitcher/internal/errors"
)

// Factory builds a Method on lookup.
type Factory func() (Method, error)

// Registry maps case-insensitive method names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]entry
}

type entry struct {
	name    string
	factory Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]entry)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = entry{name: name, factory: f}
}

// RegisterMethod registers a ready-made Method under its own name.
func (r *Registry) RegisterMethod(m Method) {
	r.Register(m.Name(), func() (Method, error) { return m, nil })
}

// Lookup resolves name to a Method. Unknown names are input errors.
func (r *Registry) Lookup(name string) (Method, error) {
	r.mu.RLock()
	e, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewInputError(stage,
			fmt.Sprintf("unknown method %q (available: %s)", name, strings.Join(r.Names(), ", ")), nil)
	}
	m, err := e.factory()
	if err != nil {
		return nil, apperrors.NewInputError(stage, fmt.Sprintf("method %s unavailable", e.name), err)
	}
	return m, nil
}

// Names returns the registered method names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for _, e := range r.factories {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}
