package codegen

import (
	"fmt"
	"sort"

	"github.com/okra-platform/schemagen/internal/codegen/templates"
)

// Factory creates a generator bound to a template set
type Factory func(tmpl *templates.Set) Generator

// Registry manages available generators
type Registry struct {
	generators map[Kind]Factory
}

// NewRegistry creates a new generator registry
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[Kind]Factory),
	}
}

// Register adds a generator factory to the registry
func (r *Registry) Register(kind Kind, factory Factory) {
	r.generators[kind] = factory
}

// Get returns a generator for the specified kind
func (r *Registry) Get(kind Kind, tmpl *templates.Set) (Generator, error) {
	factory, exists := r.generators[kind]
	if !exists {
		return nil, fmt.Errorf("unsupported artifact kind: %s", kind)
	}

	return factory(tmpl), nil
}

// Kinds returns the registered kinds, sorted
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.generators))
	for k := range r.generators {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
