package provider

import (
	"fmt"
	"sort"
)

// Registry holds the configured providers in priority order.
type Registry struct {
	providers []Provider
	priority  map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{priority: make(map[string]int)}
}

// Register adds a provider. Higher priority providers come first in the
// rotation; equal priorities keep registration order.
func (r *Registry) Register(p Provider, priority int) error {
	d := p.Descriptor()
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := r.priority[d.ID]; exists {
		return fmt.Errorf("provider %s registered twice", d.ID)
	}
	r.priority[d.ID] = priority
	r.providers = append(r.providers, p)
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.priority[r.providers[i].Descriptor().ID] > r.priority[r.providers[j].Descriptor().ID]
	})
	return nil
}

// Get returns the provider with the given id, or nil.
func (r *Registry) Get(id string) Provider {
	for _, p := range r.providers {
		if p.Descriptor().ID == id {
			return p
		}
	}
	return nil
}

// List returns all providers in priority order.
func (r *Registry) List() []Provider {
	return append([]Provider(nil), r.providers...)
}

// Descriptors returns the descriptors of all providers in priority order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.Descriptor())
	}
	return out
}
