package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a fresh Picker instance.
type Factory func() Picker

// Registry maps strategy names to factories. Adding a strategy means
// registering a factory, not editing a switch.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry pre-populated with the built-in
// strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(NameRoundRobin, func() Picker { return NewRoundRobin() })
	r.Register(NameRandom, func() Picker { return NewRandom() })
	r.Register(NameWeightedRoundRobin, func() Picker { return NewWeightedRoundRobin() })
	r.Register(NamePerformance, func() Picker { return NewPerformanceBased() })
	return r
}

// Register installs or replaces a factory under name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	r.factories[name] = factory
	r.mu.Unlock()
}

// New constructs a picker by name.
func (r *Registry) New(name string) (Picker, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy: unknown strategy %q", name)
	}
	return factory(), nil
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
