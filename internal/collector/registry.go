package collector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/macross/internal/core"
)

// Registry manages data providers by name
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Lookup is Get returning ErrUnknownProvider for a missing name.
func (r *Registry) Lookup(name string) (Provider, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, core.WrapError(core.ErrUnknownProvider, fmt.Errorf("%q (have %v)", name, r.Names()))
	}
	return p, nil
}

// Names returns the registered provider names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.providers))
	for name := range r.providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
