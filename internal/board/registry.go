package board

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the named formations a room may start from.
type Registry struct {
	mu         sync.RWMutex
	formations map[string]Formation
	def        string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{formations: make(map[string]Formation)}
}

// Builtin returns a registry holding the shipped formations.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(Classic)
	return r
}

// Register adds a formation. Panics on duplicate names or an invalid layout.
// The first formation registered, or the last one flagged Default, becomes
// the default.
func (r *Registry) Register(f Formation) {
	if err := f.Validate(); err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.formations[f.Name]; exists {
		panic(fmt.Sprintf("formation %q already registered", f.Name))
	}
	r.formations[f.Name] = f
	if r.def == "" || f.Default {
		r.def = f.Name
	}
}

// Get returns a formation by name.
func (r *Registry) Get(name string) (Formation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formations[name]
	return f, ok
}

// Default returns the default formation. ok is false for an empty registry.
func (r *Registry) Default() (Formation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formations[r.def]
	return f, ok
}

// List returns all formations sorted by name.
func (r *Registry) List() []Formation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Formation, 0, len(r.formations))
	for _, f := range r.formations {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
