package runner

import (
	"slices"
	"strings"
	"sync"
)

// Registry indexes in-flight runs by ID. Runs are added when prepared and
// removed when they reach a terminal state.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Handle)}
}

func (r *Registry) add(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[h.id]; exists {
		return false
	}
	r.runs[h.id] = h
	return true
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, id)
}

// Get returns the run with id, if it is still in flight.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.runs[id]
	return h, ok
}

// List returns a snapshot of in-flight runs ordered by ID.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	out := make([]*Handle, 0, len(r.runs))
	for _, h := range r.runs {
		out = append(out, h)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Handle) int { return strings.Compare(a.id, b.id) })
	return out
}

// Len returns the number of in-flight runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
