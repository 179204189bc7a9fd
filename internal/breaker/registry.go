package breaker

import (
	"fmt"
	"sort"
	"sync"

	domainerrors "github.com/felixhub/workshop/internal/domain/errors"
)

// Registry holds one Breaker per dependency name, created on first use.
type Registry struct {
	defaults Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(defaults Settings) *Registry {
	return &Registry{
		defaults: defaults,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it with the registry defaults.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.defaults)
	r.breakers[name] = b
	return b
}

// Snapshots returns every known breaker ordered by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })

	out := make([]Snapshot, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	return out
}

// Reset forces the named breaker closed.
func (r *Registry) Reset(name string) error {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%q: %w", name, domainerrors.ErrBreakerNotFound)
	}
	b.Reset()
	return nil
}
