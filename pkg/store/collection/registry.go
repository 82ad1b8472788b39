package collection

import (
	"fmt"
	"sort"
	"sync"

	"convodb/pkg/store/db/storedb"
)

// Registry opens each named collection once over a shared store.
type Registry struct {
	store *storedb.Store
	mu    sync.Mutex
	colls map[string]*Collection
}

func NewRegistry(store *storedb.Store) *Registry {
	return &Registry{store: store, colls: make(map[string]*Collection)}
}

// Open returns the collection, loading it on first use.
func (r *Registry) Open(name string) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.colls[name]; ok {
		return c, nil
	}
	c, err := Open(r.store, name)
	if err != nil {
		return nil, err
	}
	r.colls[name] = c
	return c, nil
}

// MustOpen is Open for fixed names known at startup.
func (r *Registry) MustOpen(name string) *Collection {
	c, err := r.Open(name)
	if err != nil {
		panic(fmt.Sprintf("open collection %s: %v", name, err))
	}
	return c
}

// Names lists loaded collections.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.colls))
	for n := range r.colls {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Stats reports document and observer counts per collection.
func (r *Registry) Stats() map[string]map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string]int, len(r.colls))
	for n, c := range r.colls {
		out[n] = map[string]int{"documents": c.Len(), "observers": c.Observers()}
	}
	return out
}
