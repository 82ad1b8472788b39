package publish

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownPublication = errors.New("unknown publication")

// Handler is a named publication entry point. It either calls sub.Publish
// with a Spec, registers presence hooks with sub.OnStop, or does nothing for
// an empty result. The subscription is marked ready when it returns nil.
type Handler func(sub *Subscription, params Params) error

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a publication. Names are unique.
func (r *Registry) Register(name string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" || h == nil {
		return fmt.Errorf("register publication: empty name or handler")
	}
	if _, dup := r.handlers[name]; dup {
		return fmt.Errorf("register publication %q: already registered", name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
