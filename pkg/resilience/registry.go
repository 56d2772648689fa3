package resilience

import "sync"

const (
	ResourceDatabase = "database"
	ResourceCache    = "cache"
)

// Registry hands out one breaker per resource name. Breakers are created
// lazily from the shared defaults and live for the life of the process.
type Registry struct {
	defaults BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry builds a registry whose breakers inherit defaults (Name is
// overwritten per resource).
func NewRegistry(defaults BreakerConfig) *Registry {
	return &Registry{
		defaults: defaults,
		breakers: map[string]*Breaker{},
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg := r.defaults
	cfg.Name = name
	b := NewBreaker(cfg)
	r.breakers[name] = b
	return b
}

// Snapshot reports the state of every breaker created so far.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make(map[string]State, len(breakers))
	for _, b := range breakers {
		out[b.Name()] = b.State()
	}
	return out
}
