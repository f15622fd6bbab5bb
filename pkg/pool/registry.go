package pool

import "sync"

// Registry is a named map of pools guarded by its own lock, distinct from
// any per-pool lock. Register overwrites silently; Lookup misses are not an
// error so callers can distinguish "no pool" from "pool with zero handles".
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*Pool)}
}

// Register stores p under its name, replacing any prior pool of that name.
func (r *Registry) Register(p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[p.Name()] = p
}

// Lookup returns the pool registered under name, or (nil, false).
func (r *Registry) Lookup(name string) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[name]
	return p, ok
}

// Remove drops the pool registered under name. The pool's handles are not
// disconnected.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pools, name)
}

// Snapshot returns the registered pools at this instant. The slice is a
// copy; the pools themselves are shared.
func (r *Registry) Snapshot() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	return out
}
