// Package registry tracks the live game sessions by game id. Registration is
// atomic register-if-absent so a duplicated gameStart event cannot spawn a
// second actor for the same game.
package registry

import "sync"

type Registry struct {
	mu   sync.RWMutex
	live map[string]any
}

func New() *Registry {
	return &Registry{live: make(map[string]any)}
}

// RegisterIfAbsent stores handle under id unless an entry is already live.
// Returns false when the id was already registered.
func (r *Registry) RegisterIfAbsent(id string, handle any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; ok {
		return false
	}
	r.live[id] = handle
	return true
}

// Live reports whether id has a registered, not yet deregistered session.
func (r *Registry) Live(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.live[id]
	return ok
}

func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, id)
}

func (r *Registry) CountLive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
