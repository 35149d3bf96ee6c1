// Package broadcast keeps track of connected event streams and fans task
// changes out to them.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the set of currently connected channels keyed by client id.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Channel
	newID   func() string
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithIDSource replaces the uuid generator used for client ids.
func WithIDSource(fn func() string) RegistryOption {
	return func(r *Registry) { r.newID = fn }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		clients: make(map[string]*Channel),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores ch under a fresh identifier and returns it.
func (r *Registry) Register(ch *Channel) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	for {
		if _, taken := r.clients[id]; !taken && id != "" {
			break
		}
		id = uuid.NewString()
	}
	ch.id = id
	r.clients[id] = ch
	return id
}

// Unregister removes and closes the channel. It reports whether the id was
// still registered; repeated calls are no-ops.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	ch, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()
	if ok {
		ch.close()
	}
	return ok
}

// Snapshot returns the channels registered at the time of the call.
func (r *Registry) Snapshot() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.clients))
	for _, ch := range r.clients {
		out = append(out, ch)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close unregisters every channel.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Channel)
	r.mu.Unlock()
	for _, ch := range clients {
		ch.close()
	}
}
