// Package registry indexes live mirror objects by remote handle.
//
// The registry is a lookup index, not an owner: removing an entry does not
// invalidate the object, it only makes it undiscoverable by handle.
package registry

import (
	"slices"
	"sync"

	"github.com/danmuck/napmirror/internal/protocol"
)

// Registry maps handles to values.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[protocol.Handle]T
}

func New[T any]() *Registry[T] {
	return &Registry[T]{
		items: make(map[protocol.Handle]T),
	}
}

// Put records or overwrites the mapping for h.
func (r *Registry[T]) Put(h protocol.Handle, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[h] = v
}

func (r *Registry[T]) Get(h protocol.Handle) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[h]
	return v, ok
}

// Remove deletes the mapping for h and reports whether one existed.
// Removing an absent handle is a no-op.
func (r *Registry[T]) Remove(h protocol.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[h]
	delete(r.items, h)
	return ok
}

// Clear drops every mapping.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.items)
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Handles returns the live handles in ascending order.
func (r *Registry[T]) Handles() []protocol.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Handle, 0, len(r.items))
	for h := range r.items {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
