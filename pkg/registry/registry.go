package registry

import (
	"fmt"
	"sync"
)

// Registry is an append-only instance table. Every instance it creates stays
// alive for as long as the Registry does; there is no release operation.
type Registry[T any] struct {
	// mu guards slots for both append and lookup, since append may
	// reallocate the backing array.
	mu sync.Mutex

	// slots holds one entry per handle ever issued.
	slots []*slot[T]

	// factory builds the instance for each new slot.
	factory Factory[T]
}

type slot[T any] struct {
	value T
}

// New creates an empty registry whose instances are built by factory.
func New[T any](factory Factory[T]) *Registry[T] {
	return &Registry[T]{
		slots:   make([]*slot[T], 0, 8),
		factory: factory,
	}
}

// Create builds a new instance and appends it. The factory runs outside the
// lock; only the append is serialized.
func (r *Registry[T]) Create() (Handle, error) {
	return r.CreateWith(r.factory)
}

// CreateWith is Create with a factory for this one instance.
func (r *Registry[T]) CreateWith(factory Factory[T]) (Handle, error) {
	instance, err := factory()
	if err != nil {
		return 0, fmt.Errorf("failed to create instance: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.slots = append(r.slots, &slot[T]{value: instance})
	return makeHandle(uint32(len(r.slots)-1), 0), nil
}

// Resolve returns the instance for h, or a *HandleError.
func (r *Registry[T]) Resolve(h Handle) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if h.Generation() != 0 || int(h.Index()) >= len(r.slots) {
		return zero, &HandleError{Handle: h}
	}

	s := r.slots[h.Index()]
	if s == nil {
		return zero, &HandleError{Handle: h}
	}
	return s.value, nil
}

// Len returns the number of populated slots.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// retire clears a slot without recycling its index. Resolve rejects the
// handle afterwards.
func (r *Registry[T]) retire(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.Generation() == 0 && int(h.Index()) < len(r.slots) {
		r.slots[h.Index()] = nil
	}
}
