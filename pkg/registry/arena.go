package registry

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Arena is an instance table with explicit release. Released slots are
// recycled through a free list, and each slot carries a generation that is
// bumped on release so stale handles to a recycled slot are rejected.
type Arena[T any] struct {
	mu       sync.Mutex
	entries  []arenaEntry[T]
	freeList []uint32
	live     int
	closed   bool
	factory  Factory[T]
}

type arenaEntry[T any] struct {
	value      T
	generation uint32
	valid      bool
}

// NewArena creates an empty arena whose instances are built by factory.
func NewArena[T any](factory Factory[T]) *Arena[T] {
	return &Arena[T]{
		entries:  make([]arenaEntry[T], 0, 8),
		freeList: make([]uint32, 0, 8),
		factory:  factory,
	}
}

// Create builds a new instance, reusing a released slot when one is free.
func (a *Arena[T]) Create() (Handle, error) {
	return a.CreateWith(a.factory)
}

// CreateWith is Create with a factory for this one instance.
func (a *Arena[T]) CreateWith(factory Factory[T]) (Handle, error) {
	instance, err := factory()
	if err != nil {
		return 0, fmt.Errorf("failed to create instance: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		_ = closeValue(instance)
		return 0, ErrClosed
	}

	a.live++
	if n := len(a.freeList); n > 0 {
		idx := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		e := &a.entries[idx]
		e.value = instance
		e.valid = true
		return makeHandle(idx, e.generation), nil
	}

	a.entries = append(a.entries, arenaEntry[T]{value: instance, valid: true})
	return makeHandle(uint32(len(a.entries)-1), 0), nil
}

// Resolve returns the instance for h, or a *HandleError when the slot is out
// of range, released, or owned by a newer generation.
func (a *Arena[T]) Resolve(h Handle) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, err := a.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return e.value, nil
}

// Release clears the slot owned by h and makes its index available for
// reuse. If the instance implements io.Closer it is closed after the slot
// is cleared; its error is returned but the slot stays released.
func (a *Arena[T]) Release(h Handle) error {
	a.mu.Lock()
	e, err := a.lookup(h)
	if err != nil {
		a.mu.Unlock()
		return err
	}

	instance := e.value
	var zero T
	e.value = zero
	e.valid = false
	e.generation++
	a.freeList = append(a.freeList, h.Index())
	a.live--
	a.mu.Unlock()

	return closeValue(instance)
}

// Len returns the number of live instances.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Close releases every live instance and rejects further creates.
func (a *Arena[T]) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true

	var instances []T
	for i := range a.entries {
		e := &a.entries[i]
		if !e.valid {
			continue
		}
		instances = append(instances, e.value)
		var zero T
		e.value = zero
		e.valid = false
		e.generation++
	}
	a.entries = nil
	a.freeList = nil
	a.live = 0
	a.mu.Unlock()

	var errs []error
	for _, instance := range instances {
		if err := closeValue(instance); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// lookup must be called with a.mu held.
func (a *Arena[T]) lookup(h Handle) (*arenaEntry[T], error) {
	idx := h.Index()
	if int(idx) >= len(a.entries) {
		return nil, &HandleError{Handle: h}
	}
	e := &a.entries[idx]
	if !e.valid || e.generation != h.Generation() {
		return nil, &HandleError{Handle: h}
	}
	return e, nil
}

func closeValue(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
