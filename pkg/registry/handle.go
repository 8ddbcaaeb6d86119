package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHandle is matched by every HandleError.
	ErrInvalidHandle = errors.New("invalid builder handle")

	// ErrClosed is returned by Create after an Arena has been closed.
	ErrClosed = errors.New("registry closed")
)

// Handle is an opaque token standing in for a registered instance.
//
// The low 32 bits are the slot index and the high 32 bits the slot
// generation. Registry never recycles slots, so its handles always have
// generation zero and equal their 0-based index.
type Handle uint64

func makeHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

// Index returns the slot index encoded in h.
func (h Handle) Index() uint32 { return uint32(h) }

// Generation returns the slot generation encoded in h.
func (h Handle) Generation() uint32 { return uint32(h >> 32) }

// HandleError reports a lookup against a slot that is out of range, has been
// cleared, or has since been recycled.
type HandleError struct {
	Handle Handle
}

// Error implements the error interface.
func (e *HandleError) Error() string {
	return fmt.Sprintf("%s: %d", ErrInvalidHandle.Error(), uint64(e.Handle))
}

// Is makes errors.Is(err, ErrInvalidHandle) hold.
func (e *HandleError) Is(target error) bool {
	return target == ErrInvalidHandle
}

// Factory constructs a fresh instance for a new slot.
type Factory[T any] func() (T, error)

// Table is the contract shared by Registry and Arena.
type Table[T any] interface {
	// Create constructs an instance and returns the handle owning it.
	Create() (Handle, error)
	// CreateWith is Create using factory instead of the table's own.
	CreateWith(factory Factory[T]) (Handle, error)

	// Resolve returns the instance owned by h.
	Resolve(h Handle) (T, error)

	// Len returns the number of live instances.
	Len() int
}

// Releaser is implemented by tables that support explicit disposal.
type Releaser interface {
	Release(h Handle) error
}
