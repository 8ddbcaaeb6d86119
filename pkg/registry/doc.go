// Package registry owns long-lived native instances on behalf of a host that
// can only hold small integer handles.
//
// Two tables implement Table:
//
//   - Registry is append-only. Handles are 0-based indices, valid for the
//     lifetime of the Registry, and never reused. Instances are never freed,
//     which leaks in long-running processes that keep creating instances.
//   - Arena adds Release. Freed slots go onto a free list and are reused by
//     Create, and every slot carries a generation counter encoded in the
//     upper half of the Handle so a handle to a recycled slot is rejected
//     instead of aliasing the new instance.
//
// Both guard their table with a single mutex held only for the append or
// lookup; instance construction happens outside it, and callers use resolved
// instances without holding it.
//
// Lookups against an unknown, cleared or stale handle fail with a
// *HandleError that matches ErrInvalidHandle.
//
// Tables are plain values: construct one and pass it where it is needed.
package registry
