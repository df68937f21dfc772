package object

import "sync/atomic"

// Allocator produces and reclaims the instance-private data block of each
// object. Free is called exactly once per successful Alloc, after every
// finalize slot has run.
type Allocator interface {
	Alloc(c *Class) (any, error)
	Free(c *Class, block any)
}

// HeapAllocator builds blocks with the class's private constructor and lets
// the garbage collector reclaim them. It counts allocations for diagnostics.
type HeapAllocator struct {
	allocated atomic.Int64
	freed     atomic.Int64
}

// NewHeapAllocator creates a heap allocator
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{}
}

// Alloc implements Allocator
func (a *HeapAllocator) Alloc(c *Class) (any, error) {
	a.allocated.Add(1)
	return c.NewPrivate(), nil
}

// Free implements Allocator
func (a *HeapAllocator) Free(_ *Class, block any) {
	if d, ok := block.(Dropper); ok {
		d.Drop()
	}
	a.freed.Add(1)
}

// Allocated returns the number of blocks handed out
func (a *HeapAllocator) Allocated() int64 {
	return a.allocated.Load()
}

// Freed returns the number of blocks reclaimed
func (a *HeapAllocator) Freed() int64 {
	return a.freed.Load()
}

// Live returns the number of blocks currently in use
func (a *HeapAllocator) Live() int64 {
	return a.allocated.Load() - a.freed.Load()
}
