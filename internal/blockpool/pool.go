// Package blockpool implements a fixed-capacity, never-growing allocator
// for a single preallocated slice of values, threading a singly linked
// free list through the unused slots, generalized to any element type.
package blockpool

// Pool allocates up to the fixed capacity chosen at New from one
// preallocated backing slice. Allocation and free are both O(1). The pool
// never reallocates its backing slice, so a *T returned by Alloc stays
// valid, and at the same address, for the pool's lifetime.
type Pool[T any] struct {
	blocks     []T
	next       []uint32 // free-list links, lazily initialized
	generation []uint32 // bumped on Free; detects use of a stale handle
	allocated  uint32   // high-water mark of next[] entries initialized
	free       uint32   // blocks currently available
	head       uint32   // index of the next block Alloc will hand out
}

// New creates a Pool with room for exactly capacity elements. Every slot's
// generation starts at 1, not 0: index 0's first allocation would otherwise
// hand out generation 0, indistinguishable from a caller's zero-value,
// never-allocated handle.
func New[T any](capacity uint32) *Pool[T] {
	generation := make([]uint32, capacity)
	for i := range generation {
		generation[i] = 1
	}
	return &Pool[T]{
		blocks:     make([]T, capacity),
		next:       make([]uint32, capacity),
		generation: generation,
		free:       capacity,
	}
}

// Cap returns the pool's fixed capacity.
func (p *Pool[T]) Cap() uint32 {
	return uint32(len(p.blocks))
}

// Alloc reserves one block. ok is false when the pool is exhausted, in
// which case the other return values are zero and callers must treat the
// allocation as dropped.
func (p *Pool[T]) Alloc() (index uint32, generation uint32, value *T, ok bool) {
	cap := uint32(len(p.blocks))
	if p.allocated < cap {
		p.next[p.allocated] = p.allocated + 1
		p.allocated++
	}
	if p.free == 0 {
		return 0, 0, nil, false
	}
	index = p.head
	p.free--
	if p.free > 0 {
		p.head = p.next[p.head]
	} else {
		p.head = cap
	}
	return index, p.generation[index], &p.blocks[index], true
}

// Free returns a previously allocated block to the pool. It reports false
// and leaves the pool untouched if generation does not match the slot's
// current generation — the slot was already freed and possibly reused,
// i.e. the caller is holding a stale handle.
func (p *Pool[T]) Free(index, generation uint32) bool {
	if generation != p.generation[index] {
		return false
	}
	cap := uint32(len(p.blocks))
	if p.free > 0 {
		p.next[index] = p.head
	} else {
		p.next[index] = cap
	}
	p.head = index
	p.free++
	p.generation[index]++
	return true
}

// Get returns the block at index if generation matches its current
// generation, without taking part in the free-list bookkeeping — this is
// the lookup a lock-free producer uses to keep writing into a block it
// was handed out earlier, without needing the pool's mutex.
func (p *Pool[T]) Get(index, generation uint32) (*T, bool) {
	if generation != p.generation[index] {
		return nil, false
	}
	return &p.blocks[index], true
}

// At returns the block at index unconditionally, bypassing the generation
// check. Used where the caller already knows the index is live (e.g.
// iterating a context's own open set).
func (p *Pool[T]) At(index uint32) *T {
	return &p.blocks[index]
}
