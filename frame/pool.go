package frame

import "vmcore/mem"

// Pool is the underlying physical frame allocator. It is deliberately
// separate from Table: Table owns tenancy and replacement, Pool owns
// raw frame storage, mirroring a split between raw page storage and
// the consumer that decides what goes where.
type Pool interface {
	Alloc() (mem.Frame, bool)
	Free(mem.Frame)
	// Content returns the raw page storage for an allocated frame.
	// The frame table never writes through this itself except to
	// read bytes out for an eviction write-back.
	Content(mem.Frame) *mem.Page
}

// SimplePool is a fixed-capacity arena of frames with a free list: an
// index-based singly-linked free list threaded through the backing
// array itself, without per-CPU free lists since this module targets
// one simulated CPU.
type SimplePool struct {
	pages []mem.Page
	next  []int32 // free-list link, -1 terminates
	free  int32   // head of the free list, -1 if empty
}

// NewSimplePool allocates a pool of the given capacity in frames.
func NewSimplePool(capacity int) *SimplePool {
	p := &SimplePool{
		pages: make([]mem.Page, capacity),
		next:  make([]int32, capacity),
	}
	for i := 0; i < capacity-1; i++ {
		p.next[i] = int32(i + 1)
	}
	if capacity > 0 {
		p.next[capacity-1] = -1
		p.free = 0
	} else {
		p.free = -1
	}
	return p
}

// frameOf encodes a pool index as a mem.Frame identity; index 0 is
// reserved so mem.NoFrame (0) never aliases a real frame.
func (p *SimplePool) frameOf(idx int32) mem.Frame { return mem.Frame(idx + 1) }
func (p *SimplePool) idxOf(f mem.Frame) int32     { return int32(f) - 1 }

func (p *SimplePool) Alloc() (mem.Frame, bool) {
	if p.free < 0 {
		return mem.NoFrame, false
	}
	idx := p.free
	p.free = p.next[idx]
	return p.frameOf(idx), true
}

func (p *SimplePool) Free(f mem.Frame) {
	idx := p.idxOf(f)
	p.next[idx] = p.free
	p.free = idx
}

func (p *SimplePool) Content(f mem.Frame) *mem.Page {
	idx := p.idxOf(f)
	return &p.pages[idx]
}

// Capacity reports the total number of frames the pool manages.
func (p *SimplePool) Capacity() int {
	return len(p.pages)
}
