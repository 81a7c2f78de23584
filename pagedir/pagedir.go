// Package pagedir declares the hardware page-directory primitives the
// virtual memory core consumes and provides a map-backed simulation
// of them. On real hardware these would be
// install/clear of page-table entries and reads of the PTE's
// dirty/accessed bits; this module runs in user-space Go, so
// Simulated stands in for the MMU during tests and the demo harness.
package pagedir

import (
	"sync"

	"vmcore/mem"
)

// Directory is the hardware page-directory interface consumed by the
// fault resolver, the frame table's eviction path, and the mmap
// manager. Every method operates on a single page-aligned user
// virtual address.
type Directory interface {
	// Install maps upage to kframe with the given writable bit and
	// reports whether the mapping was installed (false signals the
	// directory itself is out of page-table pages, mirroring the
	// real MMU's possible allocation failure).
	Install(upage mem.VPage, kframe mem.Frame, writable bool) bool
	// Clear removes any mapping for upage. It is a no-op if upage is
	// not currently mapped.
	Clear(upage mem.VPage)
	// IsDirty and IsAccessed read the hardware dirty/accessed bits
	// for a currently-mapped page; both report false for an unmapped
	// page.
	IsDirty(upage mem.VPage) bool
	SetDirty(upage mem.VPage, v bool)
	IsAccessed(upage mem.VPage) bool
	SetAccessed(upage mem.VPage, v bool)
	// Present reports whether upage currently has a mapping.
	Present(upage mem.VPage) bool
	// Activate loads this directory as the active one for the
	// current CPU (a single-CPU concept in this module).
	Activate()
	// Destroy releases all page-table pages. It does not free the
	// frames the directory maps — ownership of those rests with the
	// supplemental page table.
	Destroy()
}

type pte struct {
	frame    mem.Frame
	writable bool
	dirty    bool
	accessed bool
}

// Simulated is a map-backed Directory. One exists per simulated
// process address space.
type Simulated struct {
	mu        sync.Mutex
	entries   map[mem.VPage]*pte
	active    bool
	destroyed bool
}

// NewSimulated constructs an empty page directory.
func NewSimulated() *Simulated {
	return &Simulated{entries: make(map[mem.VPage]*pte)}
}

func (d *Simulated) Install(upage mem.VPage, kframe mem.Frame, writable bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		panic("pagedir: install after destroy")
	}
	d.entries[upage] = &pte{frame: kframe, writable: writable}
	return true
}

func (d *Simulated) Clear(upage mem.VPage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, upage)
}

func (d *Simulated) IsDirty(upage mem.VPage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[upage]; ok {
		return e.dirty
	}
	return false
}

func (d *Simulated) SetDirty(upage mem.VPage, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[upage]; ok {
		e.dirty = v
	}
}

func (d *Simulated) IsAccessed(upage mem.VPage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[upage]; ok {
		return e.accessed
	}
	return false
}

func (d *Simulated) SetAccessed(upage mem.VPage, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[upage]; ok {
		e.accessed = v
	}
}

func (d *Simulated) Present(upage mem.VPage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[upage]
	return ok
}

func (d *Simulated) Activate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
}

func (d *Simulated) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = nil
	d.destroyed = true
}

// FrameAt returns the frame mapped at upage, if any. Used by the demo
// harness to read back what is currently installed without going
// through the Directory interface's bit-oriented accessors.
func (d *Simulated) FrameAt(upage mem.VPage) (mem.Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[upage]
	if !ok {
		return mem.NoFrame, false
	}
	return e.frame, true
}
