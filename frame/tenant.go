package frame

import (
	"vmcore/fileobj"
	"vmcore/mem"
	"vmcore/pagedir"
	"vmcore/swap"
)

// Kind discriminates the provenance of a tenant's content, mirroring
// the supplemental page table entry's tagged union. It is declared
// here, not in package spt, so that frame — the lower-level package
// in the allocation direction (spt allocates frames, frames hold
// tenants) — has no import on spt at all; spt implements Tenant on
// its Entry type instead. This is an "interface below, implementation
// above" shape, used elsewhere for interfaces implemented by a
// higher-level consumer package.
type Kind int

const (
	KindZero Kind = iota
	KindFile
	KindSwap
)

// Tenant is the back-reference a frame.Record holds to whatever
// occupies it. The frame table never inspects a supplemental page
// table directly; it only ever calls through this interface, which
// is exactly wide enough to run the eviction decision tree.
type Tenant interface {
	Kind() Kind
	PageDir() pagedir.Directory
	VPage() mem.VPage
	Writable() bool
	IsMmap() bool
	// FileBacking returns the backing file and offset; only valid
	// when Kind() == KindFile.
	FileBacking() (f fileobj.File, ofs int64)
	// RefreshDirty folds the hardware dirty bits (both the user
	// mapping and, where applicable, a kernel alias) into the
	// tenant's persistent dirty flag and returns the accumulated
	// value.
	RefreshDirty() bool
	// SetFrame records (or clears, via mem.NoFrame) the tenant's
	// current physical frame.
	SetFrame(mem.Frame)
	// RewriteSwap changes this tenant's kind to KindSwap at the given
	// slot, as required when a dirty or anonymous page is evicted.
	RewriteSwap(slot swap.SlotIndex)
}
