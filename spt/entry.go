// Package spt implements the per-process supplemental page table: the
// map from virtual page to content provenance that drives both the
// page-fault resolver and the frame table's eviction decisions.
package spt

import (
	"vmcore/fileobj"
	"vmcore/frame"
	"vmcore/mem"
	"vmcore/pagedir"
	"vmcore/swap"
)

// Entry is one supplemental page table entry: a tagged union over
// ZERO, FILE, and SWAP provenance. It implements frame.Tenant so the
// frame table can run eviction through it without importing this
// package.
type Entry struct {
	upage mem.VPage
	pd    pagedir.Directory

	kind frame.Kind

	// FILE fields.
	file      fileobj.File
	ofs       int64
	readBytes int
	zeroBytes int
	writable  bool
	isMmap    bool

	// SWAP fields.
	slot swap.SlotIndex

	// residency.
	curFrame mem.Frame
	dirty    bool
}

func (e *Entry) Kind() frame.Kind           { return e.kind }
func (e *Entry) PageDir() pagedir.Directory { return e.pd }
func (e *Entry) VPage() mem.VPage           { return e.upage }
func (e *Entry) Writable() bool {
	if e.kind == frame.KindFile {
		return e.writable
	}
	return true
}
func (e *Entry) IsMmap() bool { return e.isMmap }

func (e *Entry) FileBacking() (fileobj.File, int64) {
	return e.file, e.ofs
}

// RefreshDirty folds the hardware dirty bit for this entry's current
// mapping into the persistent flag and returns the accumulated value.
// There is no separate kernel alias in this module's simulated
// hardware, so only the user mapping's bit is read.
func (e *Entry) RefreshDirty() bool {
	if e.curFrame != mem.NoFrame && e.pd.IsDirty(e.upage) {
		e.dirty = true
	}
	return e.dirty
}

func (e *Entry) SetFrame(f mem.Frame) {
	e.curFrame = f
}

func (e *Entry) RewriteSwap(slot swap.SlotIndex) {
	e.kind = frame.KindSwap
	e.slot = slot
	e.curFrame = mem.NoFrame
	e.dirty = false
}

// Resident reports whether this entry currently maps a frame.
func (e *Entry) Resident() bool { return e.curFrame != mem.NoFrame }

// Frame returns the entry's current frame, or mem.NoFrame if not
// resident.
func (e *Entry) Frame() mem.Frame { return e.curFrame }

// ReadBytes, ZeroBytes, Offset and FileHandle expose the FILE payload
// for the fault resolver's materialization step.
func (e *Entry) ReadBytes() int          { return e.readBytes }
func (e *Entry) ZeroBytes() int          { return e.zeroBytes }
func (e *Entry) Offset() int64           { return e.ofs }
func (e *Entry) FileHandle() fileobj.File { return e.file }

// SwapSlot returns the slot this entry's content lives in; only valid
// when Kind() == frame.KindSwap.
func (e *Entry) SwapSlot() swap.SlotIndex { return e.slot }
