package spt

import (
	"vmcore/fileobj"
	"vmcore/frame"
	"vmcore/mem"
	"vmcore/pagedir"
	"vmcore/swap"
	"vmcore/vmerr"
	"vmcore/vmlog"
)

var log = vmlog.For("spt")

// Table is one process's supplemental page table. It is deliberately
// unsynchronized: it is touched only by its owning process's thread
// or that thread's own fault handler, so no SPT-local lock is needed
// (cross-process state — the frame table and swap allocator — carries
// its own lock).
type Table struct {
	pd     pagedir.Directory
	frames *frame.Table
	swp    *swap.Allocator

	entries map[mem.VPage]*Entry
}

// Create builds an empty supplemental page table bound to pd, frames,
// and swp.
func Create(pd pagedir.Directory, frames *frame.Table, swp *swap.Allocator) *Table {
	return &Table{
		pd:      pd,
		frames:  frames,
		swp:     swp,
		entries: make(map[mem.VPage]*Entry),
	}
}

// Destroy releases every entry: residents lose their frame table
// record, SWAP entries free their slot. Frames themselves are not
// freed — the page directory's own destruction does that.
func (t *Table) Destroy() {
	for upage, e := range t.entries {
		t.releaseEntry(e)
		delete(t.entries, upage)
	}
}

func (t *Table) releaseEntry(e *Entry) {
	if e.Resident() {
		t.frames.Remove(e.Frame())
		return
	}
	if e.kind == frame.KindSwap {
		t.swp.Free(e.slot)
	}
}

// SetZero inserts a zero-fill entry for upage.
func (t *Table) SetZero(upage mem.VPage) {
	t.entries[upage] = &Entry{upage: upage, pd: t.pd, kind: frame.KindZero, curFrame: mem.NoFrame}
}

// SetFile inserts a file-backed entry for upage. Used both for
// lazily-loaded executable segments and for mmap regions (isMmap
// distinguishes writeback-on-evict behavior).
func (t *Table) SetFile(upage mem.VPage, file fileobj.File, ofs int64, readBytes, zeroBytes int, writable, isMmap bool) {
	t.entries[upage] = &Entry{
		upage:     upage,
		pd:        t.pd,
		kind:      frame.KindFile,
		file:      file,
		ofs:       ofs,
		readBytes: readBytes,
		zeroBytes: zeroBytes,
		writable:  writable,
		isMmap:    isMmap,
		curFrame:  mem.NoFrame,
	}
}

// Get returns the entry for upage, or nil if none exists.
func (t *Table) Get(upage mem.VPage) *Entry {
	return t.entries[upage]
}

// ClearPage clears the hardware mapping for upage, if any, then
// releases the entry exactly as Destroy would for a single entry.
func (t *Table) ClearPage(upage mem.VPage) {
	e, ok := t.entries[upage]
	if !ok {
		return
	}
	t.pd.Clear(upage)
	t.releaseEntry(e)
	delete(t.entries, upage)
}

// Forget clears the hardware mapping and drops upage's entry without
// touching the frame table or swap allocator. It is for callers — the
// mmap manager's munmap path — that have already persisted and freed
// the entry's resources themselves and only need the bookkeeping
// undone.
func (t *Table) Forget(upage mem.VPage) {
	if _, ok := t.entries[upage]; !ok {
		return
	}
	t.pd.Clear(upage)
	delete(t.entries, upage)
}

// LoadPage runs the fault-path materialization for an already
// registered entry: allocate a frame, fill its content according to
// the entry's kind, and install the hardware mapping. It refuses
// (returns false) if the entry is already resident, which signals a
// stale or re-entrant fault.
func (t *Table) LoadPage(upage mem.VPage) bool {
	e, ok := t.entries[upage]
	if !ok {
		return false
	}
	if e.Resident() {
		log.WithField("vpage", upage).Warn("load_page: already resident")
		return false
	}

	f, err := t.frames.Alloc(e)
	if err != 0 {
		log.WithField("vpage", upage).WithError(errOf(err)).Warn("load_page: out of frames")
		return false
	}
	content := t.frames.Content(f)

	switch e.kind {
	case frame.KindZero:
		*content = mem.Page{}

	case frame.KindFile:
		*content = mem.Page{}
		n, rerr := e.file.ReadAt(content[:e.readBytes], e.ofs)
		if rerr != 0 || n != e.readBytes {
			t.frames.Free(f)
			log.WithField("vpage", upage).Warn("load_page: short read from backing file")
			return false
		}

	case frame.KindSwap:
		if !t.swp.SwapIn(content, e.slot) {
			t.frames.Free(f)
			log.WithField("vpage", upage).Warn("load_page: swap in failed")
			return false
		}
		// the allocator already freed the slot on a successful swap-in;
		// forget it here too so a later ClearPage/Destroy never frees a
		// slot that may since have been handed to a different entry.
		e.slot = swap.NoSlot
	}

	writable := e.kind != frame.KindFile || e.writable
	if !t.pd.Install(upage, f, writable) {
		t.frames.Free(f)
		log.WithField("vpage", upage).Warn("load_page: page directory out of resources")
		return false
	}
	t.pd.SetDirty(upage, false)
	e.SetFrame(f)
	return true
}

func errOf(e vmerr.Err_t) error { return loadError{e} }

type loadError struct{ e vmerr.Err_t }

func (l loadError) Error() string { return l.e.String() }
