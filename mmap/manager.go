// Package mmap implements the memory-mapped file manager: mapping a
// file's pages into a process's address space as lazily-loaded FILE
// supplemental page table entries, and writing modified pages back
// to the file on unmap.
package mmap

import (
	"vmcore/fileobj"
	"vmcore/frame"
	"vmcore/mem"
	"vmcore/spt"
	"vmcore/swap"
	"vmcore/vmerr"
	"vmcore/vmlog"
)

var log = vmlog.For("mmap")

// Record describes one live mapping: an id, the (reopened) file it
// maps, its base address, and the number of pages it spans.
type Record struct {
	ID    int
	File  fileobj.File
	Addr  mem.VPage
	Pages int
}

// Manager owns the mmap records for a single process and the
// supplemental page table, frame table, and swap allocator it
// installs entries against.
type Manager struct {
	tbl    *spt.Table
	frames *frame.Table
	swp    *swap.Allocator

	records map[int]*Record
	nextID  int
}

// New builds an empty mmap manager bound to a process's SPT, the
// shared frame table, and the shared swap allocator.
func New(tbl *spt.Table, frames *frame.Table, swp *swap.Allocator) *Manager {
	return &Manager{tbl: tbl, frames: frames, swp: swp, records: make(map[int]*Record)}
}

// Mmap maps file's full contents at addr, returning a non-negative
// mapping id on success. file should already be the process's own
// open handle; Mmap reopens it so the mapping survives a later close
// of the caller's fd.
func (m *Manager) Mmap(file fileobj.File, addr mem.VPage) (int, vmerr.Err_t) {
	if addr.Addr() == 0 || !mem.Aligned(addr.Addr()) {
		return -1, -vmerr.EINVAL
	}
	length, err := file.Length()
	if err != 0 {
		return -1, -vmerr.EINVAL
	}
	if length <= 0 {
		return -1, -vmerr.EINVAL
	}

	reopened, err := file.Reopen()
	if err != 0 {
		return -1, -vmerr.EIO
	}

	pageCount := int((length + int64(mem.PageSize) - 1) / int64(mem.PageSize))
	registered := make([]mem.VPage, 0, pageCount)

	rollback := func() {
		for _, vp := range registered {
			m.tbl.Forget(vp)
		}
		reopened.Close()
	}

	for i := 0; i < pageCount; i++ {
		vp := addr.Add(i)
		if m.tbl.Get(vp) != nil {
			log.WithField("addr", vp.Addr()).Warn("mmap: overlaps an existing mapping")
			rollback()
			return -1, -vmerr.EINVAL
		}
		ofs := int64(i) * int64(mem.PageSize)
		readBytes := int(mem.Min(int64(mem.PageSize), length-ofs))
		m.tbl.SetFile(vp, reopened, ofs, readBytes, mem.PageSize-readBytes, true, true)
		registered = append(registered, vp)
	}

	id := m.nextID
	m.nextID++
	m.records[id] = &Record{ID: id, File: reopened, Addr: addr, Pages: pageCount}
	log.WithField("id", id).WithField("pages", pageCount).Debug("mmap: mapped")
	return id, 0
}

// Munmap unmaps id, writing back any dirty pages. Unknown ids are a
// silent no-op.
func (m *Manager) Munmap(id int) {
	rec, ok := m.records[id]
	if !ok {
		return
	}
	m.unmapRecord(rec)
	delete(m.records, id)
}

// MunmapAll unmaps every live mapping, the way process exit walks
// every outstanding mapping and invokes the same unmap path.
func (m *Manager) MunmapAll() {
	for id, rec := range m.records {
		m.unmapRecord(rec)
		delete(m.records, id)
	}
}

func (m *Manager) unmapRecord(rec *Record) {
	for i := 0; i < rec.Pages; i++ {
		vp := rec.Addr.Add(i)
		e := m.tbl.Get(vp)
		if e == nil {
			continue
		}
		ofs := e.Offset()

		switch {
		case e.Resident() && e.RefreshDirty():
			content := m.frames.Content(e.Frame())
			if _, werr := rec.File.WriteAt(content[:], ofs); werr != 0 {
				log.WithField("addr", vp.Addr()).WithError(errOf(werr)).Warn("munmap: writeback failed")
			}
			m.frames.Free(e.Frame())

		case e.Kind() == frame.KindSwap:
			// Defensive: under this module's eviction policy an mmap
			// entry never transitions to SWAP (mmap+dirty always
			// writes back directly), but handle it correctly by
			// reading the slot into a fresh page rather than reusing
			// an already-freed resident frame.
			var tmp mem.Page
			if m.swp.SwapIn(&tmp, e.SwapSlot()) {
				if _, werr := rec.File.WriteAt(tmp[:], ofs); werr != 0 {
					log.WithField("addr", vp.Addr()).WithError(errOf(werr)).Warn("munmap: writeback failed")
				}
			} else {
				m.swp.Free(e.SwapSlot())
			}

		case e.Resident():
			m.frames.Free(e.Frame())
		}

		m.tbl.Forget(vp)
	}
	rec.File.Close()
}

func errOf(e vmerr.Err_t) error { return mmapError{e} }

type mmapError struct{ e vmerr.Err_t }

func (m mmapError) Error() string { return m.e.String() }
