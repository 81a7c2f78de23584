// Package frame implements the system-wide frame table and its
// replacement policy: a registry of every physical frame currently
// held by a user process, plus clock (default) or FIFO eviction when
// the underlying pool is exhausted.
package frame

import (
	"container/list"
	"sync"

	"vmcore/mem"
	"vmcore/swap"
	"vmcore/vmerr"
	"vmcore/vmlog"
)

var log = vmlog.For("frame")

// Policy selects the replacement algorithm a Table runs when the
// pool is exhausted. It is a constructor argument; a single Table
// never mixes policies mid-run.
type Policy int

const (
	PolicyClock Policy = iota
	PolicyFIFO
)

// Record is one frame table entry: the frame's identity and its
// current tenant. Position in Table's internal list doubles as clock
// sweep order.
type Record struct {
	Frame  mem.Frame
	Tenant Tenant
}

// Table is the global frame table. One Table is shared by every
// process in a vm.System, behind a single frame-table lock.
type Table struct {
	mu     sync.Mutex
	pool   Pool
	swap   *swap.Allocator
	policy Policy

	order   *list.List // of *Record, oldest/clock-order first
	byFrame map[mem.Frame]*list.Element
	cursor  *list.Element
}

// NewTable constructs an empty frame table over pool, using swp for
// eviction write-back of dirty/anonymous pages.
func NewTable(pool Pool, swp *swap.Allocator, policy Policy) *Table {
	return &Table{
		pool:    pool,
		swap:    swp,
		policy:  policy,
		order:   list.New(),
		byFrame: make(map[mem.Frame]*list.Element),
	}
}

// Alloc gives tenant a frame, allocating fresh from the pool if
// possible and otherwise evicting a victim per the configured policy.
// The caller must initialize the returned frame's content — Alloc
// never zeroes it.
func (t *Table) Alloc(tenant Tenant) (mem.Frame, vmerr.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.pool.Alloc(); ok {
		rec := &Record{Frame: f, Tenant: tenant}
		elem := t.order.PushBack(rec)
		t.byFrame[f] = elem
		if t.cursor == nil {
			t.cursor = elem
		}
		return f, 0
	}

	victimElem := t.selectVictim()
	if victimElem == nil {
		return mem.NoFrame, -vmerr.ENOMEM
	}
	victim := victimElem.Value.(*Record)
	if err := t.evict(victim); err != 0 {
		return mem.NoFrame, err
	}
	victim.Tenant = tenant
	if t.policy == PolicyFIFO {
		t.order.MoveToBack(victimElem)
	}
	return victim.Frame, 0
}

// Free removes the record for frame and returns the frame to the
// pool: used when the caller, not the hardware page directory, owns
// the frame's lifetime from here on.
func (t *Table) Free(f mem.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removeLocked(f) {
		t.pool.Free(f)
	}
}

// Remove removes the record for frame without returning it to the
// pool: used when the hardware page directory will free the frame
// itself, e.g. during process teardown.
func (t *Table) Remove(f mem.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(f)
}

// Content exposes the pool's raw storage for a resident frame, used
// by the fault resolver and mmap manager to fill or read page bytes.
func (t *Table) Content(f mem.Frame) *mem.Page {
	return t.pool.Content(f)
}

// Resident reports whether f currently has a live record, and its
// tenant.
func (t *Table) Resident(f mem.Frame) (Tenant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elem, ok := t.byFrame[f]
	if !ok {
		return nil, false
	}
	return elem.Value.(*Record).Tenant, true
}

// Len reports the number of frames currently tracked, for tests that
// check the invariant that the sum over a process's SPT of resident
// pages equals that process's count in the frame table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

func (t *Table) removeLocked(f mem.Frame) bool {
	elem, ok := t.byFrame[f]
	if !ok {
		return false
	}
	if t.cursor == elem {
		t.cursor = elem.Next()
	}
	t.order.Remove(elem)
	delete(t.byFrame, f)
	return true
}

// selectVictim runs the configured replacement policy and returns
// the chosen element, advancing the sweep cursor as a side effect.
// Must be called with t.mu held.
func (t *Table) selectVictim() *list.Element {
	if t.order.Len() == 0 {
		return nil
	}
	switch t.policy {
	case PolicyFIFO:
		return t.order.Front()
	default:
		return t.clockSweep()
	}
}

func (t *Table) clockSweep() *list.Element {
	start := t.cursor
	if start == nil {
		start = t.order.Front()
	}
	elem := start
	for i := 0; i < 2*t.order.Len()+1; i++ {
		rec := elem.Value.(*Record)
		vp := rec.Tenant.VPage()
		pd := rec.Tenant.PageDir()
		if pd.IsAccessed(vp) {
			pd.SetAccessed(vp, false)
			elem = t.nextRing(elem)
			continue
		}
		t.cursor = t.nextRing(elem)
		return elem
	}
	// every frame's accessed bit was set on every pass: pathological,
	// but still correct to evict the frame the cursor landed on.
	t.cursor = t.nextRing(elem)
	return elem
}

func (t *Table) nextRing(elem *list.Element) *list.Element {
	if n := elem.Next(); n != nil {
		return n
	}
	return t.order.Front()
}

// evict persists or discards victim's content following the eviction
// decision tree, then clears the hardware mapping. Must be called
// with t.mu held.
func (t *Table) evict(victim *Record) vmerr.Err_t {
	tenant := victim.Tenant
	dirty := tenant.RefreshDirty()
	vp := tenant.VPage()
	content := t.pool.Content(victim.Frame)

	switch {
	case tenant.Kind() == KindFile && !tenant.Writable():
		// re-derivable from the file; nothing to persist.
		log.WithField("vpage", vp).Debug("evict: discard read-only file page")

	case tenant.Kind() == KindFile && tenant.Writable() && tenant.IsMmap() && dirty:
		f, ofs := tenant.FileBacking()
		if _, err := f.WriteAt(content[:], ofs); err != 0 {
			log.WithField("vpage", vp).WithError(errOf(err)).Warn("evict: mmap writeback failed")
			return -vmerr.EIO
		}
		log.WithField("vpage", vp).Debug("evict: wrote dirty mmap page back to file")

	case dirty || tenant.Kind() == KindSwap:
		slot, err := t.swap.SwapOut(content)
		if err != 0 {
			return err
		}
		tenant.RewriteSwap(slot)
		log.WithField("vpage", vp).WithField("slot", slot).Debug("evict: wrote page to swap")

	default:
		// clean zero-fill or clean writable-non-mmap file page:
		// discard explicitly rather than falling through to swap.
		log.WithField("vpage", vp).Debug("evict: discard clean page")
	}

	tenant.PageDir().Clear(vp)
	tenant.SetFrame(mem.NoFrame)
	return 0
}

func errOf(e vmerr.Err_t) error { return evictError{e} }

type evictError struct{ e vmerr.Err_t }

func (e evictError) Error() string { return e.e.String() }
