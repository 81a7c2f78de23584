// Package swap implements the swap slot allocator: a fixed-size
// bitmap over a device partitioned into page-sized slots, serialized
// on one lock with I/O held inside the critical section — the device
// is assumed internally synchronized but slow, which is acceptable
// because contention is low.
package swap

import (
	"math/bits"
	"sync"

	"vmcore/device"
	"vmcore/mem"
	"vmcore/vmerr"
	"vmcore/vmlog"
)

// SlotIndex identifies one swap slot. Valid indices are
// 0 <= i < Allocator.Count().
type SlotIndex int

// NoSlot is returned in place of a valid SlotIndex on failure.
const NoSlot SlotIndex = -1

var log = vmlog.For("swap")

// Allocator is the swap bitmap. Convention: a set bit means free.
type Allocator struct {
	mu    sync.Mutex
	dev   device.Block
	words []uint64
	n     int
}

// Init acquires the swap device and sizes the bitmap to its slot
// count, marking every slot free. It panics if dev is nil, since a
// missing device is unrecoverable — device.OpenFileBacked itself
// already panics if the backing file cannot be created.
func Init(dev device.Block) *Allocator {
	if dev == nil {
		panic("swap: device absent")
	}
	n := dev.SectorCount() / mem.SectorsPerPage
	a := &Allocator{
		dev:   dev,
		words: make([]uint64, (n+63)/64),
		n:     n,
	}
	for i := range a.words {
		a.words[i] = ^uint64(0)
	}
	if n%64 != 0 {
		// clear the high bits of the last word so they never look free
		valid := uint(n % 64)
		a.words[len(a.words)-1] = (uint64(1) << valid) - 1
	}
	log.WithField("slots", n).Info("swap device initialized")
	return a
}

// Count reports the total number of slots.
func (a *Allocator) Count() int {
	return a.n
}

// FreeCount reports the number of currently-free slots, for tests
// that check a slot is genuinely returned to the pool rather than
// merely forgotten by its SPT entry.
func (a *Allocator) FreeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	free := 0
	for i := 0; i < a.n; i++ {
		if a.isFreeLocked(SlotIndex(i)) {
			free++
		}
	}
	return free
}

// SwapOut writes page to a newly allocated slot and returns its
// index, or ENOMEM if the device is full.
func (a *Allocator) SwapOut(page *mem.Page) (SlotIndex, vmerr.Err_t) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot := a.scanFreeLocked()
	if slot == NoSlot {
		log.Warn("swap device exhausted")
		return NoSlot, -vmerr.ENOMEM
	}
	a.markLocked(slot, false)
	if err := a.dev.WriteSectors(page[:], int(slot)*mem.SectorsPerPage); err != 0 {
		// leave the slot marked occupied: its content is garbage, but
		// handing it back out would silently corrupt whoever gets it
		// next. The caller treats this as OutOfFrames-equivalent.
		log.WithField("slot", slot).WithError(errOf(err)).Error("swap out failed")
		return NoSlot, -vmerr.EIO
	}
	log.WithField("slot", slot).Debug("swap out")
	return slot, 0
}

// SwapIn reads slot's content into page and frees the slot. It
// validates the slot is in range and occupied; an invalid or already
// free slot returns false with no side effect.
func (a *Allocator) SwapIn(page *mem.Page, slot SlotIndex) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if slot < 0 || int(slot) >= a.n || a.isFreeLocked(slot) {
		return false
	}
	if err := a.dev.ReadSectors(page[:], int(slot)*mem.SectorsPerPage); err != 0 {
		log.WithField("slot", slot).WithError(errOf(err)).Error("swap in failed")
		return false
	}
	a.markLocked(slot, true)
	log.WithField("slot", slot).Debug("swap in")
	return true
}

// Free marks slot free without any I/O; used when the owning SPT
// entry is destroyed without ever being swapped back in.
func (a *Allocator) Free(slot SlotIndex) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slot < 0 || int(slot) >= a.n {
		return
	}
	a.markLocked(slot, true)
}

func (a *Allocator) scanFreeLocked() SlotIndex {
	for w, word := range a.words {
		if word == 0 {
			continue
		}
		b := bits.TrailingZeros64(word)
		idx := w*64 + b
		if idx >= a.n {
			continue
		}
		return SlotIndex(idx)
	}
	return NoSlot
}

func (a *Allocator) isFreeLocked(slot SlotIndex) bool {
	w, b := int(slot)/64, uint(int(slot)%64)
	return a.words[w]&(1<<b) != 0
}

func (a *Allocator) markLocked(slot SlotIndex, free bool) {
	w, b := int(slot)/64, uint(int(slot)%64)
	if free {
		a.words[w] |= 1 << b
	} else {
		a.words[w] &^= 1 << b
	}
}

// errOf adapts an Err_t to something logrus's WithError will render;
// Err_t implements Stringer but not error, since it is not meant to
// satisfy Go's error interface (see vmerr package doc).
func errOf(e vmerr.Err_t) error { return stringerError{e} }

type stringerError struct{ e vmerr.Err_t }

func (s stringerError) Error() string { return s.e.String() }
