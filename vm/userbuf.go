package vm

import (
	"vmcore/mem"
	"vmcore/vmerr"
)

// UserBuffer assists transferring bytes to and from a contiguous
// range of one address space's user memory, fault-in included:
// address lookups and the underlying fault are atomic with respect
// to any other page fault in this address space, since both run
// under Lock_pmap.
type UserBuffer struct {
	as   *AddressSpace
	addr uintptr
	len  int
	off  int
}

// NewUserBuffer describes length bytes of as's user memory starting
// at addr.
func NewUserBuffer(as *AddressSpace, addr uintptr, length int) *UserBuffer {
	return &UserBuffer{as: as, addr: addr, len: length}
}

// Remain reports the number of bytes not yet transferred.
func (ub *UserBuffer) Remain() int { return ub.len - ub.off }

// TotalSize reports the buffer's total length.
func (ub *UserBuffer) TotalSize() int { return ub.len }

// Read copies from user memory into dst, reusing the ordinary fault
// path to fault in any unmapped page first. It never marks a page
// dirty, since no byte of user memory is changed by a read.
func (ub *UserBuffer) Read(dst []byte) (int, vmerr.Err_t) {
	ub.as.Lock_pmap()
	defer ub.as.Unlock_pmap()
	return ub.tx(dst, false)
}

// Write copies src into user memory, faulting in and marking each
// touched page dirty.
func (ub *UserBuffer) Write(src []byte) (int, vmerr.Err_t) {
	ub.as.Lock_pmap()
	defer ub.as.Unlock_pmap()
	return ub.tx(src, true)
}

func (ub *UserBuffer) tx(buf []byte, write bool) (int, vmerr.Err_t) {
	done := 0
	for len(buf) > 0 && ub.off != ub.len {
		va := ub.addr + uintptr(ub.off)
		vp := mem.PageRoundDown(va)
		if !ub.as.ensureMapped(vp, write) {
			return done, -vmerr.EFAULT
		}
		e := ub.as.spt.Get(vp)
		content := ub.as.frames.Content(e.Frame())
		voff := mem.Offset(va)
		avail := mem.PageSize - voff
		if remain := ub.len - ub.off; avail > remain {
			avail = remain
		}
		n := len(buf)
		if n > avail {
			n = avail
		}

		var c int
		if write {
			c = copy(content[voff:voff+avail], buf[:n])
			ub.as.pd.SetDirty(vp, true)
		} else {
			c = copy(buf[:n], content[voff:voff+avail])
		}
		buf = buf[c:]
		ub.off += c
		done += c
	}
	return done, 0
}
