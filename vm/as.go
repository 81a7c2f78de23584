// Package vm ties the supplemental page table, frame table, mmap
// manager, and simulated page directory together into one process
// address space, and provides the user-memory access helper
// (UserBuffer) system calls use to read and write it.
package vm

import (
	"sync"

	"vmcore/frame"
	"vmcore/mem"
	"vmcore/mmap"
	"vmcore/pagedir"
	"vmcore/pgfault"
	"vmcore/spt"
	"vmcore/swap"
	"vmcore/vmlog"
)

var log = vmlog.For("vm")

// Config holds per-address-space settings. StackLimit bounds stack
// growth. Policy records the replacement policy of the System the
// address space was created from; setting it has no effect of its
// own, since the shared frame table's policy is fixed when the System
// is built. Page size is fixed at mem.PageSize throughout this
// module, so it is not configurable here.
type Config struct {
	StackLimit uintptr // defaults to 8 MiB if zero
	Policy     frame.Policy
}

const defaultStackLimit = 8 << 20

// AddressSpace represents one process's virtual memory: its
// supplemental page table, its mmap records, and the simulated
// hardware page directory they install mappings into. The embedded
// mutex serializes every operation that touches page-directory and
// SPT state.
type AddressSpace struct {
	sync.Mutex
	pgfltaken bool

	pd     *pagedir.Simulated
	spt    *spt.Table
	frames *frame.Table
	mmapM  *mmap.Manager
	cfg    Config

	physBase uintptr
	esp      uintptr
}

// New builds an address space sharing the system-wide frame table and
// swap allocator, with its own page directory, supplemental page
// table, and mmap manager. physBase is the address immediately above
// the user address space, from which the stack grows down.
func New(frames *frame.Table, swp *swap.Allocator, physBase uintptr, cfg Config) *AddressSpace {
	if cfg.StackLimit == 0 {
		cfg.StackLimit = defaultStackLimit
	}
	pd := pagedir.NewSimulated()
	tbl := spt.Create(pd, frames, swp)
	return &AddressSpace{
		pd:       pd,
		spt:      tbl,
		frames:   frames,
		mmapM:    mmap.New(tbl, frames, swp),
		cfg:      cfg,
		physBase: physBase,
	}
}

// Lock_pmap acquires the address space lock and records that it is
// held, which Lockassert_pmap checks. The lock is not re-entrant: a
// second Lock_pmap from the holder blocks.
func (as *AddressSpace) Lock_pmap() {
	as.Lock()
	as.pgfltaken = true
}

// Unlock_pmap releases the address space lock.
func (as *AddressSpace) Unlock_pmap() {
	as.pgfltaken = false
	as.Unlock()
}

// Lockassert_pmap panics if the caller does not hold the address
// space lock; used by internal helpers that require it.
func (as *AddressSpace) Lockassert_pmap() {
	if !as.pgfltaken {
		panic("vm: pmap lock must be held")
	}
}

// SetESP records the user stack pointer saved on kernel entry, read
// by the stack-growth check on the next fault.
func (as *AddressSpace) SetESP(esp uintptr) {
	as.Lock_pmap()
	as.esp = esp
	as.Unlock_pmap()
}

// PageDir returns the simulated hardware page directory, for tests
// and the demo harness that need to inspect raw mapping state.
func (as *AddressSpace) PageDir() *pagedir.Simulated { return as.pd }

// SPT returns the supplemental page table, so callers can register
// ELF-segment and stack entries directly.
func (as *AddressSpace) SPT() *spt.Table { return as.spt }

// Mmap returns the mmap manager bound to this address space.
func (as *AddressSpace) Mmap() *mmap.Manager { return as.mmapM }

func (as *AddressSpace) stackConfig() pgfault.StackConfig {
	return pgfault.StackConfig{PhysBase: as.physBase, StackLimit: as.cfg.StackLimit}
}

// HandleFault runs the page-fault resolver for one hardware fault,
// serialized behind the address space lock.
func (as *AddressSpace) HandleFault(info pgfault.Info) pgfault.Outcome {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	out := pgfault.Resolve(as.spt, info, as.esp, as.stackConfig())
	if out == pgfault.BadAccess {
		log.WithField("addr", info.Addr).Warn("fault: bad access, process killed")
	}
	return out
}

// Activate installs this address space's page directory as current.
func (as *AddressSpace) Activate() { as.pd.Activate() }

// Destroy tears the address space down in dependency order: every
// live mmap is unmapped first (so dirty pages flush while the page
// directory is still intact), then the remaining supplemental page
// table entries are released, and only then is the hardware page
// directory itself destroyed.
func (as *AddressSpace) Destroy() {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	as.mmapM.MunmapAll()
	as.spt.Destroy()
	as.pd.Destroy()
}

// ensureMapped makes sure vp has a live hardware mapping, faulting it
// in through the normal resolver if it has no SPT entry yet (this is
// how a stack-growth access via a UserBuffer is indistinguishable
// from a hardware trap), or through a direct load_page if it is
// registered but not yet resident. The caller must hold the address
// space lock.
func (as *AddressSpace) ensureMapped(vp mem.VPage, write bool) bool {
	as.Lockassert_pmap()
	e := as.spt.Get(vp)
	if e == nil {
		out := pgfault.Resolve(as.spt, pgfault.Info{Addr: vp.Addr(), Write: write, User: true}, as.esp, as.stackConfig())
		return out == pgfault.Resolved
	}
	if write && !e.Writable() {
		return false
	}
	if !e.Resident() {
		return as.spt.LoadPage(vp)
	}
	return true
}
