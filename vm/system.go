package vm

import (
	"sync"

	"vmcore/device"
	"vmcore/frame"
	"vmcore/swap"
)

// System is the module-level context shared in place of bare
// package-level singletons: the process-wide state a lock order must
// be enforced across. Every AddressSpace created from the same
// System shares its frame table and swap allocator.
//
// Lock order, enforced by construction rather than a runtime
// checker: FSLock, then Frames, then Swap. Nothing in this module
// acquires Swap before Frames or Frames before FSLock.
type System struct {
	FSLock *sync.Mutex
	Frames *frame.Table
	Swap   *swap.Allocator

	PhysBase uintptr
	Policy   frame.Policy

	// PoolFrames is the physical frame pool's total capacity, recorded
	// here since frame.Pool exposes no capacity accessor through the
	// frame.Table itself.
	PoolFrames int
}

// NewSystem builds the shared physical memory pool and swap device
// backing every address space the caller creates from it.
func NewSystem(poolFrames int, swapDev device.Block, physBase uintptr, policy frame.Policy) *System {
	swp := swap.Init(swapDev)
	return &System{
		FSLock:     &sync.Mutex{},
		Frames:     frame.NewTable(frame.NewSimplePool(poolFrames), swp, policy),
		Swap:       swp,
		PhysBase:   physBase,
		Policy:     policy,
		PoolFrames: poolFrames,
	}
}

// NewAddressSpace creates a process address space under this system.
func (s *System) NewAddressSpace(cfg Config) *AddressSpace {
	cfg.Policy = s.Policy
	return New(s.Frames, s.Swap, s.PhysBase, cfg)
}
