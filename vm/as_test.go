package vm_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"vmcore/device"
	"vmcore/fileobj"
	"vmcore/frame"
	"vmcore/mem"
	"vmcore/pgfault"
	"vmcore/swap"
	"vmcore/vm"
)

const physBase = uintptr(0xC0000000)

func newSwap(t *testing.T, slots int) *swap.Allocator {
	dir := t.TempDir()
	dev := device.OpenFileBacked(dir+"/swap.img", slots*mem.SectorsPerPage)
	return swap.Init(dev)
}

// TestStackGrowthAddsExactlyTwoEntries checks that two successive
// faults just below the stack pointer each grow the stack by exactly
// one page.
func TestStackGrowthAddsExactlyTwoEntries(t *testing.T) {
	swp := newSwap(t, 16)
	frames := frame.NewTable(frame.NewSimplePool(16), swp, frame.PolicyClock)
	as := vm.New(frames, swp, physBase, vm.Config{})

	initialEsp := physBase - uintptr(mem.PageSize)
	as.SetESP(initialEsp)

	// register the initial stack page the loader would set up.
	as.SPT().SetZero(mem.PageRoundDown(initialEsp))
	require.True(t, as.SPT().LoadPage(mem.PageRoundDown(initialEsp)))

	before := 1 // the page just registered above

	for i := 1; i <= 2; i++ {
		addr := initialEsp - uintptr(i)*uintptr(mem.PageSize)
		as.SetESP(addr) // the push that faults also moves esp down to it
		out := as.HandleFault(pgfault.Info{Addr: addr, User: true})
		require.Equal(t, pgfault.Resolved, out)
	}

	count := 0
	for i := 0; i <= 2; i++ {
		vp := mem.PageRoundDown(initialEsp - uintptr(i)*uintptr(mem.PageSize))
		if as.SPT().Get(vp) != nil {
			count++
		}
	}
	require.Equal(t, before+2, count)
}

// TestUserBufferWriteMarksDirtyReadDoesNot checks that a read-only
// probe of user memory never dirties the page it touches.
func TestUserBufferWriteMarksDirtyReadDoesNot(t *testing.T) {
	swp := newSwap(t, 16)
	frames := frame.NewTable(frame.NewSimplePool(16), swp, frame.PolicyClock)
	as := vm.New(frames, swp, physBase, vm.Config{})

	addr := uintptr(0x08000000)
	as.SPT().SetZero(mem.PageRoundDown(addr))

	ub := vm.NewUserBuffer(as, addr, 16)
	dst := make([]byte, 16)
	n, err := ub.Read(dst)
	require.Equal(t, 0, int(err))
	require.Equal(t, 16, n)
	require.False(t, as.PageDir().IsDirty(mem.PageRoundDown(addr)))

	wb := vm.NewUserBuffer(as, addr, 16)
	n, err = wb.Write([]byte("hello, world!!!!"))
	require.Equal(t, 0, int(err))
	require.Equal(t, 16, n)
	require.True(t, as.PageDir().IsDirty(mem.PageRoundDown(addr)))
}

func TestDestroyUnmapsBeforeDestroyingPageDir(t *testing.T) {
	swp := newSwap(t, 16)
	frames := frame.NewTable(frame.NewSimplePool(16), swp, frame.PolicyClock)
	as := vm.New(frames, swp, physBase, vm.Config{})

	as.SPT().SetZero(mem.VPage(0x1000))
	require.True(t, as.SPT().LoadPage(mem.VPage(0x1000)))

	// a dirty mmap page only reaches its file if the unmap runs while
	// the page directory still reports the page's dirty bit.
	path := t.TempDir() + "/mapped.bin"
	require.NoError(t, os.WriteFile(path, make([]byte, mem.PageSize), 0644))
	f, ferr := fileobj.Open(path)
	require.Equal(t, 0, int(ferr))
	base := mem.VPage(0x08000000)
	_, merr := as.Mmap().Mmap(f, base)
	require.Equal(t, 0, int(merr))
	_, werr := vm.NewUserBuffer(as, base.Addr(), 1).Write([]byte{'Z'})
	require.Equal(t, 0, int(werr))

	require.NotPanics(t, as.Destroy)
	out, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	require.Equal(t, byte('Z'), out[0], "the dirty mmap page is written back before the page directory is destroyed")
}
