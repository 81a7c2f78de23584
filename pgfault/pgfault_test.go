package pgfault_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vmcore/device"
	"vmcore/frame"
	"vmcore/mem"
	"vmcore/pagedir"
	"vmcore/pgfault"
	"vmcore/spt"
	"vmcore/swap"
)

func newSwap(t *testing.T, slots int) *swap.Allocator {
	dir := t.TempDir()
	dev := device.OpenFileBacked(dir+"/swap.img", slots*mem.SectorsPerPage)
	return swap.Init(dev)
}

const physBase = uintptr(0xC0000000)

func stdCfg() pgfault.StackConfig {
	return pgfault.StackConfig{PhysBase: physBase, StackLimit: 8 << 20}
}

// newTable builds an SPT and its page directory sharing one swap
// allocator with the frame table backing it, the way vm.New wires a
// real address space.
func newTable(t *testing.T) (*pagedir.Simulated, *spt.Table) {
	pd := pagedir.NewSimulated()
	swp := newSwap(t, 4)
	frames := frame.NewTable(frame.NewSimplePool(4), swp, frame.PolicyClock)
	return pd, spt.Create(pd, frames, swp)
}

func TestResolveRegisteredZeroEntry(t *testing.T) {
	pd, tbl := newTable(t)

	vp := mem.VPage(0x1000)
	tbl.SetZero(vp)

	out := pgfault.Resolve(tbl, pgfault.Info{Addr: 0x1004, User: true}, physBase-4096, stdCfg())
	require.Equal(t, pgfault.Resolved, out)
	require.True(t, pd.Present(vp))
}

func TestResolveWriteToReadOnlyIsBad(t *testing.T) {
	_, tbl := newTable(t)

	out := pgfault.Resolve(tbl, pgfault.Info{Addr: 0x1000, Present: true, Write: true, User: true}, physBase, stdCfg())
	require.Equal(t, pgfault.BadAccess, out)
}

func TestResolveStackGrowth(t *testing.T) {
	_, tbl := newTable(t)

	esp := physBase - 8
	out := pgfault.Resolve(tbl, pgfault.Info{Addr: esp, User: true}, esp, stdCfg())
	require.Equal(t, pgfault.Resolved, out)
	require.NotNil(t, tbl.Get(mem.PageRoundDown(esp)))
}

func TestResolveFarBelowEspIsBad(t *testing.T) {
	_, tbl := newTable(t)

	esp := physBase - 4096
	out := pgfault.Resolve(tbl, pgfault.Info{Addr: esp - 1<<20, User: true}, esp, stdCfg())
	require.Equal(t, pgfault.BadAccess, out)
}

func TestResolveNoEntryNotStackGrowthIsBad(t *testing.T) {
	_, tbl := newTable(t)

	out := pgfault.Resolve(tbl, pgfault.Info{Addr: 0x8000, User: true}, physBase-4096, stdCfg())
	require.Equal(t, pgfault.BadAccess, out)
}
