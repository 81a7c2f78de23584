package frame_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vmcore/device"
	"vmcore/fileobj"
	"vmcore/frame"
	"vmcore/mem"
	"vmcore/pagedir"
	"vmcore/swap"
)

// fakeTenant is a minimal frame.Tenant for exercising Table in
// isolation from the supplemental page table.
type fakeTenant struct {
	kind     frame.Kind
	pd       *pagedir.Simulated
	vp       mem.VPage
	writable bool
	mmap     bool
	file     fileobj.File
	fileOfs  int64
	dirty    bool
	curFrame mem.Frame
	slot     swap.SlotIndex
}

func (t *fakeTenant) Kind() frame.Kind              { return t.kind }
func (t *fakeTenant) PageDir() pagedir.Directory    { return t.pd }
func (t *fakeTenant) VPage() mem.VPage              { return t.vp }
func (t *fakeTenant) Writable() bool                { return t.writable }
func (t *fakeTenant) IsMmap() bool                  { return t.mmap }
func (t *fakeTenant) FileBacking() (fileobj.File, int64) { return t.file, t.fileOfs }
func (t *fakeTenant) RefreshDirty() bool            { return t.dirty || t.pd.IsDirty(t.vp) }
func (t *fakeTenant) SetFrame(f mem.Frame)          { t.curFrame = f }
func (t *fakeTenant) RewriteSwap(slot swap.SlotIndex) {
	t.kind = frame.KindSwap
	t.slot = slot
}

func newSwap(t *testing.T, slots int) *swap.Allocator {
	dir := t.TempDir()
	dev := device.OpenFileBacked(dir+"/swap.img", slots*mem.SectorsPerPage)
	return swap.Init(dev)
}

func TestTableAllocFromPoolThenEvicts(t *testing.T) {
	pool := frame.NewSimplePool(2)
	swp := newSwap(t, 4)
	tbl := frame.NewTable(pool, swp, frame.PolicyClock)

	pd := pagedir.NewSimulated()
	mkTenant := func(vp mem.VPage) *fakeTenant {
		return &fakeTenant{kind: frame.KindZero, pd: pd, vp: vp, writable: true}
	}

	t1 := mkTenant(mem.VPage(0x1000))
	f1, err := tbl.Alloc(t1)
	require.Equal(t, 0, int(err))
	require.NotEqual(t, mem.NoFrame, f1)
	pd.Install(t1.vp, f1, true)

	t2 := mkTenant(mem.VPage(0x2000))
	f2, err := tbl.Alloc(t2)
	require.Equal(t, 0, int(err))
	pd.Install(t2.vp, f2, true)
	require.Equal(t, 2, tbl.Len())

	// pool exhausted: third alloc must evict one of t1/t2. Neither
	// was accessed since install, so clock picks the first it sees.
	t3 := mkTenant(mem.VPage(0x3000))
	f3, err := tbl.Alloc(t3)
	require.Equal(t, 0, int(err))
	require.Equal(t, 2, tbl.Len(), "table size stays at pool capacity after eviction")

	tenant, ok := tbl.Resident(f3)
	require.True(t, ok)
	require.Same(t, t3, tenant)
}

func TestTableClockSparesAccessedPage(t *testing.T) {
	pool := frame.NewSimplePool(2)
	swp := newSwap(t, 4)
	tbl := frame.NewTable(pool, swp, frame.PolicyClock)
	pd := pagedir.NewSimulated()

	t1 := &fakeTenant{kind: frame.KindZero, pd: pd, vp: mem.VPage(0x1000), writable: true}
	f1, _ := tbl.Alloc(t1)
	pd.Install(t1.vp, f1, true)
	pd.SetAccessed(t1.vp, true)

	t2 := &fakeTenant{kind: frame.KindZero, pd: pd, vp: mem.VPage(0x2000), writable: true}
	f2, _ := tbl.Alloc(t2)
	pd.Install(t2.vp, f2, true)
	// t2 left unaccessed

	t3 := &fakeTenant{kind: frame.KindZero, pd: pd, vp: mem.VPage(0x3000), writable: true}
	f3, err := tbl.Alloc(t3)
	require.Equal(t, 0, int(err))

	require.Equal(t, f2, f3, "clock must evict the unaccessed page, reusing its frame")
	tenant, ok := tbl.Resident(f1)
	require.True(t, ok)
	require.Same(t, t1, tenant, "accessed page survives the first sweep")
}

func TestTableEvictDirtyZeroGoesToSwap(t *testing.T) {
	pool := frame.NewSimplePool(1)
	swp := newSwap(t, 4)
	tbl := frame.NewTable(pool, swp, frame.PolicyFIFO)
	pd := pagedir.NewSimulated()

	victim := &fakeTenant{kind: frame.KindZero, pd: pd, vp: mem.VPage(0x1000), writable: true, dirty: true}
	f1, _ := tbl.Alloc(victim)
	pd.Install(victim.vp, f1, true)
	*tbl.Content(f1) = mem.Page{}
	tbl.Content(f1)[0] = 0xAB

	next := &fakeTenant{kind: frame.KindZero, pd: pd, vp: mem.VPage(0x2000), writable: true}
	_, err := tbl.Alloc(next)
	require.Equal(t, 0, int(err))

	require.Equal(t, frame.KindSwap, victim.Kind())
	require.NotEqual(t, swap.NoSlot, victim.slot)
	require.Equal(t, mem.NoFrame, victim.curFrame)
}

func TestTableFreeReturnsFrameToPool(t *testing.T) {
	pool := frame.NewSimplePool(1)
	swp := newSwap(t, 2)
	tbl := frame.NewTable(pool, swp, frame.PolicyClock)
	pd := pagedir.NewSimulated()

	t1 := &fakeTenant{kind: frame.KindZero, pd: pd, vp: mem.VPage(0x1000), writable: true}
	f1, _ := tbl.Alloc(t1)
	tbl.Free(f1)
	require.Equal(t, 0, tbl.Len())

	t2 := &fakeTenant{kind: frame.KindZero, pd: pd, vp: mem.VPage(0x2000), writable: true}
	f2, err := tbl.Alloc(t2)
	require.Equal(t, 0, int(err))
	require.Equal(t, f1, f2, "freed frame is recycled by the pool")
}
