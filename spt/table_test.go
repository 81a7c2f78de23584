package spt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vmcore/device"
	"vmcore/fileobj"
	"vmcore/frame"
	"vmcore/mem"
	"vmcore/pagedir"
	"vmcore/spt"
	"vmcore/swap"
)

func newSwap(t *testing.T, slots int) *swap.Allocator {
	dir := t.TempDir()
	dev := device.OpenFileBacked(dir+"/swap.img", slots*mem.SectorsPerPage)
	return swap.Init(dev)
}

func TestLoadPageZero(t *testing.T) {
	pd := pagedir.NewSimulated()
	swp := newSwap(t, 4)
	tbl := spt.Create(pd, frame.NewTable(frame.NewSimplePool(4), swp, frame.PolicyClock), swp)

	vp := mem.VPage(0x1000)
	tbl.SetZero(vp)
	require.True(t, tbl.LoadPage(vp))
	require.True(t, pd.Present(vp))

	e := tbl.Get(vp)
	require.True(t, e.Resident())
	require.False(t, tbl.LoadPage(vp), "a second load_page on an already-resident entry must refuse")
}

func TestLoadPageFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/data.bin"
	content := make([]byte, mem.PageSize)
	for i := range content[:100] {
		content[i] = byte(i)
	}
	f, err := fileobj.Create(path, int64(len(content)))
	require.Equal(t, 0, int(err))
	_, err = f.WriteAt(content[:100], 0)
	require.Equal(t, 0, int(err))

	pd := pagedir.NewSimulated()
	swp := newSwap(t, 4)
	frames := frame.NewTable(frame.NewSimplePool(4), swp, frame.PolicyClock)
	tbl := spt.Create(pd, frames, swp)

	vp := mem.VPage(0x2000)
	tbl.SetFile(vp, f, 0, 100, mem.PageSize-100, true, false)
	require.True(t, tbl.LoadPage(vp))

	fr := tbl.Get(vp).Frame()
	page := frames.Content(fr)
	require.Equal(t, byte(50), page[50])
	require.Equal(t, byte(0), page[200], "trailing zero_bytes must be zero-filled")
}

func TestClearPageReleasesResources(t *testing.T) {
	pd := pagedir.NewSimulated()
	swp := newSwap(t, 4)
	frames := frame.NewTable(frame.NewSimplePool(4), swp, frame.PolicyClock)
	tbl := spt.Create(pd, frames, swp)

	vp := mem.VPage(0x3000)
	tbl.SetZero(vp)
	require.True(t, tbl.LoadPage(vp))
	require.Equal(t, 1, frames.Len())

	tbl.ClearPage(vp)
	require.False(t, pd.Present(vp))
	require.Nil(t, tbl.Get(vp))
	require.Equal(t, 0, frames.Len(), "clear_page must remove the frame table record")
}

func TestDestroyFreesSwapSlot(t *testing.T) {
	pd := pagedir.NewSimulated()
	swp := newSwap(t, 4)
	frames := frame.NewTable(frame.NewSimplePool(1), swp, frame.PolicyFIFO)
	tbl := spt.Create(pd, frames, swp)

	vp1 := mem.VPage(0x1000)
	tbl.SetZero(vp1)
	require.True(t, tbl.LoadPage(vp1))
	pd.SetDirty(vp1, true)

	// force eviction of vp1 by loading a second page into the
	// single-frame pool.
	vp2 := mem.VPage(0x2000)
	tbl.SetZero(vp2)
	require.True(t, tbl.LoadPage(vp2))

	e1 := tbl.Get(vp1)
	require.Equal(t, frame.KindSwap, e1.Kind())
	require.Less(t, swp.FreeCount(), swp.Count(), "the evicted page's slot is occupied before destroy")

	tbl.Destroy()
	require.Equal(t, swp.Count(), swp.FreeCount(), "destroy must free the swap slot the evicted entry held")
}
