// Package mem defines the page-size arithmetic and address types
// shared by every component of the virtual memory subsystem: the
// swap allocator, the frame table, the supplemental page table, and
// the fault resolver all measure addresses in pages of PageSize
// bytes and never hard-code the shift or mask themselves.
package mem

// PageShift is the base-2 exponent of the page size.
const PageShift uint = 12

// PageSize is the size of a single page, and of a single frame and a
// single swap slot, in bytes.
const PageSize int = 1 << PageShift

// PageOffsetMask masks the in-page offset of an address.
const PageOffsetMask uintptr = uintptr(PageSize) - 1

// SectorSize is the size of one disk sector, fixed by the external
// block-device interface.
const SectorSize = 512

// SectorsPerPage is the number of sectors spanned by a single page.
const SectorsPerPage = PageSize / SectorSize

// VPage is a page-aligned user virtual address.
type VPage uintptr

// PageRoundDown returns the page containing the given address.
func PageRoundDown(addr uintptr) VPage {
	return VPage(addr &^ PageOffsetMask)
}

// Offset returns the in-page offset of addr.
func Offset(addr uintptr) int {
	return int(addr & PageOffsetMask)
}

// Aligned reports whether addr falls on a page boundary.
func Aligned(addr uintptr) bool {
	return addr&PageOffsetMask == 0
}

// Addr returns the byte address of the page.
func (v VPage) Addr() uintptr {
	return uintptr(v)
}

// Add returns the page n pages after v.
func (v VPage) Add(n int) VPage {
	return VPage(uintptr(v) + uintptr(n)*uintptr(PageSize))
}

// Page is the content of one page or frame: PageSize raw bytes.
type Page [PageSize]byte

// Int is satisfied by every built-in integer type; used for the
// generic rounding helpers below.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// RoundDown aligns v down to the nearest multiple of b.
func RoundDown[T Int](v, b T) T {
	return v - (v % b)
}

// RoundUp aligns v up to the nearest multiple of b.
func RoundUp[T Int](v, b T) T {
	return RoundDown(v+b-1, b)
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}
