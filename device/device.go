// Package device is the block-device interface the swap allocator
// consumes: a device of 512-byte sectors, a page being
// SectorsPerPage contiguous sectors. FileBacked stands in for
// the swap partition using a regular file and real pread/pwrite, the
// same approach fileobj.OSFile takes for mmap-backing files.
package device

import (
	"os"

	"golang.org/x/sys/unix"

	"vmcore/mem"
	"vmcore/vmerr"
)

// Block is a sector-addressed device. Offsets are in sectors, not
// bytes: slot i occupies sectors [i*SPP, (i+1)*SPP).
type Block interface {
	ReadSectors(buf []byte, startSector int) vmerr.Err_t
	WriteSectors(buf []byte, startSector int) vmerr.Err_t
	SectorCount() int
}

// FileBacked implements Block over a regular file.
type FileBacked struct {
	f       *os.File
	sectors int
}

// OpenFileBacked creates (or truncates) path to hold sectorCount
// sectors and returns a Block backed by it. Panics if the file cannot
// be created, since a missing swap device is unrecoverable at init.
func OpenFileBacked(path string, sectorCount int) *FileBacked {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		panic("device: swap device absent: " + err.Error())
	}
	size := int64(sectorCount) * mem.SectorSize
	if err := f.Truncate(size); err != nil {
		panic("device: cannot size swap device: " + err.Error())
	}
	return &FileBacked{f: f, sectors: sectorCount}
}

func (d *FileBacked) ReadSectors(buf []byte, startSector int) vmerr.Err_t {
	if len(buf)%mem.SectorSize != 0 {
		panic("device: unaligned read")
	}
	off := int64(startSector) * mem.SectorSize
	if _, err := unix.Pread(int(d.f.Fd()), buf, off); err != nil {
		return -vmerr.EIO
	}
	return 0
}

func (d *FileBacked) WriteSectors(buf []byte, startSector int) vmerr.Err_t {
	if len(buf)%mem.SectorSize != 0 {
		panic("device: unaligned write")
	}
	off := int64(startSector) * mem.SectorSize
	if _, err := unix.Pwrite(int(d.f.Fd()), buf, off); err != nil {
		return -vmerr.EIO
	}
	return 0
}

func (d *FileBacked) SectorCount() int {
	return d.sectors
}

// Close releases the underlying file.
func (d *FileBacked) Close() error {
	return d.f.Close()
}
