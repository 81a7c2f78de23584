// Package fileobj is the narrow file interface the virtual memory
// core consumes: open/reopen/read_at/write_at/length/close/deny_write.
// The file system, buffer cache, and block device drivers behind it
// are out of scope here — OSFile below talks directly to a real file
// via golang.org/x/sys/unix so the rest of the subsystem can be
// exercised against real on-disk content without a filesystem layer
// in between.
package fileobj

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"vmcore/vmerr"
)

// File is the file handle the supplemental page table and the mmap
// manager operate on. ReadAt/WriteAt never move a shared cursor —
// that is the entire reason this distinguishes them from Read/Write:
// concurrent mmap writeback and an ordinary read on the same
// descriptor must not race on position.
type File interface {
	ReadAt(buf []byte, ofs int64) (int, vmerr.Err_t)
	WriteAt(buf []byte, ofs int64) (int, vmerr.Err_t)
	Read(buf []byte) (int, vmerr.Err_t)
	Write(buf []byte) (int, vmerr.Err_t)
	Seek(ofs int64) vmerr.Err_t
	Length() (int64, vmerr.Err_t)
	// DenyWrite makes further writes through this handle fail (used
	// while an executable is mapped for its .text segment). The
	// setting is per handle: a handle obtained from Reopen starts with
	// writes allowed.
	DenyWrite() vmerr.Err_t
	// Reopen returns an independent handle onto the same underlying
	// file, immune to a later Close of the original — this is what
	// lets an mmap outlive the fd it was created from.
	Reopen() (File, vmerr.Err_t)
	Close() vmerr.Err_t
}

// OSFile backs File with a real *os.File, read and written through
// pread(2)/pwrite(2) so ReadAt/WriteAt never disturb Read/Write's
// cursor.
type OSFile struct {
	mu     sync.Mutex
	f      *os.File
	cursor int64
	denied int32 // atomic bool
}

// Open opens path for reading and writing.
func Open(path string) (*OSFile, vmerr.Err_t) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, -vmerr.ENOENT
	}
	return &OSFile{f: f}, 0
}

// Create opens path for reading and writing, creating it (and sizing
// it to size bytes) if it does not already exist. Used to stand up
// the swap device and demo executables.
func Create(path string, size int64) (*OSFile, vmerr.Err_t) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, -vmerr.EIO
	}
	if size > 0 {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, -vmerr.EIO
		}
	}
	return &OSFile{f: f}, 0
}

func (of *OSFile) ReadAt(buf []byte, ofs int64) (int, vmerr.Err_t) {
	n, err := unix.Pread(int(of.f.Fd()), buf, ofs)
	if err != nil {
		return n, -vmerr.EIO
	}
	return n, 0
}

func (of *OSFile) WriteAt(buf []byte, ofs int64) (int, vmerr.Err_t) {
	if atomic.LoadInt32(&of.denied) != 0 {
		return 0, -vmerr.EINVAL
	}
	n, err := unix.Pwrite(int(of.f.Fd()), buf, ofs)
	if err != nil {
		return n, -vmerr.EIO
	}
	return n, 0
}

func (of *OSFile) Read(buf []byte) (int, vmerr.Err_t) {
	of.mu.Lock()
	defer of.mu.Unlock()
	n, err := of.ReadAt(buf, of.cursor)
	if err != 0 {
		return n, err
	}
	of.cursor += int64(n)
	return n, 0
}

func (of *OSFile) Write(buf []byte) (int, vmerr.Err_t) {
	of.mu.Lock()
	defer of.mu.Unlock()
	n, err := of.WriteAt(buf, of.cursor)
	if err != 0 {
		return n, err
	}
	of.cursor += int64(n)
	return n, 0
}

func (of *OSFile) Seek(ofs int64) vmerr.Err_t {
	of.mu.Lock()
	defer of.mu.Unlock()
	if ofs < 0 {
		return -vmerr.EINVAL
	}
	of.cursor = ofs
	return 0
}

func (of *OSFile) Length() (int64, vmerr.Err_t) {
	st, err := of.f.Stat()
	if err != nil {
		return 0, -vmerr.EIO
	}
	return st.Size(), 0
}

func (of *OSFile) DenyWrite() vmerr.Err_t {
	atomic.StoreInt32(&of.denied, 1)
	return 0
}

func (of *OSFile) Reopen() (File, vmerr.Err_t) {
	path := "/proc/self/fd/" + strconv.Itoa(int(of.f.Fd()))
	nf, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		// no /proc: duplicate the descriptor instead, which likewise
		// stays open after the original handle is closed.
		fd, derr := unix.Dup(int(of.f.Fd()))
		if derr != nil {
			return nil, -vmerr.EIO
		}
		return &OSFile{f: os.NewFile(uintptr(fd), of.f.Name())}, 0
	}
	return &OSFile{f: nf}, 0
}

func (of *OSFile) Close() vmerr.Err_t {
	if err := of.f.Close(); err != nil {
		return -vmerr.EIO
	}
	return 0
}
