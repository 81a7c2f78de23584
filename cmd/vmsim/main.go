// Command vmsim drives the virtual memory core end to end outside of
// any real kernel: it stands up a swap device and a physical frame
// pool, then runs a handful of scenarios exercising demand paging,
// eviction, and memory-mapped files, logging the outcome of each.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"vmcore/device"
	"vmcore/fileobj"
	"vmcore/frame"
	"vmcore/mem"
	"vmcore/pgfault"
	"vmcore/vm"
	"vmcore/vmlog"
)

const physBase = uintptr(0xC0000000)

var log = vmlog.For("vmsim")

func main() {
	frames := flag.Int("frames", 4, "physical frame pool size, in pages")
	swapSlots := flag.Int("swap-slots", 16, "swap device capacity, in slots")
	workdir := flag.String("workdir", "", "scratch directory for the swap device and demo files (default: a fresh temp dir)")
	policyName := flag.String("policy", "clock", "replacement policy: clock or fifo")
	logLevel := flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vmsim:", err)
		os.Exit(1)
	}
	vmlog.SetLevel(level)

	dir := *workdir
	if dir == "" {
		d, err := os.MkdirTemp("", "vmsim-")
		if err != nil {
			fmt.Fprintln(os.Stderr, "vmsim:", err)
			os.Exit(1)
		}
		dir = d
		defer os.RemoveAll(dir)
	}

	policy := frame.PolicyClock
	if *policyName == "fifo" {
		policy = frame.PolicyFIFO
	}

	dev := device.OpenFileBacked(filepath.Join(dir, "swap.img"), *swapSlots*mem.SectorsPerPage)
	defer dev.Close()

	sys := vm.NewSystem(*frames, dev, physBase, policy)

	log.WithField("frames", *frames).WithField("swap_slots", *swapSlots).WithField("policy", *policyName).Info("vmsim: starting")

	runChildLoadDemo(sys)
	runMmapDemo(sys, dir)
	runEvictionDemo(sys)

	log.Info("vmsim: done")
}

// runChildLoadDemo waits for a child process to finish loading its
// segments using golang.org/x/sync/semaphore instead of a spin-yield
// loop.
func runChildLoadDemo(sys *vm.System) {
	sem := semaphore.NewWeighted(1)
	ctx := context.Background()
	if err := sem.Acquire(ctx, 1); err != nil {
		log.WithError(err).Error("child-load: acquire failed")
		return
	}

	child := sys.NewAddressSpace(vm.Config{})
	const segments = 4
	go func() {
		defer sem.Release(1)
		for i := 0; i < segments; i++ {
			vp := mem.VPage(0x08048000 + uintptr(i)*uintptr(mem.PageSize))
			child.SPT().SetZero(vp)
		}
		log.WithField("segments", segments).Debug("child-load: segments registered")
	}()

	if err := sem.Acquire(ctx, 1); err != nil {
		log.WithError(err).Error("child-load: wait failed")
		return
	}
	sem.Release(1)
	log.Info("child-load: parent observed child finish loading without spinning")
}

// runMmapDemo maps a file whose size is not a multiple of the page
// size, and checks that the tail of the final page reads as zero.
func runMmapDemo(sys *vm.System, dir string) {
	path := filepath.Join(dir, "mapped.bin")
	// not a multiple of the page size, so the mapping's final page has
	// a genuine zero-filled tail.
	const size = 10000
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i % 256)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		log.WithError(err).Error("mmap-demo: write seed file failed")
		return
	}

	f, ferr := fileobj.Open(path)
	if ferr != 0 {
		log.Error("mmap-demo: open failed")
		return
	}

	as := sys.NewAddressSpace(vm.Config{})
	base := mem.VPage(0x08000000)
	id, merr := as.Mmap().Mmap(f, base)
	if merr != 0 {
		log.Error("mmap-demo: mmap rejected")
		return
	}

	tailAddr := base.Addr() + size - 1
	out := as.HandleFault(pgfault.Info{Addr: tailAddr, User: true})
	if out != pgfault.Resolved {
		log.Warn("mmap-demo: fault on mapped tail page was not resolved")
		return
	}
	frameAt, _ := as.PageDir().FrameAt(mem.PageRoundDown(tailAddr))
	if got := sys.Frames.Content(frameAt)[mem.Offset(tailAddr)+1]; got != 0 {
		log.WithField("got", got).Warn("mmap-demo: byte past the end of the file did not read as zero")
		return
	}
	log.WithField("id", id).Info("mmap-demo: mapped file and faulted in its zero-filled tail")
	as.Mmap().Munmap(id)
}

// runEvictionDemo touches 1.5x the physical pool's worth of anonymous
// pages to force at least one eviction through swap, and checks that
// a page's content survives the round trip.
func runEvictionDemo(sys *vm.System) {
	as := sys.NewAddressSpace(vm.Config{})
	total := (sys.PoolFrames * 3) / 2
	if total == 0 {
		total = 4
	}

	addrs := make([]mem.VPage, total)
	for i := 0; i < total; i++ {
		vp := mem.VPage(0x10000000 + uintptr(i)*uintptr(mem.PageSize))
		addrs[i] = vp
		as.SPT().SetZero(vp)
		out := as.HandleFault(pgfault.Info{Addr: vp.Addr(), User: true})
		if out != pgfault.Resolved {
			log.WithField("page", i).Warn("eviction-demo: fault was not resolved")
			return
		}
		frameAt, _ := as.PageDir().FrameAt(vp)
		content := sys.Frames.Content(frameAt)
		content[0] = byte(i + 1)
		as.PageDir().SetDirty(vp, true)
	}

	// re-touch the first page: by now the pool is over-subscribed, so
	// it is likely no longer resident and this fault swaps it back in.
	first := addrs[0]
	if entry := as.SPT().Get(first); entry != nil && !entry.Resident() {
		out := as.HandleFault(pgfault.Info{Addr: first.Addr(), User: true})
		if out != pgfault.Resolved {
			log.Warn("eviction-demo: swap-in of the first page failed")
			return
		}
		frameAt, _ := as.PageDir().FrameAt(first)
		if got := sys.Frames.Content(frameAt)[0]; got != byte(1) {
			log.WithField("got", got).Warn("eviction-demo: first page's content did not survive the round trip")
			return
		}
		log.Debug("eviction-demo: first page round-tripped through swap with its content intact")
	}

	log.WithField("pages_touched", total).Info("eviction-demo: forced at least one page through swap")
}
