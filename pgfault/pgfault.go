// Package pgfault implements the page-fault resolver and the
// stack-growth policy it falls back to.
package pgfault

import (
	"vmcore/mem"
	"vmcore/spt"
	"vmcore/vmlog"
)

var log = vmlog.For("pgfault")

// Info classifies one hardware page fault, the fields a real fault
// handler would read off the trap frame and the faulting CR2-style
// address.
type Info struct {
	Addr    uintptr
	Present bool // the page had a hardware mapping already
	Write   bool // the access was a write
	User    bool // the fault happened in user mode
}

// Outcome is the resolver's verdict.
type Outcome int

const (
	// Resolved means a mapping now exists for Info.Addr; the
	// faulting instruction can be retried.
	Resolved Outcome = iota
	// BadAccess means the access can never be satisfied: fatal to
	// the faulting process with exit code -1.
	BadAccess
)

// Resolve dispatches one page fault to its resolution: an existing
// SPT entry, a stack-growth extension, or a bad access. esp is the
// user stack pointer saved on kernel entry, used only for the stack
// growth qualification.
func Resolve(tbl *spt.Table, info Info, esp uintptr, cfg StackConfig) Outcome {
	if !info.User {
		return BadAccess
	}
	upage := mem.PageRoundDown(info.Addr)

	if info.Present && info.Write {
		// a write faulted on a page that already has a hardware
		// mapping: it must be read-only, since a writable mapping
		// would not fault on write.
		log.WithField("addr", info.Addr).Warn("fault: write to read-only mapping")
		return BadAccess
	}

	if e := tbl.Get(upage); e != nil {
		if tbl.LoadPage(upage) {
			return Resolved
		}
		return BadAccess
	}

	if QualifiesForStackGrowth(info.Addr, esp, cfg) {
		log.WithField("addr", info.Addr).Debug("fault: growing stack")
		tbl.SetZero(upage)
		if tbl.LoadPage(upage) {
			return Resolved
		}
		return BadAccess
	}

	log.WithField("addr", info.Addr).Warn("fault: no SPT entry and not a stack-growth address")
	return BadAccess
}
