// Package crosspage implements the crosspage runtime (spec.md §4.5): the
// hand-written-assembly page that performs the actual host<->monitor
// transition, plus the miniature switch IDT that runs while the CPU is
// in the intermediate, half-host-half-monitor state.
package crosspage

import (
	"sync/atomic"

	"github.com/wswitch/core/cpuarch"
	"github.com/wswitch/core/ptpatch"
)

// Version must match the monitor's compile-time CROSSPAGE_VERSION
// (spec.md §3: "version tag... must match compile-time constant or the
// monitor refuses to run").
const Version uint32 = 1

// Exception index into Data.Exceptions, the wsException[] array.
type Exception int

const (
	ExcDB Exception = iota
	ExcUD
	ExcNMI
	ExcMC
	numExceptions
)

func (e Exception) String() string {
	switch e {
	case ExcDB:
		return "DB"
	case ExcUD:
		return "UD"
	case ExcNMI:
		return "NMI"
	case ExcMC:
		return "MC"
	default:
		return "unknown"
	}
}

// SavedContext is the symmetric {host, monitor} side of the register
// file the switch preserves across HostToVmm/VmmToHost (spec.md §3:
// "Saved host context" / "Saved monitor context").
type SavedContext struct {
	CR3            uint64
	RBX, RBP       uint64
	R12, R13, R14, R15 uint64
	RDI, RSI       uint64
	RSP            uint64
	SS             uint16
	PAT            uint64
	DebugRegs      cpuarch.DebugRegs
	IDTR           cpuarch.DTR64
}

// IDTGate is one entry of the crosspage's miniature switch IDT: a
// position-independent handler address plus the selector and IST index
// to vector through (spec.md §4.5: "a miniature IDT... with four
// defined gates").
type IDTGate struct {
	HandlerLA uint64
	Selector  uint16
	IST       uint8
}

// SwitchIDT is the crosspage's private interrupt descriptor table, live
// only for the duration of one world switch.
type SwitchIDT struct {
	DB  IDTGate
	UD  IDTGate
	NMI IDTGate
	MC  IDTGate
}

// ModuleCallType identifies why the monitor returned control to the
// driver via VmmToHost without being asked to (spec.md §5: "Module-call
// protocol (crosspage -> driver)").
type ModuleCallType uint32

const (
	ModuleCallNone ModuleCallType = iota
	ModuleCallAllocVMXPage
	ModuleCallAllocTmpGDT
	ModuleCallIntr
	ModuleCallUser
)

// PTSCConv is the pseudo-TSC linear conversion {mult, shift, add},
// published under a seqlock-style versioned guard so that a reader
// racing a mid-switch writer retries instead of observing a torn triple
// (spec.md §4.7: "stored in the crosspage under a versioned-atomic
// guard; readers retry until version is stable across read").
type PTSCConv struct {
	version atomic.Uint64
	mult    atomic.Uint64
	shift   atomic.Uint64
	add     atomic.Uint64
}

// Load returns a consistent {mult, shift, add} snapshot, retrying if a
// writer was in progress (odd version) or changed the values mid-read.
func (p *PTSCConv) Load() (mult uint64, shift uint8, add uint64) {
	for {
		v1 := p.version.Load()
		if v1&1 != 0 {
			continue
		}

		mult = p.mult.Load()
		shift = uint8(p.shift.Load())
		add = p.add.Load()

		if p.version.Load() == v1 {
			return mult, shift, add
		}
	}
}

// Store publishes a new conversion triple, bracketing the write with an
// odd->even version transition so concurrent readers spin rather than
// tear.
func (p *PTSCConv) Store(mult uint64, shift uint8, add uint64) {
	p.version.Add(1) // now odd: writer in progress

	p.mult.Store(mult)
	p.shift.Store(uint64(shift))
	p.add.Store(add)

	p.version.Add(1) // now even: stable again
}

// Data is the per-VCPU crosspage data page (spec.md §3: "Crosspage data
// (per-VCPU)"). It must fit in one page; callers size the real
// allocation accordingly and place this struct at its base.
type Data struct {
	Version uint32

	Host    SavedContext
	Monitor SavedContext

	// World-switch working control-register values, composed by the
	// switch driver from host-preserved and monitor-required bits
	// (spec.md §4.6 step 9).
	WSCR0 uint64
	WSCR4 uint64

	IDT SwitchIDT

	// Exceptions is indexed by handler asm using a 4-byte stride per
	// element (atomic.Bool wraps a uint32), i.e. Data_Exceptions+e*4 —
	// switch_amd64.s must agree with this layout.
	Exceptions [numExceptions]atomic.Bool
	UD2FaultLA uint64 // wsUD2: RIP recorded by the #UD handler

	PTP ptpatch.Table

	ModuleCall   ModuleCallType
	UserCallType uint32
	Args         [6]uint64
	PCPUNum      int

	PTSC            PTSCConv
	WorldSwitchPTSC uint64

	RetryWorldSwitch      bool
	ModuleCallInterrupted bool

	// Self-descriptors (spec.md §9: "the crosspage data is
	// self-describing... so that the monitor, running under its own
	// CR3, can locate itself").
	CrosspageDataLA uint64
	CrosspageCodeLA uint64
	CrossGDTLA      uint64
	// CrossGDTHKLADesc is the {limit, offset} pseudo-descriptor for
	// lgdt, cached so the switch can reload the crossGDT without a
	// dependency on the crossgdt package's own bookkeeping (spec.md
	// §4.3: "a fixed-size descriptor {limit: sizeof(CrossGDT)-1,
	// offset: crossGDTLA} is cached in each crosspage").
	CrossGDTHKLADesc cpuarch.DTR64
	SwitchHostIDTR   cpuarch.DTR64

	// VmmToHostLA is the address the monitor calls to hand control
	// back (spec.md §4.5: "entered by the monitor via a call to the
	// address stored at cpData.vmmToHostLA").
	VmmToHostLA uint64
}

// SetException atomically records that handler e fired during this
// switch (spec.md §3 invariant: "wsException[] entries are set only by
// handlers").
func (d *Data) SetException(e Exception) {
	d.Exceptions[e].Store(true)
}

// TestException reports and clears e, matching the switch driver's
// "read/cleared only by the switch driver between transitions"
// invariant.
func (d *Data) TestException(e Exception) bool {
	return d.Exceptions[e].Swap(false)
}

// RestoreException force-sets e to v, used by the debug-register save
// dance to put back the #DB witness it borrowed for its own bookkeeping
// (spec.md §4.6 step 10).
func (d *Data) RestoreException(e Exception, v bool) {
	d.Exceptions[e].Store(v)
}
