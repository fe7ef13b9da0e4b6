// Package switchdrv implements the switch driver (spec.md §4.6): the
// top-level orchestrator that ties the probe, hvroot, crossgdt, ptpatch,
// crosspage and ptsc components into one world switch, in the order the
// hardware demands it.
package switchdrv

import (
	"errors"
	"unsafe"

	"github.com/wswitch/core/cpuarch"
	"github.com/wswitch/core/crosspage"
	"github.com/wswitch/core/crossgdt"
	"github.com/wswitch/core/hvroot"
	"github.com/wswitch/core/probe"
	"github.com/wswitch/core/ptsc"
)

// ErrRootModeUnavailable is returned when entering VMX/SVM root mode
// fails and the switch cannot proceed.
var ErrRootModeUnavailable = errors.New("switchdrv: failed to enter VMX/SVM root mode")

// Machine is everything a Switch call needs that lives for the whole
// life of the driver, shared across every VCPU and every call
// (spec.md §4.6: pCPU-scoped and driver-global state the switch touches).
type Machine struct {
	Vendor    probe.Vendor
	RootPage  *hvroot.PerPCPU
	RootAlloc hvroot.Alloc
	CrossGDT  *crossgdt.CrossGDT
	APIC      APIC
	PTSC      *ptsc.VMState
	Clock     ptsc.Clock
	// GDTMem gives the driver linear-memory access for the TR-unbusy step
	// (spec.md §4.6 step 15c) and for decoding the faulting instruction on
	// a #UD (spec.md §4.5 "#UD handler"); nil disables both.
	GDTMem LinearMem
}

// Current holds the live segment-register/selector values the switch
// driver must save before handing control to HostToVmm and restore
// after — the part of "host context" that lives in real segment
// registers rather than in the crosspage's SavedContext (spec.md §4.6
// steps 12-13).
type Current struct {
	PCPU           int
	VCPU           int // index into the VM's per-VCPU PTSC offsets
	DS, ES, FS, GS uint16
	SS             uint16
	TR             uint16
}

// Switch runs one complete host<->monitor round trip for cp on the
// calling (already-pinned) pCPU, following the step order of spec.md
// §4.6. Exceptions and interrupts the monitor half recorded (NMI, #MC,
// #UD, an INTR module call) are only reported in the returned Result;
// Switch does not re-raise them on the host. Of the world-switch control
// registers it composes only WSCR0, and it does not load CR0 or CR4
// itself. The caller is responsible for pinning the OS thread to
// cur.PCPU before calling and for having populated cp's monitor-side
// fields (Monitor, WSCR0/WSCR4, IDT gate addresses, module-call
// arguments) beforehand.
func Switch(m *Machine, cp *crosspage.Data, cur Current) (Result, error) {
	masked := disableNMI(m.APIC)
	defer restoreNMI(m.APIC, masked)

	savedFlags := cpuarch.DisableInterrupts()
	defer cpuarch.RestoreInterrupts(savedFlags)

	cp.PCPUNum = cur.PCPU

	add, newWSPTSC := m.PTSC.UpdatePTSCParameters(cur.VCPU, m.Clock, cp.WorldSwitchPTSC)
	cp.WorldSwitchPTSC = newWSPTSC
	cp.PTSC.Store(1<<32, 32, add) // identity-rate conversion until the monitor publishes its own mult/shift

	perfmon := disablePerfmon()
	defer restorePerfmon(perfmon)

	hostIDTR := cpuarch.SIDT()
	cp.SwitchHostIDTR = hostIDTR

	// The encoded table lives on the Go heap at this call's scope; its
	// linear address is only valid because page-table patching (spec.md
	// §4.4) has already mapped the crosspage's surrounding region
	// identically under host and monitor CR3, the same invariant
	// HostToVmm itself depends on.
	idtTable := cp.IDT.Encode()
	idtTableLA := uint64(uintptr(unsafe.Pointer(&idtTable[0])))
	cpuarch.LIDT(cp.IDT.DTR(idtTableLA))
	defer cpuarch.LIDT(hostIDTR)

	rootPagePA, err := m.RootPage.GetOrAlloc(cur.PCPU, m.RootAlloc)
	if err != nil {
		return Result{}, ErrRootModeUnavailable
	}

	root, err := hvroot.Enter(m.Vendor, rootPagePA)
	if err != nil {
		return Result{}, ErrRootModeUnavailable
	}

	defer func() {
		_ = hvroot.Leave(root)
	}()

	hostCR0 := cpuarch.ReadCR0()
	hostCR4 := cpuarch.ReadCR4()
	// CR0 bits the monitor never gets a say over (spec.md §4.6 step 9:
	// "preserve verbatim from the host's CR0 when composing the
	// world-switch CR0"); WSCR4 is taken as the monitor already composed
	// it.
	cp.WSCR0 = (cp.WSCR0 &^ cpuarch.CR0Reserved) | (hostCR0 & cpuarch.CR0Reserved)

	dbgState := saveDebugRegisters(cp)
	defer restoreDebugRegisters(dbgState)

	hostGDTR := cpuarch.SGDT()
	cpuarch.LGDT(m.CrossGDT.DTR())
	defer cpuarch.LGDT(hostGDTR)

	saved := saveSegments(cur.DS, cur.ES, cur.FS, cur.GS, cur.SS)
	defer restoreSegments(saved)

	if cur.SS == 0 {
		// A zero SS is legal in 64-bit long mode but the monitor's far
		// return needs a loadable flat data selector (spec.md §4.6
		// step 13).
		cur.SS = flatKernelDataSelector
	}

	cp.Host.SS = cur.SS

	// Point of no return: hand off to the hand-written asm coroutine.
	// Everything from here down is unwind, run whether or not the
	// monitor's half of the trip came back clean. A module call
	// interrupted by an NMI (RetryWorldSwitch) re-enters the monitor
	// immediately rather than surfacing a spurious module call to the
	// caller (spec.md §4.6 step 17: "retryWorldSwitch loop-back on
	// NMI-during-module-call").
	for {
		crosspage.HostToVmm(cp)

		if !cp.RetryWorldSwitch {
			break
		}

		cp.RetryWorldSwitch = false
	}

	if m.GDTMem != nil {
		if err := clearTSSBusy(m.GDTMem, hostGDTR.Base, cur.TR); err == nil {
			cpuarch.LTR(cur.TR)
		}
	}

	if hostCR4&cpuarch.CR4xPCIDE != 0 {
		cpuarch.ToggleCR4PGE()
	}

	m.PTSC.UpdateLatestPTSC(m.Clock, add)

	res := Result{OK: true}

	if cp.TestException(crosspage.ExcNMI) {
		res.NMI = true
	}

	if cp.TestException(crosspage.ExcMC) {
		res.MC = true
	}

	if cp.TestException(crosspage.ExcUD) {
		res.OK = false
		res.UD = true
		res.UD2Insn = decodeUD2Insn(m.GDTMem, cp.UD2FaultLA)
	}

	if cp.ModuleCall == crosspage.ModuleCallIntr {
		res.Intr = true
		res.Vec = cp.Args[0]
	}

	cpuarch.WriteEFLAGS((cpuarch.ReadEFLAGS() &^ cpuarch.EFLAGSxAC) | (savedFlags & cpuarch.EFLAGSxAC))

	return res, nil
}

// flatKernelDataSelector is the crossGDT slot reserved for a flat,
// ring-0 data segment, used only when the calling context's SS
// happens to be zero (spec.md §4.6 step 13).
const flatKernelDataSelector = 0x10

// maxX86InsnLen is the longest an x86 instruction can legally encode
// to, the number of bytes decodeUD2Insn asks for at the fault address.
const maxX86InsnLen = 15

// decodeUD2Insn renders the instruction that tripped a #UD for the
// switch driver's failure path (spec.md §4.5 "#UD handler"). Returns ""
// if mem is nil (no linear-memory access was wired in) or the bytes
// don't decode.
func decodeUD2Insn(mem LinearMem, faultLA uint64) string {
	if mem == nil {
		return ""
	}

	insnBytes, err := mem.ReadBytes(faultLA, maxX86InsnLen)
	if err != nil {
		return ""
	}

	_, syntax, err := crosspage.DecodeUD2Fault(insnBytes, faultLA)
	if err != nil {
		return ""
	}

	return syntax
}
