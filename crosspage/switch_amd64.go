package crosspage

import "unsafe"

// hostToVmmAsm and vmmToHostEntry are the two named entry points of the
// crosspage code page (spec.md §4.5: "The crosspage code page contains
// five exported entry points plus a shared return trampoline"). They are
// hand-written machine code, not compiler-generated Go, because they
// run with one foot in the host address space and one foot in the
// monitor's — a transition the Go runtime's stack and GC assumptions do
// not survive. //go:noescape because the crosspage pointer's target
// memory is manipulated by raw assembly, invisible to the escape
// analyzer.
//
//go:noescape
func hostToVmmAsm(crosspage unsafe.Pointer)

// HostToVmm performs the host -> monitor half of a world switch
// (spec.md §4.5 "HostToVmm(crosspage_ptr)"). cp must already have its
// Host/Monitor SavedContext fields populated by the switch driver, and
// the three page-table patches applied so crosspage code/data and the
// crossGDT are visible under the monitor's CR3.
func HostToVmm(cp *Data) {
	hostToVmmAsm(unsafe.Pointer(cp))
}

// vmmToHostEntry is never called directly from Go — its address is
// published into Data.VmmToHostLA so the monitor can call back into it.
// vmmToHostLabelAddr returns that address; VmmToHostAddr exposes it for
// crosspage initialization.
func vmmToHostLabelAddr() uintptr

// VmmToHostAddr returns the linear address the monitor should store at
// cpData.vmmToHostLA (spec.md §4.5: "entered by the monitor via a call
// to the address stored at cpData.vmmToHostLA").
func VmmToHostAddr() uint64 {
	return uint64(vmmToHostLabelAddr())
}

// switchIDTHandlerAddr helpers return the linear address of each switch
// IDT handler, for populating Data.IDT at crosspage init time. Each
// handler is position-independent machine code reached only via a
// hardware interrupt vector, never called from Go.
func dbHandlerAddr() uintptr
func udHandlerAddr() uintptr
func nmiHandlerAddr() uintptr
func mcHandlerAddr() uintptr

// BuildSwitchIDT fills in a SwitchIDT with the crosspage's own handler
// addresses, all vectoring through selector cs with no IST stack
// (spec.md §3: "a miniature IDT... with four defined gates").
func BuildSwitchIDT(cs uint16) SwitchIDT {
	return SwitchIDT{
		DB:  IDTGate{HandlerLA: uint64(dbHandlerAddr()), Selector: cs},
		UD:  IDTGate{HandlerLA: uint64(udHandlerAddr()), Selector: cs},
		NMI: IDTGate{HandlerLA: uint64(nmiHandlerAddr()), Selector: cs},
		MC:  IDTGate{HandlerLA: uint64(mcHandlerAddr()), Selector: cs},
	}
}
