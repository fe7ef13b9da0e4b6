//go:build linux && amd64

package cpuarch

// EFLAGS bits the switch driver cares about.
const (
	EFLAGSxIF = 1 << 9  // interrupt enable
	EFLAGSxAC = 1 << 18 // alignment check / SMAP "allow" toggle
)

//go:noescape
func readEFLAGSLow() uint64

//go:noescape
func writeEFLAGSLow(v uint64)

//go:noescape
func cliLow()

//go:noescape
func stiLow()

// ReadEFLAGS / WriteEFLAGS snapshot and restore the full flags register
// (spec.md §4.6 step 2: "Save EFLAGS; disable interrupts locally").
func ReadEFLAGS() uint64   { return readEFLAGSLow() }
func WriteEFLAGS(v uint64) { writeEFLAGSLow(v) }

// CLI / STI mask and unmask local (pCPU) interrupt delivery. Requires
// CPL0 (or an IOPL that permits it); nothing in this module raises the
// caller's privilege level.
func CLI() { cliLow() }
func STI() { stiLow() }

// DisableInterrupts saves the current EFLAGS and clears IF, returning the
// saved value for a matching RestoreInterrupts.
func DisableInterrupts() uint64 {
	flags := ReadEFLAGS()
	CLI()

	return flags
}

// RestoreInterrupts puts IF back the way DisableInterrupts found it.
func RestoreInterrupts(saved uint64) {
	if saved&EFLAGSxIF != 0 {
		STI()
	}
}
