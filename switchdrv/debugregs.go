package switchdrv

import (
	"github.com/wswitch/core/cpuarch"
	"github.com/wswitch/core/crosspage"
)

// savedDebugState records which of DR0..DR3/DR6/DR7 were captured in
// regs with host (not guest-in-hardware) contents, and
// which register index still has host contents left untouched in
// hardware. Grounded on TaskSaveDebugRegisters's hostDRSaved/hostDRInHW
// bitmasks (original_source/vmmon-only/common/task.c:1859).
type savedDebugState struct {
	regs  cpuarch.DebugRegs
	inHW  uint8 // bit n set: register n's host value is still live in hardware
	gotGD bool  // DR7.GD was set, #DB fired during the save dance
}

// saveDebugRegisters captures DR0..DR3, DR6, DR7 for the duration of a
// switch, handling the case where DR7.GD trips a #DB on the read of
// DR7 itself (spec.md §4.6 step 10: "the GD-aware dance"). Hardware
// breakpoints are disabled for the switch either way.
func saveDebugRegisters(cp *crosspage.Data) savedDebugState {
	gotDBBefore := cp.TestException(crosspage.ExcDB)

	dr7 := cpuarch.ReadDR7()
	dr6 := cpuarch.ReadDR6()

	s := savedDebugState{
		inHW: 1<<7 | 1<<6 | 1<<3 | 1<<2 | 1<<1 | 1<<0,
	}

	if cp.TestException(crosspage.ExcDB) && dr6&cpuarch.DR6xBD != 0 {
		// DR7.GD tripped the #DB triggered by reading DR7 above:
		// reconstruct what DR7/DR6 would have held had the read not
		// faulted, then disable breakpoints in hardware.
		dr6 &^= cpuarch.DR6xBD
		dr7 |= cpuarch.DR7xGD
		cpuarch.WriteDR7(cpuarch.DR7Default)

		s.inHW = 1<<3 | 1<<2 | 1<<1 | 1<<0
		s.gotGD = true
	} else if dr7&cpuarch.DR7Enabled != 0 {
		cpuarch.WriteDR7(cpuarch.DR7Default)
		s.inHW = 1<<6 | 1<<3 | 1<<2 | 1<<1 | 1<<0
	}

	cp.RestoreException(crosspage.ExcDB, gotDBBefore)

	s.regs.DR6 = dr6
	s.regs.DR7 = dr7
	s.regs.DR0 = cpuarch.ReadDR0()
	s.regs.DR1 = cpuarch.ReadDR1()
	s.regs.DR2 = cpuarch.ReadDR2()
	s.regs.DR3 = cpuarch.ReadDR3()

	return s
}

// restoreDebugRegisters puts the debug registers back the way
// saveDebugRegisters found them, writing DR7 last so a restored
// DR7.GD can't trip a spurious #DB on an earlier register's write
// (spec.md §4.6 step 15e: "DR7 last, to preserve GD").
func restoreDebugRegisters(s savedDebugState) {
	if s.inHW&(1<<0) == 0 {
		cpuarch.WriteDR0(s.regs.DR0)
	}

	if s.inHW&(1<<1) == 0 {
		cpuarch.WriteDR1(s.regs.DR1)
	}

	if s.inHW&(1<<2) == 0 {
		cpuarch.WriteDR2(s.regs.DR2)
	}

	if s.inHW&(1<<3) == 0 {
		cpuarch.WriteDR3(s.regs.DR3)
	}

	if s.inHW&(1<<6) == 0 {
		cpuarch.WriteDR6(s.regs.DR6)
	}

	if s.inHW&(1<<7) == 0 {
		cpuarch.WriteDR7(s.regs.DR7)
	}
}
