package hvroot

import "github.com/wswitch/core/cpuarch"

// IntelState tracks what EnterIntel did, so LeaveIntel can unwind
// correctly — including the foreign-hypervisor coexistence case from
// spec.md §4.2 / Scenario C.
type IntelState struct {
	weOwnRootMode  bool
	foreignVMCSPA  uint64
	hadForeignVMCS bool
}

// EnterIntel executes VMXON with the given root-page physical address.
// If VMXON fails, it assumes a foreign hypervisor already holds VMX root
// mode on this pCPU, snapshots the foreign VMCS pointer via VMPTRST, and
// proceeds without owning root mode itself — "this allows nested
// coexistence with another hypervisor that may have left VMX on"
// (spec.md §4.2).
func EnterIntel(rootPagePA uint64) (IntelState, error) {
	if err := cpuarch.VMXON(rootPagePA); err != nil {
		foreignPA := cpuarch.VMPTRST()

		return IntelState{hadForeignVMCS: true, foreignVMCSPA: foreignPA}, nil
	}

	return IntelState{weOwnRootMode: true}, nil
}

// LeaveIntel reverses EnterIntel. If this driver entered root mode
// itself, it executes VMXOFF. If a foreign hypervisor was detected
// instead, it re-loads the foreign VMCS pointer rather than executing
// VMXOFF, per spec.md §4.2: "do not execute VMXOFF on the unwind path;
// instead re-VMPTRLD the foreign VMCS".
func LeaveIntel(s IntelState) error {
	if s.weOwnRootMode {
		cpuarch.VMXOFF()

		return nil
	}

	if s.hadForeignVMCS {
		return cpuarch.VMPTRLD(s.foreignVMCSPA)
	}

	return nil
}
