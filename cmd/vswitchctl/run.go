package main

import (
	"github.com/wswitch/core/addrspace"
	"github.com/wswitch/core/hostif"
	"github.com/wswitch/core/probe"
	"github.com/wswitch/core/ptpatch"
)

// probeHWCaps runs the HW-caps probe across numPCPUs real logical CPUs,
// pinning to each in turn via hostif.RunOnPCPU (spec.md §4.1).
func probeHWCaps(numPCPUs int) (*probe.CapabilitySet, error) {
	return probe.Probe(numPCPUs, hostif.RunOnPCPU)
}

// dryRunPatch exercises the PT-patch engine's tree-walk over numPages
// synthetic, contiguous guest pages mapped just past the end of a
// synthetic monitor region, returning how many pages it patched (pages
// that share a patch level reuse one patch-table entry). This is the
// loop VSWITCHCTL_PROFILE profiles: no real
// page tables or hardware are touched, only ptpatch's own bookkeeping
// (spec.md §4.4).
const pageShift = 12

func dryRunPatch(numPages int, monStart, monEnd uint64) (int, error) {
	tracker := ptpatch.NewTracker(hostif.NewPages())

	var table ptpatch.Table

	monStartLPN := addrspace.LPN(monStart >> pageShift)
	monEndLPN := addrspace.LPN(monEnd >> pageShift)

	used := 0

	for i := 0; i < numPages; i++ {
		lpn := monEndLPN + addrspace.LPN(i) + 1
		mpn := uint64(0x10000 + i)

		if err := table.CreatePatch(tracker, monStartLPN, monEndLPN, lpn, mpn); err != nil {
			return used, err
		}

		used++
	}

	if err := table.Fixup(tracker); err != nil {
		return used, err
	}

	return used, nil
}
