//go:build linux && amd64

package cpuarch

// DebugRegs is the full set of debug registers the switch driver saves
// and restores around a world-switch (spec.md §4.6 step 10).
type DebugRegs struct {
	DR0, DR1, DR2, DR3 uint64
	DR6, DR7           uint64
}

//go:noescape
func readDR0() uint64

//go:noescape
func writeDR0(v uint64)

//go:noescape
func readDR1() uint64

//go:noescape
func writeDR1(v uint64)

//go:noescape
func readDR2() uint64

//go:noescape
func writeDR2(v uint64)

//go:noescape
func readDR3() uint64

//go:noescape
func writeDR3(v uint64)

//go:noescape
func readDR6() uint64

//go:noescape
func writeDR6(v uint64)

//go:noescape
func readDR7() uint64

//go:noescape
func writeDR7(v uint64)

// ReadDR0, ReadDR1, ReadDR2, ReadDR3, ReadDR6 and ReadDR7 read one debug
// register at a time, for callers that need the GD-aware save dance
// (spec.md §4.6 step 10) rather than the all-at-once snapshot below.
func ReadDR0() uint64 { return readDR0() }
func ReadDR1() uint64 { return readDR1() }
func ReadDR2() uint64 { return readDR2() }
func ReadDR3() uint64 { return readDR3() }
func ReadDR6() uint64 { return readDR6() }
func ReadDR7() uint64 { return readDR7() }

// WriteDR0, WriteDR1, WriteDR2, WriteDR3, WriteDR6 and WriteDR7 write
// one debug register at a time; see WriteDebugRegs for the ordering
// invariant when restoring all of them together.
func WriteDR0(v uint64) { writeDR0(v) }
func WriteDR1(v uint64) { writeDR1(v) }
func WriteDR2(v uint64) { writeDR2(v) }
func WriteDR3(v uint64) { writeDR3(v) }
func WriteDR6(v uint64) { writeDR6(v) }
func WriteDR7(v uint64) { writeDR7(v) }

// ReadDebugRegs snapshots DR0-DR3, DR6, DR7 in one call.
func ReadDebugRegs() DebugRegs {
	return DebugRegs{
		DR0: readDR0(), DR1: readDR1(), DR2: readDR2(), DR3: readDR3(),
		DR6: readDR6(), DR7: readDR7(),
	}
}

// WriteDebugRegs restores DR0-DR3 then DR6, writing DR7 last — per
// spec.md §4.6 step 15e ("Restore debug registers (DR7 last, to preserve
// GD)"), loading DR7 first could re-arm GD before the other registers are
// in their final state.
func WriteDebugRegs(d DebugRegs) {
	writeDR0(d.DR0)
	writeDR1(d.DR1)
	writeDR2(d.DR2)
	writeDR3(d.DR3)
	writeDR6(d.DR6)
	writeDR7(d.DR7)
}

//go:noescape
func rdtscLow() uint64

// RDTSC reads the raw hardware time-stamp counter.
func RDTSC() uint64 {
	return rdtscLow()
}
