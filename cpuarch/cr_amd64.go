//go:build linux && amd64

package cpuarch

//go:noescape
func readCR0() uint64

//go:noescape
func writeCR0(v uint64)

//go:noescape
func readCR2() uint64

//go:noescape
func readCR3() uint64

//go:noescape
func writeCR3(v uint64)

//go:noescape
func readCR4() uint64

//go:noescape
func writeCR4(v uint64)

// ReadCR0 / WriteCR0 access the CR0 control register.
func ReadCR0() uint64    { return readCR0() }
func WriteCR0(v uint64)  { writeCR0(v) }

// ReadCR2 reads the page-fault linear address register (read-only at
// this layer; CR2 is written by the CPU itself on #PF).
func ReadCR2() uint64 { return readCR2() }

// ReadCR3 / WriteCR3 access the page-table base register. WriteCR3
// flushes all non-global TLB entries as a side effect (spec.md §4.5 step
// 5: "Write monitor CR3 last... flushing the TLB").
func ReadCR3() uint64   { return readCR3() }
func WriteCR3(v uint64) { writeCR3(v) }

// ReadCR4 / WriteCR4 access the CR4 control register.
func ReadCR4() uint64   { return readCR4() }
func WriteCR4(v uint64) { writeCR4(v) }

// ToggleCR4PGE clears then re-sets CR4.PGE, which per spec.md §4.6 step
// 15b flushes all TLB entries tagged with PCID 0 even when PCIDE is in
// effect (a plain CR4 write alone would not).
func ToggleCR4PGE() {
	cr4 := ReadCR4()
	WriteCR4(cr4 &^ CR4xPGE)
	WriteCR4(cr4)
}
