package switchdrv

// Result reports how a switch concluded, beyond a plain bool, since the
// driver needs to tell "clean run", "recorded but transparent NMI/MC",
// and "#UD — switch failed" apart when deciding whether to retry
// (spec.md §9 design note: "exceptions used for control flow instead of
// an error code for every possible fault").
type Result struct {
	OK   bool
	NMI  bool
	MC   bool
	UD   bool
	Intr bool // MODULECALL_INTR: args[0] carries the vector to re-raise
	Vec  uint64

	// UD2Insn is the GNU-syntax rendering of the faulting instruction
	// when UD is set, best-effort: empty if no LinearMem was wired in or
	// the bytes at the fault address didn't decode.
	UD2Insn string
}
