//go:build linux && amd64

package cpuarch

//go:noescape
func stgiLow()

//go:noescape
func clgiLow()

// STGI and CLGI are AMD SVM's global-interrupt-flag set/clear
// instructions. Go's assembler has no named mnemonic for either (they're
// AMD-only and never appear in the runtime's own instruction set), so
// the .s bodies below encode them as raw opcode bytes — the same
// technique the wider Go ecosystem uses for instructions the assembler
// doesn't know (e.g. RDRAND support before Go 1.x added a mnemonic for
// it).
func STGI() { stgiLow() }
func CLGI() { clgiLow() }
