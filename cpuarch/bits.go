// Package cpuarch provides the raw x86-64 primitives the world-switch
// engine needs to touch live hardware state: CPUID, MSRs, descriptor
// table pointers, control and debug registers, and the VMX/SVM root-mode
// instructions. Everything here is a thin wrapper around a handful of
// assembly instructions — no policy lives in this package.
package cpuarch

// CR0 bits.
const (
	CR0xPE = 1
	CR0xMP = 1 << 1
	CR0xEM = 1 << 2
	CR0xTS = 1 << 3
	CR0xET = 1 << 4
	CR0xNE = 1 << 5
	CR0xWP = 1 << 16
	CR0xAM = 1 << 18
	CR0xNW = 1 << 29
	CR0xCD = 1 << 30
	CR0xPG = 1 << 31

	// CR0_RESERVED is the set of bits the switch driver must preserve
	// verbatim from the host's CR0 when composing the world-switch CR0
	// (spec.md §4.6 step 9).
	CR0Reserved = CR0xNW | CR0xCD
)

// CR4 bits.
const (
	CR4xVME        = 1
	CR4xPVI        = 1 << 1
	CR4xTSD        = 1 << 2
	CR4xDE         = 1 << 3
	CR4xPSE        = 1 << 4
	CR4xPAE        = 1 << 5
	CR4xMCE        = 1 << 6
	CR4xPGE        = 1 << 7
	CR4xPCE        = 1 << 8
	CR4xOSFXSR     = 1 << 9
	CR4xOSXMMEXCPT = 1 << 10
	CR4xUMIP       = 1 << 11
	CR4xVMXE       = 1 << 13
	CR4xSMXE       = 1 << 14
	CR4xFSGSBASE   = 1 << 16
	CR4xPCIDE      = 1 << 17
	CR4xOSXSAVE    = 1 << 18
	CR4xSMEP       = 1 << 20
	CR4xSMAP       = 1 << 21
)

// EFER bits.
const (
	EFERxSCE = 1
	EFERxLME = 1 << 8
	EFERxLMA = 1 << 10
	EFERxNXE = 1 << 11
	EFERxSVME = 1 << 12
)

// DR6/DR7 bits relevant to the GD-aware debug-register save dance
// (spec.md §4.6 step 10, Scenario E).
const (
	DR6xBD = 1 << 13 // breakpoint debug-register access detected
	DR7xGD = 1 << 13 // general detect enable

	// DR7Enabled is the mask of the four local/global breakpoint-enable
	// bits (L0..G3); any of them set means a breakpoint could trip
	// during the switch.
	DR7Enabled = 0xFF

	// DR7Default is the architectural reserved-one bit 10 with every
	// other bit clear: DR7 with all breakpoints disabled and GD clear.
	DR7Default = 1 << 10
)

// 64-bit page-table entry bits, reused by the PT-patch engine.
const (
	PDE64xPRESENT  = 1
	PDE64xRW       = 1 << 1
	PDE64xUSER     = 1 << 2
	PDE64xACCESSED = 1 << 5
	PDE64xDIRTY    = 1 << 6
	PDE64xPS       = 1 << 7
	PDE64xG        = 1 << 8
	PDE64xNX       = 1 << 63
)

// PageSize is the native x86-64 page size used throughout the core.
const PageSize = 4096

// PTEsPerPage is the number of 8-byte PTE slots in one page-table page.
const PTEsPerPage = PageSize / 8
