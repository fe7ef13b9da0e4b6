package crosspage

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// DecodeUD2Fault decodes the instruction at UD2FaultLA from raw bytes the
// caller has already copied out of the faulting address space (the
// switch driver, not this package, knows how to translate a monitor
// linear address back into bytes it can read), returning a GNU-syntax
// rendering for Switch's failure path. Grounded on the teacher's
// Machine.Inst/Asm pair (machine/debug_amd64.go), which does the same
// RIP-relative decode for a guest instruction rather than a monitor one.
func DecodeUD2Fault(insnBytes []byte, faultLA uint64) (*x86asm.Inst, string, error) {
	d, err := x86asm.Decode(insnBytes, 64)
	if err != nil {
		return nil, "", fmt.Errorf("crosspage: decoding #UD instruction at %#x: %w", faultLA, err)
	}

	return &d, x86asm.GNUSyntax(d, faultLA, nil), nil
}
