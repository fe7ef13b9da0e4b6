package crosspage_test

import (
	"testing"

	"github.com/wswitch/core/crosspage"
)

func TestDecodeUD2FaultDecodesUD2(t *testing.T) {
	t.Parallel()

	// 0F 0B is the UD2 opcode itself, the textbook "deliberate #UD"
	// instruction the crosspage's own switch IDT uses as its poison
	// pattern.
	insn := []byte{0x0F, 0x0B}

	inst, syntax, err := crosspage.DecodeUD2Fault(insn, 0xFFFFFFFF80001000)
	if err != nil {
		t.Fatalf("DecodeUD2Fault: %v", err)
	}

	if inst.Len != 2 {
		t.Errorf("expected a 2-byte instruction, got %d", inst.Len)
	}

	if syntax == "" {
		t.Error("expected a non-empty GNU-syntax rendering")
	}
}

func TestDecodeUD2FaultRejectsTruncatedInstruction(t *testing.T) {
	t.Parallel()

	// A lone two-byte-opcode escape with no opcode byte following it:
	// too short for x86asm to resolve into any instruction.
	insn := []byte{0x0F}

	if _, _, err := crosspage.DecodeUD2Fault(insn, 0); err == nil {
		t.Error("expected decoding a truncated instruction to fail")
	}
}
