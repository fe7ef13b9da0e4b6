package crosspage_test

import (
	"encoding/binary"
	"testing"

	"github.com/wswitch/core/crosspage"
)

func TestEncodeOnlyPopulatesDefinedVectors(t *testing.T) {
	t.Parallel()

	idt := crosspage.BuildSwitchIDT(0x08)
	table := idt.Encode()

	const gateSize = 16

	for vec := 0; vec*gateSize < len(table); vec++ {
		gate := table[vec*gateSize : vec*gateSize+gateSize]
		present := gate[5]&0x80 != 0

		switch vec {
		case 1, 2, 6, 18:
			if !present {
				t.Errorf("vector %d: expected a present gate", vec)
			}
		default:
			if present {
				t.Errorf("vector %d: expected no gate, got one marked present", vec)
			}
		}
	}
}

func TestEncodeRoundTripsHandlerAddress(t *testing.T) {
	t.Parallel()

	idt := crosspage.BuildSwitchIDT(0x08)
	table := idt.Encode()

	const (
		gateSize = 16
		vecUD    = 6
	)

	gate := table[vecUD*gateSize : vecUD*gateSize+gateSize]

	low := binary.LittleEndian.Uint16(gate[0:2])
	mid := binary.LittleEndian.Uint16(gate[6:8])
	high := binary.LittleEndian.Uint32(gate[8:12])

	got := uint64(low) | uint64(mid)<<16 | uint64(high)<<32

	if got != idt.UD.HandlerLA {
		t.Errorf("decoded handler address %#x, want %#x", got, idt.UD.HandlerLA)
	}

	selector := binary.LittleEndian.Uint16(gate[2:4])
	if selector != 0x08 {
		t.Errorf("decoded selector %#x, want 0x08", selector)
	}
}

func TestDTRLimitCoversWholeTable(t *testing.T) {
	t.Parallel()

	var idt crosspage.SwitchIDT

	dtr := idt.DTR(0xFFFF800012340000)

	table := idt.Encode()
	if int(dtr.Limit)+1 != len(table) {
		t.Errorf("DTR limit %d+1 does not cover encoded table length %d", dtr.Limit, len(table))
	}

	if dtr.Base != 0xFFFF800012340000 {
		t.Errorf("DTR base = %#x, want the table's linear address", dtr.Base)
	}
}
