package crosspage

import (
	"encoding/binary"

	"github.com/wswitch/core/cpuarch"
)

// Interrupt vectors the switch IDT defines gates for (spec.md §3: "a
// miniature IDT... with four defined gates: #DB, #NMI, #UD, #MC").
const (
	vecDB  = 1
	vecNMI = 2
	vecUD  = 6
	vecMC  = 18

	gateSize   = 16
	numVectors = vecMC + 1

	gateTypeInterrupt = 0xE
	gatePresent       = 1 << 7
)

// Encode serializes the switch IDT into a flat byte table suitable for
// lidt, one 16-byte x86-64 interrupt-gate descriptor per vector. Only
// vecDB/vecNMI/vecUD/vecMC are populated; every other slot stays zeroed
// (not present) since this IDT is only ever live for the narrow window
// of one world switch.
func (s SwitchIDT) Encode() []byte {
	table := make([]byte, numVectors*gateSize)

	putGate(table, vecDB, s.DB)
	putGate(table, vecNMI, s.NMI)
	putGate(table, vecUD, s.UD)
	putGate(table, vecMC, s.MC)

	return table
}

func putGate(table []byte, vector int, g IDTGate) {
	off := vector * gateSize
	gate := table[off : off+gateSize]

	binary.LittleEndian.PutUint16(gate[0:2], uint16(g.HandlerLA))
	binary.LittleEndian.PutUint16(gate[2:4], g.Selector)
	gate[4] = g.IST & 0x7
	gate[5] = gatePresent | gateTypeInterrupt
	binary.LittleEndian.PutUint16(gate[6:8], uint16(g.HandlerLA>>16))
	binary.LittleEndian.PutUint32(gate[8:12], uint32(g.HandlerLA>>32))
}

// DTR returns the {limit, offset} descriptor for lidt, given the
// encoded table's linear address.
func (s SwitchIDT) DTR(tableLA uint64) cpuarch.DTR64 {
	return cpuarch.DTR64{Limit: numVectors*gateSize - 1, Base: tableLA}
}
