package hart

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harts-sim/rvcore/rvgo/isa"
	"github.com/harts-sim/rvcore/rvgo/mem"
)

const (
	ramBase  = 0x8000_0000
	dataBase = ramBase + 0x1_0000
	romBase  = 0x1000
)

func newTestMemory(t testing.TB) *mem.Memory {
	m, err := mem.NewMemory(
		mem.Region{Name: "ram", Base: ramBase, Size: 1 << 20},
		mem.Region{Name: "rom", Base: romBase, Size: mem.PageSize, ReadOnly: true},
	)
	require.NoError(t, err)
	return m
}

func newTestHart(t testing.TB) (*Hart, *mem.Memory) {
	m := newTestMemory(t)
	h := New(0, m, isa.AllExtensions)
	h.PC = ramBase
	return h, m
}

// writeProgram assembles ops at addr.
func writeProgram(t testing.TB, m *mem.Memory, addr uint32, ops ...isa.Operation) {
	var buf bytes.Buffer
	for _, op := range ops {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, isa.MustEncode(op)))
	}
	require.NoError(t, m.SetMemoryRange(addr, &buf))
}

// runUntilTrap steps the hart until it concludes a trap.
func runUntilTrap(t testing.TB, h *Hart, maxSteps int) Conclusion {
	for i := 0; i < maxSteps; i++ {
		if c := h.Execute(); c.IsTrap() {
			return c
		}
	}
	t.Fatalf("hart %d did not trap within %d steps (PC: %08x)", h.ID, maxSteps, h.PC)
	return Conclusion{}
}

func op(kind isa.Kind, rd, rs1, rs2 uint8, imm int32) isa.Operation {
	return isa.Operation{Kind: kind, Rd: rd, Rs1: rs1, Rs2: rs2, Imm: imm}
}

func loadWord(t testing.TB, m *mem.Memory, addr uint32) uint32 {
	v, err := m.Load(addr, mem.Word, false)
	require.NoError(t, err)
	return v
}
