package hart

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harts-sim/rvcore/rvgo/isa"
	"github.com/harts-sim/rvcore/rvgo/riscv"
)

func TestHartRegisters(t *testing.T) {
	h, _ := newTestHart(t)
	h.SetReg(0, 5)
	require.Zero(t, h.Reg(0))
	h.SetReg(31, 5)
	require.Equal(t, uint32(5), h.Reg(31))
	require.Equal(t, uint32(5), h.Reg(63), "register index wraps at 32")
	require.Equal(t, isa.AllExtensions, h.Extensions())
}

func TestHartState(t *testing.T) {
	h, m := newTestHart(t)
	h.SetReg(10, 123)
	require.NoError(t, h.CSRs().Write(riscv.CSRMscratch, 0xCAFE))
	h.ExecuteOp(op(isa.ADDI, 11, 10, 0, 1))

	s := h.State()
	require.Equal(t, uint32(ramBase+4), s.PC)
	require.Equal(t, uint32(124), s.Registers[11])
	require.Equal(t, "rv32ima_zicsr_zifencei", s.Extensions)
	require.NotNil(t, s.CSR)
	require.Equal(t, uint32(0xCAFE), s.CSR.Mscratch)
	require.Equal(t, uint64(1), s.CSR.Instret)

	dat, err := json.Marshal(s)
	require.NoError(t, err)
	var decoded State
	require.NoError(t, json.Unmarshal(dat, &decoded))
	require.Equal(t, s, decoded)

	h2 := New(7, m, isa.ExtI)
	require.NoError(t, h2.Restore(decoded))
	require.Equal(t, s, h2.State())
	v, err := h2.CSRs().Read(riscv.CSRMhartID)
	require.NoError(t, err)
	require.Equal(t, uint32(0), v, "mhartid follows the restored id")
	want, err := s.EncodeWitness()
	require.NoError(t, err)
	got, err := decoded.EncodeWitness()
	require.NoError(t, err)
	require.Equal(t, want, got)

	decoded.Extensions = "rv64gc"
	require.ErrorIs(t, h2.Restore(decoded), isa.ErrBadISAString)
}

func TestEncodeWitness(t *testing.T) {
	h, _ := newTestHart(t)
	a := h.State()
	enc, err := a.EncodeWitness()
	require.NoError(t, err)
	require.Len(t, enc, 4+4+32*4+1+8*4+2*8)

	h.SetReg(1, 1)
	b := h.State()
	encB, err := b.EncodeWitness()
	require.NoError(t, err)
	require.NotEqual(t, enc, encB)

	b.Extensions = "rv32x"
	_, err = b.EncodeWitness()
	require.ErrorIs(t, err, isa.ErrBadISAString)
}
