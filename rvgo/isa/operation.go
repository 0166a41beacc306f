package isa

import (
	"fmt"

	"github.com/harts-sim/rvcore/rvgo/riscv"
)

// Operation is a decoded instruction. Fields that the kind does not use are zero.
type Operation struct {
	Kind Kind

	Rd  uint8
	Rs1 uint8
	Rs2 uint8

	// Imm is the sign-extended immediate. For the CSR immediate forms it
	// holds the zero-extended 5-bit uimm; for shifts by immediate, the shamt.
	Imm int32

	CSR uint16

	// ordering bits of LR/SC/AMO
	Aq bool
	Rl bool

	// FENCE fields
	FM   uint8
	Pred uint8
	Succ uint8

	// Raw is the encoded instruction, reported as the trap value of illegal instructions.
	Raw uint32
}

// fence predecessor/successor set bits
const (
	FenceW = 1 << iota
	FenceR
	FenceO
	FenceI
)

func fenceSet(s uint8) string {
	out := ""
	for i, c := range "iorw" {
		if s&(1<<(3-i)) != 0 {
			out += string(c)
		}
	}
	if out == "" {
		return "0"
	}
	return out
}

func (op Operation) String() string {
	rd, rs1, rs2 := riscv.RegName(op.Rd), riscv.RegName(op.Rs1), riscv.RegName(op.Rs2)
	k := op.Kind
	switch {
	case k == Invalid:
		return fmt.Sprintf("invalid 0x%08x", op.Raw)
	case k == LUI || k == AUIPC:
		return fmt.Sprintf("%s %s, 0x%x", k, rd, uint32(op.Imm)>>12)
	case k == JAL:
		return fmt.Sprintf("%s %s, %d", k, rd, op.Imm)
	case k == JALR || k.IsLoad():
		return fmt.Sprintf("%s %s, %d(%s)", k, rd, op.Imm, rs1)
	case k.IsBranch():
		return fmt.Sprintf("%s %s, %s, %d", k, rs1, rs2, op.Imm)
	case k.IsStore():
		return fmt.Sprintf("%s %s, %d(%s)", k, rs2, op.Imm, rs1)
	case k >= ADDI && k <= SRAI:
		return fmt.Sprintf("%s %s, %s, %d", k, rd, rs1, op.Imm)
	case k >= ADD && k <= AND, k >= MUL && k <= REMU:
		return fmt.Sprintf("%s %s, %s, %s", k, rd, rs1, rs2)
	case k == FENCE:
		if op.FM == 0b1000 {
			return "fence.tso"
		}
		return fmt.Sprintf("fence %s, %s", fenceSet(op.Pred), fenceSet(op.Succ))
	case k == ECALL || k == EBREAK || k == FENCEI:
		return k.String()
	case k >= CSRRW && k <= CSRRC:
		return fmt.Sprintf("%s %s, 0x%03x, %s", k, rd, op.CSR, rs1)
	case k >= CSRRWI && k <= CSRRCI:
		return fmt.Sprintf("%s %s, 0x%03x, %d", k, rd, op.CSR, op.Imm)
	case k == LRW:
		return fmt.Sprintf("%s%s %s, (%s)", k, orderSuffix(op), rd, rs1)
	case k == SCW || k.IsAMO():
		return fmt.Sprintf("%s%s %s, %s, (%s)", k, orderSuffix(op), rd, rs2, rs1)
	}
	return k.String()
}

func orderSuffix(op Operation) string {
	switch {
	case op.Aq && op.Rl:
		return ".aqrl"
	case op.Aq:
		return ".aq"
	case op.Rl:
		return ".rl"
	}
	return ""
}
