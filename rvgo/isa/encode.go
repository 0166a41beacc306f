package isa

import (
	"errors"
	"fmt"

	"github.com/harts-sim/rvcore/rvgo/riscv"
)

var ErrUnencodable = errors.New("operation cannot be encoded")

type format uint8

const (
	fmtR format = iota
	fmtI
	fmtS
	fmtB
	fmtU
	fmtJ
	fmtShift
	fmtCSR
	fmtAMO
	fmtFixed
	fmtFence
)

type template struct {
	format format
	opcode uint32
	funct3 uint32
	funct7 uint32 // funct5 for AMOs, the full word for fixed encodings
}

var templates = [KindCount]template{
	LUI:   {fmtU, riscv.OpLui, 0, 0},
	AUIPC: {fmtU, riscv.OpAuipc, 0, 0},
	JAL:   {fmtJ, riscv.OpJal, 0, 0},
	JALR:  {fmtI, riscv.OpJalr, 0, 0},

	BEQ: {fmtB, riscv.OpBranch, 0, 0}, BNE: {fmtB, riscv.OpBranch, 1, 0},
	BLT: {fmtB, riscv.OpBranch, 4, 0}, BGE: {fmtB, riscv.OpBranch, 5, 0},
	BLTU: {fmtB, riscv.OpBranch, 6, 0}, BGEU: {fmtB, riscv.OpBranch, 7, 0},

	LB: {fmtI, riscv.OpLoad, 0, 0}, LH: {fmtI, riscv.OpLoad, 1, 0}, LW: {fmtI, riscv.OpLoad, 2, 0},
	LBU: {fmtI, riscv.OpLoad, 4, 0}, LHU: {fmtI, riscv.OpLoad, 5, 0},
	SB: {fmtS, riscv.OpStore, 0, 0}, SH: {fmtS, riscv.OpStore, 1, 0}, SW: {fmtS, riscv.OpStore, 2, 0},

	ADDI: {fmtI, riscv.OpImm, 0, 0}, SLTI: {fmtI, riscv.OpImm, 2, 0}, SLTIU: {fmtI, riscv.OpImm, 3, 0},
	XORI: {fmtI, riscv.OpImm, 4, 0}, ORI: {fmtI, riscv.OpImm, 6, 0}, ANDI: {fmtI, riscv.OpImm, 7, 0},
	SLLI: {fmtShift, riscv.OpImm, 1, 0x00}, SRLI: {fmtShift, riscv.OpImm, 5, 0x00}, SRAI: {fmtShift, riscv.OpImm, 5, 0x20},

	ADD: {fmtR, riscv.OpReg, 0, 0x00}, SUB: {fmtR, riscv.OpReg, 0, 0x20},
	SLL: {fmtR, riscv.OpReg, 1, 0x00}, SLT: {fmtR, riscv.OpReg, 2, 0x00}, SLTU: {fmtR, riscv.OpReg, 3, 0x00},
	XOR: {fmtR, riscv.OpReg, 4, 0x00}, SRL: {fmtR, riscv.OpReg, 5, 0x00}, SRA: {fmtR, riscv.OpReg, 5, 0x20},
	OR: {fmtR, riscv.OpReg, 6, 0x00}, AND: {fmtR, riscv.OpReg, 7, 0x00},

	FENCE:  {fmtFence, riscv.OpMiscMem, 0, 0},
	FENCEI: {fmtFixed, riscv.OpMiscMem, 1, 0x0000_100F},
	ECALL:  {fmtFixed, riscv.OpSystem, 0, 0x0000_0073},
	EBREAK: {fmtFixed, riscv.OpSystem, 0, 0x0010_0073},

	CSRRW: {fmtCSR, riscv.OpSystem, 1, 0}, CSRRS: {fmtCSR, riscv.OpSystem, 2, 0}, CSRRC: {fmtCSR, riscv.OpSystem, 3, 0},
	CSRRWI: {fmtCSR, riscv.OpSystem, 5, 0}, CSRRSI: {fmtCSR, riscv.OpSystem, 6, 0}, CSRRCI: {fmtCSR, riscv.OpSystem, 7, 0},

	MUL: {fmtR, riscv.OpReg, 0, 0x01}, MULH: {fmtR, riscv.OpReg, 1, 0x01},
	MULHSU: {fmtR, riscv.OpReg, 2, 0x01}, MULHU: {fmtR, riscv.OpReg, 3, 0x01},
	DIV: {fmtR, riscv.OpReg, 4, 0x01}, DIVU: {fmtR, riscv.OpReg, 5, 0x01},
	REM: {fmtR, riscv.OpReg, 6, 0x01}, REMU: {fmtR, riscv.OpReg, 7, 0x01},

	LRW: {fmtAMO, riscv.OpAmo, 2, 0x02}, SCW: {fmtAMO, riscv.OpAmo, 2, 0x03},
	AMOSWAPW: {fmtAMO, riscv.OpAmo, 2, 0x01}, AMOADDW: {fmtAMO, riscv.OpAmo, 2, 0x00},
	AMOXORW: {fmtAMO, riscv.OpAmo, 2, 0x04}, AMOANDW: {fmtAMO, riscv.OpAmo, 2, 0x0C},
	AMOORW: {fmtAMO, riscv.OpAmo, 2, 0x08}, AMOMINW: {fmtAMO, riscv.OpAmo, 2, 0x10},
	AMOMAXW: {fmtAMO, riscv.OpAmo, 2, 0x14}, AMOMINUW: {fmtAMO, riscv.OpAmo, 2, 0x18},
	AMOMAXUW: {fmtAMO, riscv.OpAmo, 2, 0x1C},
}

func fitsSigned(v int32, bits uint) bool {
	lim := int32(1) << (bits - 1)
	return v >= -lim && v < lim
}

// Encode is the inverse of Decode for every valid operation.
// Immediates out of range for the kind's format are rejected.
func Encode(op Operation) (uint32, error) {
	if op.Kind == Invalid || op.Kind >= KindCount {
		return 0, fmt.Errorf("%w: kind %v", ErrUnencodable, op.Kind)
	}
	if op.Rd > 31 || op.Rs1 > 31 || op.Rs2 > 31 {
		return 0, fmt.Errorf("%w: register index out of range in %v", ErrUnencodable, op.Kind)
	}
	t := templates[op.Kind]
	rd, rs1, rs2 := uint32(op.Rd)<<7, uint32(op.Rs1)<<15, uint32(op.Rs2)<<20
	base := t.opcode | t.funct3<<12
	imm := uint32(op.Imm)
	switch t.format {
	case fmtR:
		return base | rd | rs1 | rs2 | t.funct7<<25, nil
	case fmtI:
		if !fitsSigned(op.Imm, 12) {
			return 0, fmt.Errorf("%w: %v immediate %d exceeds 12 bits", ErrUnencodable, op.Kind, op.Imm)
		}
		return base | rd | rs1 | imm<<20, nil
	case fmtShift:
		if op.Imm < 0 || op.Imm > 31 {
			return 0, fmt.Errorf("%w: %v shift amount %d", ErrUnencodable, op.Kind, op.Imm)
		}
		return base | rd | rs1 | imm<<20 | t.funct7<<25, nil
	case fmtS:
		if !fitsSigned(op.Imm, 12) {
			return 0, fmt.Errorf("%w: %v offset %d exceeds 12 bits", ErrUnencodable, op.Kind, op.Imm)
		}
		return base | rs1 | rs2 | (imm&0x1F)<<7 | (imm>>5&0x7F)<<25, nil
	case fmtB:
		if !fitsSigned(op.Imm, 13) || op.Imm&1 != 0 {
			return 0, fmt.Errorf("%w: %v offset %d", ErrUnencodable, op.Kind, op.Imm)
		}
		return base | rs1 | rs2 |
			(imm>>12&1)<<31 | (imm>>5&0x3F)<<25 |
			(imm>>1&0xF)<<8 | (imm>>11&1)<<7, nil
	case fmtU:
		if imm&0xFFF != 0 {
			return 0, fmt.Errorf("%w: %v immediate 0x%x has low bits set", ErrUnencodable, op.Kind, imm)
		}
		return base | rd | imm, nil
	case fmtJ:
		if !fitsSigned(op.Imm, 21) || op.Imm&1 != 0 {
			return 0, fmt.Errorf("%w: %v offset %d", ErrUnencodable, op.Kind, op.Imm)
		}
		return base | rd |
			(imm>>20&1)<<31 | (imm>>1&0x3FF)<<21 |
			(imm>>11&1)<<20 | (imm>>12&0xFF)<<12, nil
	case fmtCSR:
		src := rs1
		if t.funct3&4 != 0 {
			if op.Imm < 0 || op.Imm > 31 {
				return 0, fmt.Errorf("%w: %v uimm %d", ErrUnencodable, op.Kind, op.Imm)
			}
			src = imm << 15
		}
		return base | rd | src | uint32(op.CSR&0xFFF)<<20, nil
	case fmtAMO:
		var order uint32
		if op.Aq {
			order |= 1 << 26
		}
		if op.Rl {
			order |= 1 << 25
		}
		if op.Kind == LRW {
			rs2 = 0
		}
		return base | rd | rs1 | rs2 | order | t.funct7<<27, nil
	case fmtFence:
		return base | uint32(op.FM&0xF)<<28 | uint32(op.Pred&0xF)<<24 | uint32(op.Succ&0xF)<<20, nil
	case fmtFixed:
		return t.funct7, nil
	}
	return 0, fmt.Errorf("%w: kind %v", ErrUnencodable, op.Kind)
}

// MustEncode is Encode for statically known operations, such as test programs.
func MustEncode(op Operation) uint32 {
	v, err := Encode(op)
	if err != nil {
		panic(err)
	}
	return v
}
