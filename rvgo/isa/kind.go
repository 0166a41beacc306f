package isa

import "fmt"

// Kind identifies a decoded instruction. The set is closed: every value below
// KindCount has a handler in the execution core.
type Kind uint8

const (
	Invalid Kind = iota

	// RV32I
	LUI
	AUIPC
	JAL
	JALR
	BEQ
	BNE
	BLT
	BGE
	BLTU
	BGEU
	LB
	LH
	LW
	LBU
	LHU
	SB
	SH
	SW
	ADDI
	SLTI
	SLTIU
	XORI
	ORI
	ANDI
	SLLI
	SRLI
	SRAI
	ADD
	SUB
	SLL
	SLT
	SLTU
	XOR
	SRL
	SRA
	OR
	AND
	FENCE
	ECALL
	EBREAK

	// Zifencei
	FENCEI

	// Zicsr
	CSRRW
	CSRRS
	CSRRC
	CSRRWI
	CSRRSI
	CSRRCI

	// RV32M
	MUL
	MULH
	MULHSU
	MULHU
	DIV
	DIVU
	REM
	REMU

	// RV32A
	LRW
	SCW
	AMOSWAPW
	AMOADDW
	AMOXORW
	AMOANDW
	AMOORW
	AMOMINW
	AMOMAXW
	AMOMINUW
	AMOMAXUW

	KindCount
)

var kindNames = [KindCount]string{
	Invalid: "invalid",
	LUI:     "lui", AUIPC: "auipc", JAL: "jal", JALR: "jalr",
	BEQ: "beq", BNE: "bne", BLT: "blt", BGE: "bge", BLTU: "bltu", BGEU: "bgeu",
	LB: "lb", LH: "lh", LW: "lw", LBU: "lbu", LHU: "lhu",
	SB: "sb", SH: "sh", SW: "sw",
	ADDI: "addi", SLTI: "slti", SLTIU: "sltiu", XORI: "xori", ORI: "ori", ANDI: "andi",
	SLLI: "slli", SRLI: "srli", SRAI: "srai",
	ADD: "add", SUB: "sub", SLL: "sll", SLT: "slt", SLTU: "sltu",
	XOR: "xor", SRL: "srl", SRA: "sra", OR: "or", AND: "and",
	FENCE: "fence", ECALL: "ecall", EBREAK: "ebreak",
	FENCEI: "fence.i",
	CSRRW:  "csrrw", CSRRS: "csrrs", CSRRC: "csrrc",
	CSRRWI: "csrrwi", CSRRSI: "csrrsi", CSRRCI: "csrrci",
	MUL: "mul", MULH: "mulh", MULHSU: "mulhsu", MULHU: "mulhu",
	DIV: "div", DIVU: "divu", REM: "rem", REMU: "remu",
	LRW: "lr.w", SCW: "sc.w",
	AMOSWAPW: "amoswap.w", AMOADDW: "amoadd.w", AMOXORW: "amoxor.w",
	AMOANDW: "amoand.w", AMOORW: "amoor.w",
	AMOMINW: "amomin.w", AMOMAXW: "amomax.w", AMOMINUW: "amominu.w", AMOMAXUW: "amomaxu.w",
}

func (k Kind) String() string {
	if k < KindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Extension returns the extension that introduces the kind.
// Invalid and all RV32I kinds report ExtI.
func (k Kind) Extension() Extensions {
	switch {
	case k == FENCEI:
		return ExtZifencei
	case k >= CSRRW && k <= CSRRCI:
		return ExtZicsr
	case k >= MUL && k <= REMU:
		return ExtM
	case k >= LRW && k <= AMOMAXUW:
		return ExtA
	default:
		return ExtI
	}
}

// IsAMO reports whether the kind is a read-modify-write atomic (not LR/SC).
func (k Kind) IsAMO() bool {
	return k >= AMOSWAPW && k <= AMOMAXUW
}

func (k Kind) IsLoad() bool {
	return k >= LB && k <= LHU
}

func (k Kind) IsStore() bool {
	return k >= SB && k <= SW
}

func (k Kind) IsBranch() bool {
	return k >= BEQ && k <= BGEU
}

// WritesRd reports whether executing the kind may write the destination register.
func (k Kind) WritesRd() bool {
	switch {
	case k == Invalid, k.IsBranch(), k.IsStore():
		return false
	case k == FENCE, k == FENCEI, k == ECALL, k == EBREAK:
		return false
	}
	return k < KindCount
}
