package isa

import "github.com/harts-sim/rvcore/rvgo/riscv"

// these fields are ignored if not applicable to the instruction type / opcode

func parseRd(instr uint32) uint8 { return uint8((instr >> 7) & 0x1F) }
func parseFunct3(instr uint32) uint32 { return (instr >> 12) & 0x7 }
func parseRs1(instr uint32) uint8 { return uint8((instr >> 15) & 0x1F) }
func parseRs2(instr uint32) uint8 { return uint8((instr >> 20) & 0x1F) }
func parseFunct7(instr uint32) uint32 { return instr >> 25 }

func parseImmTypeI(instr uint32) int32 {
	return int32(instr) >> 20
}

func parseImmTypeS(instr uint32) int32 {
	return (int32(instr)>>25)<<5 | int32((instr>>7)&0x1F)
}

func parseImmTypeB(instr uint32) int32 {
	// 13 bits with a hardcoded 0 bit: offsets are in multiples of 2 bytes
	v := ((instr>>31)&1)<<12 |
		((instr>>7)&1)<<11 |
		((instr>>25)&0x3F)<<5 |
		((instr>>8)&0xF)<<1
	return int32(v<<19) >> 19
}

func parseImmTypeU(instr uint32) int32 {
	return int32(instr & 0xFFFF_F000)
}

func parseImmTypeJ(instr uint32) int32 {
	v := ((instr>>31)&1)<<20 |
		((instr>>12)&0xFF)<<12 |
		((instr>>20)&1)<<11 |
		((instr>>21)&0x3FF)<<1
	return int32(v<<11) >> 11
}

// Decode turns an encoded instruction into an Operation. Encodings outside
// the enabled extensions, reserved encodings and compressed instructions all
// decode to an Invalid operation carrying the raw bits. Decode never panics.
func Decode(instr uint32, ext Extensions) Operation {
	op := Operation{
		Raw: instr,
		Rd:  parseRd(instr),
		Rs1: parseRs1(instr),
		Rs2: parseRs2(instr),
	}
	op.Kind = decodeKind(&op, instr)
	if !ext.Has(op.Kind.Extension()) {
		op = Operation{Kind: Invalid, Raw: instr}
	}
	if op.Kind == Invalid {
		return Operation{Kind: Invalid, Raw: instr}
	}
	return op
}

func decodeKind(op *Operation, instr uint32) Kind {
	if instr&3 != 3 {
		return Invalid // 16-bit compressed encodings are not supported
	}
	funct3 := parseFunct3(instr)
	funct7 := parseFunct7(instr)

	switch riscv.Opcode(instr) {
	case riscv.OpLui:
		op.Imm = parseImmTypeU(instr)
		return LUI
	case riscv.OpAuipc:
		op.Imm = parseImmTypeU(instr)
		return AUIPC
	case riscv.OpJal:
		op.Imm = parseImmTypeJ(instr)
		return JAL
	case riscv.OpJalr:
		if funct3 != 0 {
			return Invalid
		}
		op.Imm = parseImmTypeI(instr)
		return JALR
	case riscv.OpBranch:
		op.Imm = parseImmTypeB(instr)
		switch funct3 {
		case 0: // 000 = BEQ
			return BEQ
		case 1: // 001 = BNE
			return BNE
		case 4: // 100 = BLT
			return BLT
		case 5: // 101 = BGE
			return BGE
		case 6: // 110 = BLTU
			return BLTU
		case 7: // 111 = BGEU
			return BGEU
		}
	case riscv.OpLoad:
		op.Imm = parseImmTypeI(instr)
		switch funct3 {
		case 0:
			return LB
		case 1:
			return LH
		case 2:
			return LW
		case 4:
			return LBU
		case 5:
			return LHU
		}
	case riscv.OpStore:
		op.Imm = parseImmTypeS(instr)
		switch funct3 {
		case 0:
			return SB
		case 1:
			return SH
		case 2:
			return SW
		}
	case riscv.OpImm:
		op.Imm = parseImmTypeI(instr)
		switch funct3 {
		case 0: // 000 = ADDI
			return ADDI
		case 2: // 010 = SLTI
			return SLTI
		case 3: // 011 = SLTIU
			return SLTIU
		case 4: // 100 = XORI
			return XORI
		case 6: // 110 = ORI
			return ORI
		case 7: // 111 = ANDI
			return ANDI
		case 1: // 001 = SLLI
			op.Imm = int32(op.Rs2)
			if funct7 == 0 {
				return SLLI
			}
		case 5: // 101 = SR~, in rv32i the top 7 bits select the shift type
			op.Imm = int32(op.Rs2)
			switch funct7 {
			case 0x00:
				return SRLI
			case 0x20:
				return SRAI
			}
		}
	case riscv.OpReg:
		switch funct7 {
		case 0x00:
			switch funct3 {
			case 0:
				return ADD
			case 1:
				return SLL
			case 2:
				return SLT
			case 3:
				return SLTU
			case 4:
				return XOR
			case 5:
				return SRL
			case 6:
				return OR
			case 7:
				return AND
			}
		case 0x20:
			switch funct3 {
			case 0:
				return SUB
			case 5:
				return SRA
			}
		case 0x01: // RV M extension
			return [8]Kind{MUL, MULH, MULHSU, MULHU, DIV, DIVU, REM, REMU}[funct3]
		}
	case riscv.OpMiscMem:
		switch funct3 {
		case 0: // 000 = FENCE, rd and rs1 are reserved and ignored
			op.FM = uint8(instr >> 28)
			op.Pred = uint8((instr >> 24) & 0xF)
			op.Succ = uint8((instr >> 20) & 0xF)
			return FENCE
		case 1: // 001 = FENCE.I
			return FENCEI
		}
	case riscv.OpSystem:
		switch funct3 {
		case 0:
			switch instr {
			case 0x0000_0073:
				return ECALL
			case 0x0010_0073:
				return EBREAK
			}
		case 4:
			return Invalid
		default: // CSR instructions
			op.CSR = uint16(instr >> 20)
			if funct3&4 != 0 {
				op.Imm = int32(op.Rs1) // uimm lives in the rs1 field
			}
			return [8]Kind{Invalid, CSRRW, CSRRS, CSRRC, Invalid, CSRRWI, CSRRSI, CSRRCI}[funct3]
		}
	case riscv.OpAmo:
		if funct3 != 2 { // 010 = word; only RV32A is supported
			return Invalid
		}
		op.Aq = (instr>>26)&1 != 0
		op.Rl = (instr>>25)&1 != 0
		switch instr >> 27 {
		case 0x02: // 00010 = LR
			if op.Rs2 != 0 {
				return Invalid
			}
			return LRW
		case 0x03: // 00011 = SC
			return SCW
		case 0x01: // 00001 = AMOSWAP
			return AMOSWAPW
		case 0x00: // 00000 = AMOADD
			return AMOADDW
		case 0x04: // 00100 = AMOXOR
			return AMOXORW
		case 0x0C: // 01100 = AMOAND
			return AMOANDW
		case 0x08: // 01000 = AMOOR
			return AMOORW
		case 0x10: // 10000 = AMOMIN
			return AMOMINW
		case 0x14: // 10100 = AMOMAX
			return AMOMAXW
		case 0x18: // 11000 = AMOMINU
			return AMOMINUW
		case 0x1C: // 11100 = AMOMAXU
			return AMOMAXUW
		}
	}
	return Invalid
}
