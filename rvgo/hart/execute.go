package hart

import (
	"fmt"

	"github.com/harts-sim/rvcore/rvgo/isa"
	"github.com/harts-sim/rvcore/rvgo/riscv"
)

// Execute fetches, decodes and executes the instruction at PC.
func (h *Hart) Execute() Conclusion {
	raw, err := h.bus.Fetch(h.PC)
	if err != nil {
		h.dropReservation()
		return Fault(err)
	}
	return h.ExecuteOp(isa.Decode(raw, h.ext))
}

// ExecuteOp executes one decoded operation and applies its conclusion to PC:
// Continued moves to the next instruction, Jumped moves to the target, and
// a trap leaves PC on the trapping instruction and drops the reservation.
//
// Operations are expected to come from isa.Decode with the hart's own
// extensions; anything else is a programming error and panics.
func (h *Hart) ExecuteOp(op isa.Operation) Conclusion {
	if op.Kind >= isa.KindCount || !h.ext.Has(op.Kind.Extension()) {
		panic(fmt.Errorf("hart %d: %v is not enabled (%v)", h.ID, op.Kind, h.ext))
	}
	c := h.dispatch(op)
	switch c.Kind {
	case Continued:
		h.PC += riscv.InstrSize
		h.csr.Retire()
	case Jumped:
		h.PC = c.Target
		h.csr.Retire()
	default:
		h.dropReservation()
	}
	return c
}

func (h *Hart) dispatch(op isa.Operation) Conclusion {
	switch op.Kind {
	case isa.Invalid:
		return Trap(riscv.CauseIllegalInstruction, op.Raw)
	case isa.LUI:
		h.setReg(op.Rd, uint32(op.Imm))
		return Continue()
	case isa.AUIPC:
		h.setReg(op.Rd, h.PC+uint32(op.Imm))
		return Continue()
	case isa.JAL:
		return h.jump(op.Rd, h.PC+uint32(op.Imm))
	case isa.JALR:
		// target is computed before rd is written, rd may equal rs1
		return h.jump(op.Rd, (h.x[op.Rs1]+uint32(op.Imm))&^1)
	case isa.BEQ, isa.BNE, isa.BLT, isa.BGE, isa.BLTU, isa.BGEU:
		return h.branch(op)
	case isa.LB, isa.LH, isa.LW, isa.LBU, isa.LHU:
		return h.load(op)
	case isa.SB, isa.SH, isa.SW:
		return h.store(op)
	case isa.ADDI, isa.SLTI, isa.SLTIU, isa.XORI, isa.ORI, isa.ANDI, isa.SLLI, isa.SRLI, isa.SRAI:
		h.setReg(op.Rd, alu(op.Kind, h.x[op.Rs1], uint32(op.Imm)))
		return Continue()
	case isa.ADD, isa.SUB, isa.SLL, isa.SLT, isa.SLTU, isa.XOR, isa.SRL, isa.SRA, isa.OR, isa.AND:
		h.setReg(op.Rd, alu(op.Kind, h.x[op.Rs1], h.x[op.Rs2]))
		return Continue()
	case isa.FENCE, isa.FENCEI:
		return h.fence(op)
	case isa.ECALL:
		return Trap(riscv.CauseEcallFromM, 0)
	case isa.EBREAK:
		return Trap(riscv.CauseBreakpoint, h.PC)
	case isa.CSRRW, isa.CSRRS, isa.CSRRC, isa.CSRRWI, isa.CSRRSI, isa.CSRRCI:
		return h.csrOp(op)
	case isa.MUL, isa.MULH, isa.MULHSU, isa.MULHU, isa.DIV, isa.DIVU, isa.REM, isa.REMU:
		h.setReg(op.Rd, mulDiv(op.Kind, h.x[op.Rs1], h.x[op.Rs2]))
		return Continue()
	case isa.LRW:
		return h.loadReserved(op)
	case isa.SCW:
		return h.storeConditional(op)
	case isa.AMOSWAPW, isa.AMOADDW, isa.AMOXORW, isa.AMOANDW, isa.AMOORW,
		isa.AMOMINW, isa.AMOMAXW, isa.AMOMINUW, isa.AMOMAXUW:
		return h.amo(op)
	}
	panic(fmt.Errorf("hart %d: no handler for %v", h.ID, op.Kind))
}

// fence needs no work: memory is sequentially consistent and there is no
// instruction cache to synchronize.
func (h *Hart) fence(op isa.Operation) Conclusion {
	return Continue()
}
