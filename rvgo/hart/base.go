package hart

import (
	"fmt"

	"github.com/harts-sim/rvcore/rvgo/isa"
	"github.com/harts-sim/rvcore/rvgo/mem"
	"github.com/harts-sim/rvcore/rvgo/riscv"
)

func toU32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

func alu(kind isa.Kind, a, b uint32) uint32 {
	switch kind {
	case isa.ADD, isa.ADDI:
		return a + b
	case isa.SUB:
		return a - b
	case isa.SLL, isa.SLLI:
		return a << (b & 31)
	case isa.SLT, isa.SLTI:
		return toU32(int32(a) < int32(b))
	case isa.SLTU, isa.SLTIU:
		return toU32(a < b)
	case isa.XOR, isa.XORI:
		return a ^ b
	case isa.SRL, isa.SRLI:
		return a >> (b & 31)
	case isa.SRA, isa.SRAI:
		return uint32(int32(a) >> (b & 31))
	case isa.OR, isa.ORI:
		return a | b
	case isa.AND, isa.ANDI:
		return a & b
	}
	panic(fmt.Errorf("not an alu op: %v", kind))
}

// jump links rd and transfers control. A misaligned target traps before rd is written.
func (h *Hart) jump(rd uint8, target uint32) Conclusion {
	if target%riscv.InstrSize != 0 {
		return Trap(riscv.CauseInstrAddrMisaligned, target)
	}
	h.setReg(rd, h.PC+riscv.InstrSize)
	return JumpTo(target)
}

func (h *Hart) branch(op isa.Operation) Conclusion {
	a, b := h.x[op.Rs1], h.x[op.Rs2]
	var taken bool
	switch op.Kind {
	case isa.BEQ: // 000 = BEQ
		taken = a == b
	case isa.BNE: // 001 = BNE
		taken = a != b
	case isa.BLT: // 100 = BLT
		taken = int32(a) < int32(b)
	case isa.BGE: // 101 = BGE
		taken = int32(a) >= int32(b)
	case isa.BLTU: // 110 = BLTU
		taken = a < b
	case isa.BGEU: // 111 = BGEU
		taken = a >= b
	}
	if !taken {
		return Continue()
	}
	target := h.PC + uint32(op.Imm)
	if target%riscv.InstrSize != 0 {
		return Trap(riscv.CauseInstrAddrMisaligned, target)
	}
	return JumpTo(target)
}

func loadWidth(kind isa.Kind) (mem.Width, bool) {
	switch kind {
	case isa.LB:
		return mem.Byte, true
	case isa.LH:
		return mem.Half, true
	case isa.LW:
		return mem.Word, false
	case isa.LBU:
		return mem.Byte, false
	default: // LHU
		return mem.Half, false
	}
}

func (h *Hart) load(op isa.Operation) Conclusion {
	width, signed := loadWidth(op.Kind)
	v, err := h.bus.Load(h.x[op.Rs1]+uint32(op.Imm), width, signed)
	if err != nil {
		return Fault(err)
	}
	h.setReg(op.Rd, v)
	return Continue()
}

func (h *Hart) store(op isa.Operation) Conclusion {
	width := mem.Word
	switch op.Kind {
	case isa.SB:
		width = mem.Byte
	case isa.SH:
		width = mem.Half
	}
	if err := h.bus.Store(h.x[op.Rs1]+uint32(op.Imm), width, h.x[op.Rs2]); err != nil {
		return Fault(err)
	}
	return Continue()
}
