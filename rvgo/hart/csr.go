package hart

import (
	"errors"
	"fmt"

	"github.com/harts-sim/rvcore/rvgo/isa"
	"github.com/harts-sim/rvcore/rvgo/riscv"
)

var (
	ErrCSRReadOnly = errors.New("csr is read-only")
	ErrCSRNotFound = errors.New("csr does not exist")
)

// CSRs is the control and status register file of a hart.
type CSRs interface {
	Read(addr uint16) (uint32, error)
	Write(addr uint16, value uint32) error
	// Retire advances the cycle and instret counters by one instruction.
	Retire()
}

// MachineCSRState is the writable part of the machine-mode CSR file.
type MachineCSRState struct {
	Mstatus  uint32 `json:"mstatus"`
	Mie      uint32 `json:"mie"`
	Mtvec    uint32 `json:"mtvec"`
	Mscratch uint32 `json:"mscratch"`
	Mepc     uint32 `json:"mepc"`
	Mcause   uint32 `json:"mcause"`
	Mtval    uint32 `json:"mtval"`
	Mip      uint32 `json:"mip"`
	Cycle    uint64 `json:"cycle"`
	Instret  uint64 `json:"instret"`
}

// MachineCSRs implements the CSRs of a machine-mode only hart. There is no
// real-time clock: time reads as cycle.
type MachineCSRs struct {
	MachineCSRState
	hartID uint32
	misa   uint32
}

var _ CSRs = (*MachineCSRs)(nil)

func NewMachineCSRs(hartID int, ext isa.Extensions) *MachineCSRs {
	return &MachineCSRs{hartID: uint32(hartID), misa: ext.Misa()}
}

func (c *MachineCSRs) Read(addr uint16) (uint32, error) {
	switch addr {
	case riscv.CSRMstatus:
		return c.Mstatus, nil
	case riscv.CSRMisa:
		return c.misa, nil
	case riscv.CSRMie:
		return c.Mie, nil
	case riscv.CSRMtvec:
		return c.Mtvec, nil
	case riscv.CSRMscratch:
		return c.Mscratch, nil
	case riscv.CSRMepc:
		return c.Mepc, nil
	case riscv.CSRMcause:
		return c.Mcause, nil
	case riscv.CSRMtval:
		return c.Mtval, nil
	case riscv.CSRMip:
		return c.Mip, nil
	case riscv.CSRMcycle, riscv.CSRCycle, riscv.CSRTime:
		return uint32(c.Cycle), nil
	case riscv.CSRMcycleH, riscv.CSRCycleH, riscv.CSRTimeH:
		return uint32(c.Cycle >> 32), nil
	case riscv.CSRMinstret, riscv.CSRInstret:
		return uint32(c.Instret), nil
	case riscv.CSRMinstretH, riscv.CSRInstretH:
		return uint32(c.Instret >> 32), nil
	case riscv.CSRMvendorID, riscv.CSRMarchID, riscv.CSRMimpID:
		return 0, nil
	case riscv.CSRMhartID:
		return c.hartID, nil
	}
	return 0, fmt.Errorf("%w: %03x", ErrCSRNotFound, addr)
}

func (c *MachineCSRs) Write(addr uint16, value uint32) error {
	if riscv.CSRReadOnly(addr) {
		return fmt.Errorf("%w: %03x", ErrCSRReadOnly, addr)
	}
	switch addr {
	case riscv.CSRMstatus:
		c.Mstatus = value
	case riscv.CSRMisa:
		// WARL, the extension set is fixed
	case riscv.CSRMie:
		c.Mie = value
	case riscv.CSRMtvec:
		c.Mtvec = value
	case riscv.CSRMscratch:
		c.Mscratch = value
	case riscv.CSRMepc:
		c.Mepc = value &^ 3
	case riscv.CSRMcause:
		c.Mcause = value
	case riscv.CSRMtval:
		c.Mtval = value
	case riscv.CSRMip:
		c.Mip = value
	case riscv.CSRMcycle:
		c.Cycle = c.Cycle&^0xFFFF_FFFF | uint64(value)
	case riscv.CSRMcycleH:
		c.Cycle = c.Cycle&0xFFFF_FFFF | uint64(value)<<32
	case riscv.CSRMinstret:
		c.Instret = c.Instret&^0xFFFF_FFFF | uint64(value)
	case riscv.CSRMinstretH:
		c.Instret = c.Instret&0xFFFF_FFFF | uint64(value)<<32
	default:
		return fmt.Errorf("%w: %03x", ErrCSRNotFound, addr)
	}
	return nil
}

func (c *MachineCSRs) Retire() {
	c.Cycle++
	c.Instret++
}

// csrOp executes the Zicsr instructions. The read of the old value and the
// write of the new one happen as one step; a refused access leaves both the
// CSR and rd untouched.
func (h *Hart) csrOp(op isa.Operation) Conclusion {
	src, writes := h.x[op.Rs1], op.Rs1 != 0
	if op.Kind >= isa.CSRRWI {
		src, writes = uint32(op.Imm), op.Imm != 0
	}
	switch op.Kind {
	case isa.CSRRW, isa.CSRRWI:
		var old uint32
		if op.Rd != 0 {
			v, err := h.csr.Read(op.CSR)
			if err != nil {
				return Trap(riscv.CauseIllegalInstruction, op.Raw)
			}
			old = v
		}
		if err := h.csr.Write(op.CSR, src); err != nil {
			return Trap(riscv.CauseIllegalInstruction, op.Raw)
		}
		h.setReg(op.Rd, old)
	default:
		old, err := h.csr.Read(op.CSR)
		if err != nil {
			return Trap(riscv.CauseIllegalInstruction, op.Raw)
		}
		// rs1 = x0 and uimm = 0 are pure reads
		if writes {
			v := old | src
			if op.Kind == isa.CSRRC || op.Kind == isa.CSRRCI {
				v = old &^ src
			}
			if err := h.csr.Write(op.CSR, v); err != nil {
				return Trap(riscv.CauseIllegalInstruction, op.Raw)
			}
		}
		h.setReg(op.Rd, old)
	}
	return Continue()
}
