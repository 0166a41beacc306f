package hart

import (
	"fmt"

	"github.com/harts-sim/rvcore/rvgo/isa"
	"github.com/harts-sim/rvcore/rvgo/mem"
	"github.com/harts-sim/rvcore/rvgo/riscv"
)

func amoOp(kind isa.Kind) mem.AMOOp {
	switch kind {
	case isa.AMOSWAPW:
		return mem.AMOSwap
	case isa.AMOADDW:
		return mem.AMOAdd
	case isa.AMOXORW:
		return mem.AMOXor
	case isa.AMOANDW:
		return mem.AMOAnd
	case isa.AMOORW:
		return mem.AMOOr
	case isa.AMOMINW:
		return mem.AMOMin
	case isa.AMOMAXW:
		return mem.AMOMax
	case isa.AMOMINUW:
		return mem.AMOMinU
	case isa.AMOMAXUW:
		return mem.AMOMaxU
	}
	panic(fmt.Errorf("not an AMO: %v", kind))
}

// aq/rl need no handling below: every memory write path is serialized by the
// memory unit, so all accesses are already sequentially consistent.

func (h *Hart) loadReserved(op isa.Operation) Conclusion {
	addr := h.x[op.Rs1]
	if addr%mem.GranuleSize != 0 {
		return Trap(riscv.CauseLoadAddrMisaligned, addr)
	}
	// a hart holds at most one reservation
	h.dropReservation()
	v, err := h.bus.LoadReserved(h.ID, addr)
	if err != nil {
		return Fault(err)
	}
	h.reservation = &mem.Reservation{Addr: addr, Size: mem.GranuleSize}
	h.setReg(op.Rd, v)
	return Continue()
}

// storeConditional writes rd = 0 on success and 1 on failure. The hart's
// reservation is gone afterwards either way.
func (h *Hart) storeConditional(op isa.Operation) Conclusion {
	addr := h.x[op.Rs1]
	if addr%mem.GranuleSize != 0 {
		return Trap(riscv.CauseStoreAddrMisaligned, addr)
	}
	value := h.x[op.Rs2]
	if res := h.reservation; res == nil || res.Addr != addr {
		h.dropReservation()
		h.setReg(op.Rd, 1)
		return Continue()
	}
	ok, err := h.bus.StoreConditional(h.ID, addr, value)
	if ok {
		// the store already released every holder of the granule
		h.reservation = nil
	} else {
		h.dropReservation()
	}
	if err != nil {
		return Fault(err)
	}
	h.setReg(op.Rd, toU32(!ok))
	return Continue()
}

func (h *Hart) amo(op isa.Operation) Conclusion {
	addr := h.x[op.Rs1]
	if addr%mem.GranuleSize != 0 {
		return Trap(riscv.CauseStoreAddrMisaligned, addr)
	}
	old, err := h.bus.AtomicRMW(amoOp(op.Kind), addr, h.x[op.Rs2])
	if err != nil {
		return Fault(err)
	}
	h.setReg(op.Rd, old)
	return Continue()
}
