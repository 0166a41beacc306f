package hart

import (
	"encoding/binary"
	"fmt"

	"github.com/harts-sim/rvcore/rvgo/isa"
	"github.com/harts-sim/rvcore/rvgo/mem"
)

// Bus is the view of shared memory a hart executes against.
// *mem.Memory implements it.
type Bus interface {
	Fetch(pc uint32) (uint32, error)
	Load(addr uint32, width mem.Width, signed bool) (uint32, error)
	Store(addr uint32, width mem.Width, value uint32) error
	LoadReserved(hart int, addr uint32) (uint32, error)
	StoreConditional(hart int, addr uint32, value uint32) (bool, error)
	AtomicRMW(op mem.AMOOp, addr uint32, value uint32) (uint32, error)
	CancelReservation(hart int, addr uint32)
}

var _ Bus = (*mem.Memory)(nil)

// Hart is one hardware thread. A hart is not safe for concurrent use: it must
// be driven by a single goroutine. Harts share nothing but their Bus.
type Hart struct {
	ID int
	PC uint32

	x   [32]uint32
	csr CSRs
	ext isa.Extensions
	bus Bus

	// nil when no reservation is held
	reservation *mem.Reservation
}

func New(id int, bus Bus, ext isa.Extensions) *Hart {
	return NewWithCSRs(id, bus, ext, NewMachineCSRs(id, ext))
}

func NewWithCSRs(id int, bus Bus, ext isa.Extensions, csrs CSRs) *Hart {
	return &Hart{ID: id, csr: csrs, ext: ext | isa.ExtI, bus: bus}
}

func (h *Hart) Reg(i uint8) uint32 {
	return h.x[i&31]
}

// SetReg writes a general purpose register. Writes to x0 are dropped.
func (h *Hart) SetReg(i uint8, v uint32) {
	h.setReg(i&31, v)
}

func (h *Hart) setReg(i uint8, v uint32) {
	if i != 0 {
		h.x[i] = v
	}
}

func (h *Hart) Extensions() isa.Extensions {
	return h.ext
}

func (h *Hart) CSRs() CSRs {
	return h.csr
}

// Reservation returns the address range reserved by the last LR, if it is still held.
func (h *Hart) Reservation() *mem.Reservation {
	return h.reservation
}

func (h *Hart) dropReservation() {
	if h.reservation != nil {
		h.bus.CancelReservation(h.ID, h.reservation.Addr)
		h.reservation = nil
	}
}

// State is the architectural state of a hart, as saved in snapshots.
type State struct {
	ID         int              `json:"id"`
	PC         uint32           `json:"pc"`
	Registers  [32]uint32       `json:"registers"`
	Extensions string           `json:"extensions"`
	CSR        *MachineCSRState `json:"csr,omitempty"`
}

func (h *Hart) State() State {
	s := State{ID: h.ID, PC: h.PC, Registers: h.x, Extensions: h.ext.String()}
	if m, ok := h.csr.(*MachineCSRs); ok {
		cs := m.MachineCSRState
		s.CSR = &cs
	}
	return s
}

// Restore loads a saved state. Any reservation held by the hart is dropped.
func (h *Hart) Restore(s State) error {
	ext, err := isa.ParseExtensions(s.Extensions)
	if err != nil {
		return err
	}
	h.dropReservation()
	h.ID = s.ID
	h.PC = s.PC
	h.x = s.Registers
	h.x[0] = 0
	h.ext = ext
	if m, ok := h.csr.(*MachineCSRs); ok {
		*m = *NewMachineCSRs(s.ID, ext)
		if s.CSR != nil {
			m.MachineCSRState = *s.CSR
		}
	}
	return nil
}

// EncodeWitness returns the canonical binary encoding of the state.
// It fails if the extension string does not parse.
func (s *State) EncodeWitness() ([]byte, error) {
	ext, err := isa.ParseExtensions(s.Extensions)
	if err != nil {
		return nil, fmt.Errorf("hart %d: %w", s.ID, err)
	}
	out := make([]byte, 0, 4+4+32*4+1+10*8)
	out = binary.BigEndian.AppendUint32(out, uint32(s.ID))
	out = binary.BigEndian.AppendUint32(out, s.PC)
	for _, r := range s.Registers {
		out = binary.BigEndian.AppendUint32(out, r)
	}
	out = append(out, byte(ext))
	if c := s.CSR; c != nil {
		for _, v := range []uint32{c.Mstatus, c.Mie, c.Mtvec, c.Mscratch, c.Mepc, c.Mcause, c.Mtval, c.Mip} {
			out = binary.BigEndian.AppendUint32(out, v)
		}
		out = binary.BigEndian.AppendUint64(out, c.Cycle)
		out = binary.BigEndian.AppendUint64(out, c.Instret)
	}
	return out, nil
}
