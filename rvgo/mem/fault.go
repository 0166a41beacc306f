package mem

import (
	"fmt"

	"github.com/harts-sim/rvcore/rvgo/riscv"
)

// Access is the kind of memory access that faulted.
type Access uint8

const (
	AccessLoad Access = iota
	AccessStore
	AccessFetch
)

func (a Access) String() string {
	switch a {
	case AccessLoad:
		return "load"
	case AccessStore:
		return "store"
	case AccessFetch:
		return "fetch"
	}
	return fmt.Sprintf("access(%d)", uint8(a))
}

type FaultKind uint8

const (
	FaultMisaligned FaultKind = iota
	FaultUnmapped
	FaultReadOnly
)

func (k FaultKind) String() string {
	switch k {
	case FaultMisaligned:
		return "misaligned"
	case FaultUnmapped:
		return "unmapped"
	case FaultReadOnly:
		return "read-only"
	}
	return fmt.Sprintf("fault(%d)", uint8(k))
}

// Fault is returned by every memory access that could not be performed.
// No bytes are written when a store, SC or AMO faults.
type Fault struct {
	Access Access
	Kind   FaultKind
	Addr   uint32
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s %s at %08x", f.Kind, f.Access, f.Addr)
}

// Cause maps the fault to the synchronous exception a hart raises for it.
func (f *Fault) Cause() riscv.Cause {
	misaligned := f.Kind == FaultMisaligned
	switch f.Access {
	case AccessFetch:
		if misaligned {
			return riscv.CauseInstrAddrMisaligned
		}
		return riscv.CauseInstrAccessFault
	case AccessLoad:
		if misaligned {
			return riscv.CauseLoadAddrMisaligned
		}
		return riscv.CauseLoadAccessFault
	default:
		if misaligned {
			return riscv.CauseStoreAddrMisaligned
		}
		return riscv.CauseStoreAccessFault
	}
}
