package hart

import (
	"errors"
	"fmt"

	"github.com/harts-sim/rvcore/rvgo/mem"
	"github.com/harts-sim/rvcore/rvgo/riscv"
)

type ConclusionKind uint8

const (
	// Continued: the instruction completed, PC moves to the next instruction.
	Continued ConclusionKind = iota
	// Jumped: control moves to Target.
	Jumped
	// Trapped: the instruction raised a synchronous exception.
	Trapped
	// Faulted: the memory unit refused an access. Err holds the *mem.Fault.
	Faulted
)

func (k ConclusionKind) String() string {
	switch k {
	case Continued:
		return "continued"
	case Jumped:
		return "jumped"
	case Trapped:
		return "trapped"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("conclusion(%d)", uint8(k))
}

// Conclusion is the outcome of executing exactly one instruction.
type Conclusion struct {
	Kind   ConclusionKind
	Target uint32
	Cause  riscv.Cause
	Tval   uint32
	Err    error
}

func Continue() Conclusion {
	return Conclusion{Kind: Continued}
}

func JumpTo(target uint32) Conclusion {
	return Conclusion{Kind: Jumped, Target: target}
}

func Trap(cause riscv.Cause, tval uint32) Conclusion {
	return Conclusion{Kind: Trapped, Cause: cause, Tval: tval}
}

// Fault converts an error from the bus into a Faulted conclusion.
// Anything other than a *mem.Fault is a bus defect.
func Fault(err error) Conclusion {
	var f *mem.Fault
	if !errors.As(err, &f) {
		panic(fmt.Errorf("unexpected bus error: %w", err))
	}
	return Conclusion{Kind: Faulted, Cause: f.Cause(), Tval: f.Addr, Err: err}
}

func (c Conclusion) IsTrap() bool {
	return c.Kind == Trapped || c.Kind == Faulted
}

func (c Conclusion) String() string {
	switch c.Kind {
	case Jumped:
		return fmt.Sprintf("jumped to %08x", c.Target)
	case Trapped:
		return fmt.Sprintf("trapped: %s (tval %08x)", c.Cause, c.Tval)
	case Faulted:
		return fmt.Sprintf("faulted: %s: %v", c.Cause, c.Err)
	}
	return c.Kind.String()
}
