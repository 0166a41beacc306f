package riscv

import "fmt"

// Cause is a synchronous exception code, as written to mcause.
type Cause uint32

const (
	CauseInstrAddrMisaligned Cause = 0
	CauseInstrAccessFault    Cause = 1
	CauseIllegalInstruction  Cause = 2
	CauseBreakpoint          Cause = 3
	CauseLoadAddrMisaligned  Cause = 4
	CauseLoadAccessFault     Cause = 5
	CauseStoreAddrMisaligned Cause = 6 // also store/AMO
	CauseStoreAccessFault    Cause = 7 // also store/AMO
	CauseEcallFromU          Cause = 8
	CauseEcallFromS          Cause = 9
	CauseEcallFromM          Cause = 11
)

var causeNames = map[Cause]string{
	CauseInstrAddrMisaligned: "instruction address misaligned",
	CauseInstrAccessFault:    "instruction access fault",
	CauseIllegalInstruction:  "illegal instruction",
	CauseBreakpoint:          "breakpoint",
	CauseLoadAddrMisaligned:  "load address misaligned",
	CauseLoadAccessFault:     "load access fault",
	CauseStoreAddrMisaligned: "store/AMO address misaligned",
	CauseStoreAccessFault:    "store/AMO access fault",
	CauseEcallFromU:          "environment call from U-mode",
	CauseEcallFromS:          "environment call from S-mode",
	CauseEcallFromM:          "environment call from M-mode",
}

func (c Cause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cause(%d)", uint32(c))
}

// Misaligned reports whether the cause is one of the address-misaligned exceptions.
func (c Cause) Misaligned() bool {
	return c == CauseInstrAddrMisaligned || c == CauseLoadAddrMisaligned || c == CauseStoreAddrMisaligned
}
