package riscv

// CSR addresses of the machine-level and unprivileged counter registers.
const (
	CSRCycle    = 0xC00
	CSRTime     = 0xC01
	CSRInstret  = 0xC02
	CSRCycleH   = 0xC80
	CSRTimeH    = 0xC81
	CSRInstretH = 0xC82

	CSRMvendorID = 0xF11
	CSRMarchID   = 0xF12
	CSRMimpID    = 0xF13
	CSRMhartID   = 0xF14

	CSRMstatus  = 0x300
	CSRMisa     = 0x301
	CSRMie      = 0x304
	CSRMtvec    = 0x305
	CSRMscratch = 0x340
	CSRMepc     = 0x341
	CSRMcause   = 0x342
	CSRMtval    = 0x343
	CSRMip      = 0x344

	CSRMcycle    = 0xB00
	CSRMinstret  = 0xB02
	CSRMcycleH   = 0xB80
	CSRMinstretH = 0xB82
)

// CSRReadOnly reports whether the address falls in a read-only CSR range (bits 11:10 = 0b11).
func CSRReadOnly(addr uint16) bool {
	return (addr>>10)&3 == 3
}
