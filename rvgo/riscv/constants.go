package riscv

const (
	// host calls, routed by the machine driver when a hart concludes with an ecall trap
	SysWrite     = 64
	SysExit      = 93
	SysExitGroup = 94

	FdStdin  = 0
	FdStdout = 1
	FdStderr = 2

	// argument and return registers of the host-call ABI
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA7 = 17
	RegSP = 2

	InstrSize = 4
)

// Major opcodes (bits 6:0) of the uncompressed encoding.
const (
	OpLoad     = 0x03 // 000_0011
	OpMiscMem  = 0x0F // 000_1111
	OpImm      = 0x13 // 001_0011
	OpAuipc    = 0x17 // 001_0111
	OpStore    = 0x23 // 010_0011
	OpAmo      = 0x2F // 010_1111
	OpReg      = 0x33 // 011_0011
	OpLui      = 0x37 // 011_0111
	OpBranch   = 0x63 // 110_0011
	OpJalr     = 0x67 // 110_0111
	OpJal      = 0x6F // 110_1111
	OpSystem   = 0x73 // 111_0011
	opcodeMask = 0x7F
)

func Opcode(instr uint32) uint32 {
	return instr & opcodeMask
}
