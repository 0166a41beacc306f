package hart

import (
	"fmt"
	"math"

	"github.com/harts-sim/rvcore/rvgo/isa"
)

// mulDiv implements the M extension. Division never traps: dividing by zero
// yields all ones (remainder: the dividend), and MinInt32 / -1 overflows to
// MinInt32 with remainder 0.
func mulDiv(kind isa.Kind, a, b uint32) uint32 {
	switch kind {
	case isa.MUL: // 000 = MUL
		return a * b
	case isa.MULH: // 001 = MULH
		return uint32(uint64(int64(int32(a))*int64(int32(b))) >> 32)
	case isa.MULHSU: // 010 = MULHSU
		return uint32(uint64(int64(int32(a))*int64(b)) >> 32)
	case isa.MULHU: // 011 = MULHU
		return uint32((uint64(a) * uint64(b)) >> 32)
	case isa.DIV: // 100 = DIV
		if b == 0 {
			return math.MaxUint32
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return a
		}
		return uint32(int32(a) / int32(b))
	case isa.DIVU: // 101 = DIVU
		if b == 0 {
			return math.MaxUint32
		}
		return a / b
	case isa.REM: // 110 = REM
		if b == 0 {
			return a
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return 0
		}
		return uint32(int32(a) % int32(b))
	case isa.REMU: // 111 = REMU
		if b == 0 {
			return a
		}
		return a % b
	}
	panic(fmt.Errorf("not an M extension op: %v", kind))
}
