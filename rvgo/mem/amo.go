package mem

import "fmt"

// AMOOp selects how AtomicRMW combines the old memory value with the operand.
type AMOOp uint8

const (
	AMOSwap AMOOp = iota
	AMOAdd
	AMOXor
	AMOAnd
	AMOOr
	AMOMin
	AMOMax
	AMOMinU
	AMOMaxU
)

var amoNames = [...]string{"swap", "add", "xor", "and", "or", "min", "max", "minu", "maxu"}

func (op AMOOp) Valid() bool {
	return op <= AMOMaxU
}

func (op AMOOp) String() string {
	if op.Valid() {
		return amoNames[op]
	}
	return fmt.Sprintf("amo(%d)", uint8(op))
}

// Apply returns the value an AMO writes back, given the old memory value v
// and the register operand.
func (op AMOOp) Apply(v uint32, operand uint32) uint32 {
	switch op {
	case AMOSwap:
		return operand
	case AMOAdd:
		return v + operand
	case AMOXor:
		return v ^ operand
	case AMOAnd:
		return v & operand
	case AMOOr:
		return v | operand
	case AMOMin:
		if int32(operand) < int32(v) {
			return operand
		}
		return v
	case AMOMax:
		if int32(operand) > int32(v) {
			return operand
		}
		return v
	case AMOMinU:
		if operand < v {
			return operand
		}
		return v
	case AMOMaxU:
		if operand > v {
			return operand
		}
		return v
	default:
		panic(fmt.Errorf("unrecognized mem op: %d", op))
	}
}
