package riscv

import "fmt"

var abiNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegName returns the calling-convention name of integer register i.
func RegName(i uint8) string {
	if int(i) < len(abiNames) {
		return abiNames[i]
	}
	return fmt.Sprintf("x%d", i)
}

// RegIndex resolves an ABI name ("a0", "fp") or architectural name ("x10").
func RegIndex(name string) (uint8, bool) {
	if name == "fp" {
		return 8, true
	}
	for i, n := range abiNames {
		if n == name {
			return uint8(i), true
		}
	}
	var i uint8
	if _, err := fmt.Sscanf(name, "x%d", &i); err == nil && i < 32 {
		return i, true
	}
	return 0, false
}
