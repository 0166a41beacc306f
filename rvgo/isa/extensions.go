package isa

import (
	"errors"
	"fmt"
	"strings"
)

// Extensions is a set of enabled ISA extensions. The decoder only produces
// kinds whose extension is in the set.
type Extensions uint8

const (
	ExtI Extensions = 1 << iota
	ExtM
	ExtA
	ExtZicsr
	ExtZifencei

	AllExtensions = ExtI | ExtM | ExtA | ExtZicsr | ExtZifencei
)

var ErrBadISAString = errors.New("bad ISA string")

func (e Extensions) Has(x Extensions) bool {
	return e&x == x
}

// Misa returns the value of the misa CSR for an RV32 hart with these extensions.
func (e Extensions) Misa() uint32 {
	out := uint32(1) << 30 // MXL = 1: 32-bit
	if e.Has(ExtI) {
		out |= 1 << ('I' - 'A')
	}
	if e.Has(ExtM) {
		out |= 1 << ('M' - 'A')
	}
	if e.Has(ExtA) {
		out |= 1 << ('A' - 'A')
	}
	return out
}

// String renders the set in canonical ISA-string order, e.g. "rv32ima_zicsr_zifencei".
func (e Extensions) String() string {
	var sb strings.Builder
	sb.WriteString("rv32")
	if e.Has(ExtI) {
		sb.WriteByte('i')
	}
	if e.Has(ExtM) {
		sb.WriteByte('m')
	}
	if e.Has(ExtA) {
		sb.WriteByte('a')
	}
	if e.Has(ExtZicsr) {
		sb.WriteString("_zicsr")
	}
	if e.Has(ExtZifencei) {
		sb.WriteString("_zifencei")
	}
	return sb.String()
}

// ParseExtensions parses an ISA string such as "rv32ima_zicsr_zifencei".
// The base "i" is mandatory; "g" is accepted as shorthand for imafd minus the
// float extensions, which are not supported.
func ParseExtensions(s string) (Extensions, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	rest, ok := strings.CutPrefix(s, "rv32")
	if !ok {
		return 0, fmt.Errorf("%w %q: must start with rv32", ErrBadISAString, s)
	}
	parts := strings.Split(rest, "_")
	var out Extensions
	for i, c := range parts[0] {
		switch c {
		case 'i':
			out |= ExtI
		case 'g':
			out |= ExtI | ExtM | ExtA | ExtZicsr | ExtZifencei
		case 'm':
			out |= ExtM
		case 'a':
			out |= ExtA
		default:
			return 0, fmt.Errorf("%w %q: unsupported extension %q at %d", ErrBadISAString, s, c, i)
		}
	}
	for _, p := range parts[1:] {
		switch p {
		case "zicsr":
			out |= ExtZicsr
		case "zifencei":
			out |= ExtZifencei
		case "":
		default:
			return 0, fmt.Errorf("%w %q: unsupported extension %q", ErrBadISAString, s, p)
		}
	}
	if !out.Has(ExtI) {
		return 0, fmt.Errorf("%w %q: base integer ISA missing", ErrBadISAString, s)
	}
	return out, nil
}
