package machine

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/harts-sim/rvcore/rvgo/riscv"
)

var ErrBadELF = errors.New("unsupported ELF")

// LoadELF copies the loadable segments of f into memory and points every
// hart at the entry point. Hart i starts with a0 = i and a stack pointer
// StackSize*i bytes below the end of the highest memory region.
func (m *Machine) LoadELF(f *elf.File) error {
	if f.Machine != elf.EM_RISCV {
		return fmt.Errorf("%w: ELF is not RISC-V, but got %q", ErrBadELF, f.Machine.String())
	}
	if f.Class != elf.ELFCLASS32 {
		return fmt.Errorf("%w: expected a 32-bit ELF, but got %q", ErrBadELF, f.Class.String())
	}

	for i, prog := range f.Progs {
		if prog.Type == 0x70000003 {
			// RISC-V reuses the MIPS_ABIFLAGS program type to type its segment with the `.riscv.attributes` section.
			// See: https://github.com/riscv-non-isa/riscv-elf-psabi-doc/blob/master/riscv-elf.adoc#attributes
			// This section has 0 mem size because it is not loaded into memory.
			continue
		}
		if prog.Type != elf.PT_LOAD {
			if prog.Filesz != prog.Memsz {
				return fmt.Errorf("program segment %d has different file size (%d) than mem size (%d): filling for non PT_LOAD segments is not supported", i, prog.Filesz, prog.Memsz)
			}
			continue
		}
		if prog.Filesz > prog.Memsz {
			return fmt.Errorf("invalid PT_LOAD program segment %d, file size (%d) > mem size (%d)", i, prog.Filesz, prog.Memsz)
		}
		if prog.Vaddr+prog.Memsz > 1<<32 {
			return fmt.Errorf("%w: program segment %d at %x exceeds the 32-bit address space", ErrBadELF, i, prog.Vaddr)
		}

		r := io.Reader(io.NewSectionReader(prog, 0, int64(prog.Filesz)))
		if prog.Filesz < prog.Memsz {
			r = io.MultiReader(r, bytes.NewReader(make([]byte, prog.Memsz-prog.Filesz)))
		}
		if err := m.Memory.SetMemoryRange(uint32(prog.Vaddr), r); err != nil {
			return fmt.Errorf("failed to read program segment %d: %w", i, err)
		}
	}

	top := uint32(stackRegion(m.Memory.Regions()).End())
	for _, h := range m.harts {
		h.PC = uint32(f.Entry)
		h.SetReg(riscv.RegA0, uint32(h.ID))
		h.SetReg(riscv.RegSP, top-uint32(h.ID)*m.cfg.StackSize)
	}
	return nil
}

type SortedSymbols []elf.Symbol

// FindSymbol finds the symbol that intersects with the given addr, or nil if none exists
func (s SortedSymbols) FindSymbol(addr uint32) elf.Symbol {
	// find first symbol with higher start. Or n if no such symbol exists
	i := sort.Search(len(s), func(i int) bool {
		return s[i].Value > uint64(addr)
	})
	if i == 0 {
		return elf.Symbol{Name: "!start", Value: 0}
	}
	out := &s[i-1]
	if out.Value+out.Size < uint64(addr) { // addr may be pointing to a gap between symbols
		return elf.Symbol{Name: "!gap", Value: uint64(addr)}
	}
	return *out
}

func (s SortedSymbols) LookupSymbol(addr uint32) string {
	if len(s) == 0 {
		return "!unknown"
	}
	return s.FindSymbol(addr).Name
}

func Symbols(f *elf.File) (SortedSymbols, error) {
	symbols, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols data: %w", err)
	}
	// not every ELF has sorted symbols
	out := make(SortedSymbols, len(symbols))
	copy(out, symbols)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Value < out[j].Value
	})
	return out, nil
}
