package cmd

import (
	"debug/elf"
	"errors"
	"fmt"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"
	"github.com/urfave/cli/v2"

	"github.com/harts-sim/rvcore/rvgo/machine"
)

// Metadata is what the run command needs from the ELF besides the snapshot.
type Metadata struct {
	Symbols machine.SortedSymbols `json:"symbols"`
}

func (m *Metadata) LookupSymbol(addr uint32) string {
	return m.Symbols.LookupSymbol(addr)
}

// machineConfig is the config file, or the defaults, with the flag overrides applied.
func machineConfig(ctx *cli.Context) (machine.Config, error) {
	cfg := machine.DefaultConfig()
	if path := ctx.Path(ConfigFlag.Name); path != "" {
		c, err := machine.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if ctx.IsSet(HartsFlag.Name) {
		cfg.Harts = ctx.Int(HartsFlag.Name)
	}
	return cfg, cfg.Check()
}

func LoadELF(ctx *cli.Context) error {
	l, err := cliLogger(ctx)
	if err != nil {
		return err
	}
	cfg, err := machineConfig(ctx)
	if err != nil {
		return err
	}
	elfPath := ctx.Path(LoadELFPathFlag.Name)
	elfProgram, err := elf.Open(elfPath)
	if err != nil {
		return fmt.Errorf("failed to open ELF file %q: %w", elfPath, err)
	}
	defer elfProgram.Close()

	m, err := machine.New(cfg, l)
	if err != nil {
		return err
	}
	if err := m.LoadELF(elfProgram); err != nil {
		return fmt.Errorf("failed to load ELF data into machine: %w", err)
	}
	l.Info("loaded program", "entry", HexU32(elfProgram.Entry), "harts", cfg.Harts,
		"extensions", cfg.Extensions, "pages", m.Memory.PageCount(), "mem", m.Memory.Usage())

	if metaPath := ctx.Path(LoadELFMetaFlag.Name); metaPath != "" {
		syms, err := machine.Symbols(elfProgram)
		if errors.Is(err, elf.ErrNoSymbols) {
			l.Warn("ELF has no symbol table")
		} else if err != nil {
			return err
		}
		if err := jsonutil.WriteJSON(metaPath, &Metadata{Symbols: syms}, machine.OutFilePerm); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
	}
	return machine.WriteSnapshot(ctx.Path(LoadELFOutFlag.Name), m.Snapshot())
}

var LoadELFCommand = &cli.Command{
	Name:        "load-elf",
	Usage:       "Load ELF file into a machine JSON snapshot",
	Description: "Load ELF file into a machine JSON snapshot, with every hart starting at the entry point",
	Action:      LoadELF,
	Flags: []cli.Flag{
		LoadELFPathFlag,
		LoadELFOutFlag,
		LoadELFMetaFlag,
		ConfigFlag,
		HartsFlag,
		LogLevelFlag,
	},
}
