package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	LogLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "log level: trace, debug, info, warn, error or crit",
		Value: "info",
	}
	ConfigFlag = &cli.PathFlag{
		Name:      "config",
		Usage:     "path of the YAML machine config; the default is a single hart with 128 MiB of RAM at 0x80000000",
		TakesFile: true,
	}
	HartsFlag = &cli.IntFlag{
		Name:  "harts",
		Usage: "number of harts, overriding the machine config",
	}

	LoadELFPathFlag = &cli.PathFlag{
		Name:      "path",
		Usage:     "Path to 32-bit RISC-V ELF file",
		TakesFile: true,
		Required:  true,
	}
	LoadELFOutFlag = &cli.PathFlag{
		Name:      "out",
		Usage:     "Output path to write JSON snapshot to. Gzipped if the path ends with .gz.",
		TakesFile: true,
		Value:     "state.json",
	}
	LoadELFMetaFlag = &cli.PathFlag{
		Name:      "meta",
		Usage:     "Write metadata file, for symbol lookup during program execution. None if empty.",
		TakesFile: true,
		Value:     "meta.json",
	}

	RunInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of input JSON snapshot. Gunzipped if the path ends with .gz.",
		TakesFile: true,
		Value:     "state.json",
	}
	RunOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path of output JSON snapshot. Not written if empty. Gzipped if the path ends with .gz.",
		TakesFile: true,
		Value:     "out.json",
	}
	RunMaxStepsFlag = &cli.Uint64Flag{
		Name:  "max-steps",
		Usage: "stop every hart after this many steps, overriding the machine config; 0 runs until exit",
	}
	RunMetaFlag = &cli.PathFlag{
		Name:      "meta",
		Usage:     "path to metadata file for symbol lookup for enhanced debugging info during execution.",
		TakesFile: true,
	}
	RunInfoIntervalFlag = &cli.DurationFlag{
		Name:  "info-interval",
		Usage: "how often to log execution progress; 0 disables it",
		Value: 10 * time.Second,
	}
	RunProgressFlag = &cli.BoolFlag{
		Name:  "progress",
		Usage: "show a progress bar of retired instructions on stderr",
	}
	RunPProfCPU = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "enable pprof cpu profiling",
	}

	WitnessInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of input JSON snapshot.",
		TakesFile: true,
		Required:  true,
	}
	WitnessOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path to write the witness JSON to. Stdout if set to -. Not written if empty.",
		TakesFile: true,
	}
)
