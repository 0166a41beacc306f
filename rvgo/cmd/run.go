package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/profile"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/harts-sim/rvcore/rvgo/machine"
)

func Run(ctx *cli.Context) error {
	if ctx.Bool(RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}
	l, err := cliLogger(ctx)
	if err != nil {
		return err
	}

	snap, err := machine.LoadSnapshot(ctx.Path(RunInputFlag.Name))
	if err != nil {
		return err
	}
	m, err := machine.Restore(snap, l)
	if err != nil {
		return fmt.Errorf("invalid input snapshot: %w", err)
	}
	outLog := &LoggingWriter{Name: "program std-out", Log: l}
	errLog := &LoggingWriter{Name: "program std-err", Log: l}
	m.SetOutput(outLog, errLog)

	var meta *Metadata
	if metaPath := ctx.Path(RunMetaFlag.Name); metaPath == "" {
		l.Info("no metadata file specified, defaulting to empty metadata")
		meta = &Metadata{Symbols: nil} // provide empty metadata by default
	} else {
		if md, err := jsonutil.LoadJSON[Metadata](metaPath); err != nil {
			return fmt.Errorf("failed to load metadata: %w", err)
		} else {
			meta = md
		}
	}

	maxSteps := m.Config().MaxSteps
	if ctx.IsSet(RunMaxStepsFlag.Name) {
		maxSteps = ctx.Uint64(RunMaxStepsFlag.Name)
	}

	var bar *progressbar.ProgressBar
	if ctx.Bool(RunProgressFlag.Name) {
		total := int64(-1)
		if maxSteps != 0 {
			total = int64(maxSteps) * int64(len(m.Harts()))
		}
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(ctx.App.ErrWriter),
			progressbar.OptionSetDescription("retired"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("instr"),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}

	start := time.Now()
	startRetired := m.Retired()
	monitorCtx, stopMonitor := context.WithCancel(ctx.Context)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor(monitorCtx, l, m, bar, ctx.Duration(RunInfoIntervalFlag.Name), start, startRetired)
	}()

	runErr := m.Run(ctx.Context, maxSteps)
	stopMonitor()
	wg.Wait()
	if bar != nil {
		_ = bar.Set64(int64(m.Retired() - startRetired))
		_ = bar.Finish()
	}

	delta := time.Since(start)
	l.Info("run stopped",
		"retired", m.Retired()-startRetired,
		"ips", float64(m.Retired()-startRetired)/delta.Seconds(),
		"pages", m.Memory.PageCount(),
		"mem", m.Memory.Usage(),
	)
	logHarts(l, m, meta)

	var trap *machine.TrapError
	if errors.As(runErr, &trap) {
		l.Error("unhandled trap", "hart", trap.Hart, "pc", HexU32(trap.PC), "cause", trap.Cause.String(),
			"tval", HexU32(trap.Tval), "name", meta.LookupSymbol(trap.PC))
	}
	if m.Exited() {
		l.Info("program exited", "code", m.ExitCode(), "status", m.Snapshot().VMStatus())
	}

	if out := ctx.Path(RunOutputFlag.Name); out != "" {
		if err := machine.WriteSnapshot(out, m.Snapshot()); err != nil {
			return fmt.Errorf("failed to write state output: %w", err)
		}
	}
	return runErr
}

// monitor reports progress until ctx is done. It only reads what is safe
// to read while harts run.
func monitor(ctx context.Context, l log.Logger, m *machine.Machine, bar *progressbar.ProgressBar,
	infoInterval time.Duration, start time.Time, startRetired uint64) {
	var info <-chan time.Time
	if infoInterval > 0 {
		t := time.NewTicker(infoInterval)
		defer t.Stop()
		info = t.C
	}
	var progress <-chan time.Time
	if bar != nil {
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		progress = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-info:
			retired := m.Retired() - startRetired
			l.Info("processing",
				"retired", retired,
				"ips", float64(retired)/time.Since(start).Seconds(),
				"pages", m.Memory.PageCount(),
				"mem", m.Memory.Usage(),
			)
		case <-progress:
			_ = bar.Set64(int64(m.Retired() - startRetired))
		}
	}
}

func logHarts(l log.Logger, m *machine.Machine, meta *Metadata) {
	for i, h := range m.Harts() {
		status := m.Status(i)
		insn, err := m.Memory.Fetch(h.PC)
		if err != nil {
			l.Debug("failed to fetch instruction", "hart", h.ID, "pc", HexU32(h.PC), "err", err)
		}
		l.Info("hart",
			"id", h.ID,
			"pc", HexU32(h.PC),
			"insn", HexU32(insn),
			"name", meta.LookupSymbol(h.PC),
			"exited", status.Exited,
			"code", status.ExitCode,
		)
	}
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run all harts of a machine snapshot",
	Description: "Run all harts of a machine snapshot concurrently until the program exits, traps or reaches the step limit, and write the resulting snapshot.",
	Action:      Run,
	Flags: []cli.Flag{
		RunInputFlag,
		RunOutputFlag,
		RunMaxStepsFlag,
		RunMetaFlag,
		RunInfoIntervalFlag,
		RunProgressFlag,
		RunPProfCPU,
		LogLevelFlag,
	},
}
