package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/harts-sim/rvcore/rvgo/hart"
	"github.com/harts-sim/rvcore/rvgo/isa"
	"github.com/harts-sim/rvcore/rvgo/mem"
	"github.com/harts-sim/rvcore/rvgo/riscv"
)

var ErrUnknownHostCall = errors.New("unknown host call")

// error codes returned to the guest in a1
const (
	errCodeBadFd = 0x4d
	errCodeFault = 0x0e
)

// TrapError reports a trap that no host call handles: breakpoints,
// illegal instructions and memory faults all end the run.
type TrapError struct {
	Hart  int
	PC    uint32
	Cause riscv.Cause
	Tval  uint32
	Err   error
}

func (e *TrapError) Error() string {
	msg := fmt.Sprintf("hart %d: unhandled %s at %08x (tval %08x)", e.Hart, e.Cause, e.PC, e.Tval)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TrapError) Unwrap() error {
	return e.Err
}

// HartStatus tracks whether a hart has left the program through a host call.
type HartStatus struct {
	Exited   bool   `json:"exited"`
	ExitCode uint32 `json:"exitCode"`
}

// Machine is a set of harts sharing one memory. The harts run concurrently,
// one goroutine each, while Run is active; everything else must only be
// called while no run is in progress.
type Machine struct {
	cfg    Config
	Memory *mem.Memory
	harts  []*hart.Hart
	status []HartStatus

	// exit_group stops every hart
	groupExited atomic.Bool
	groupCode   atomic.Uint32

	retired atomic.Uint64

	outMu  sync.Mutex
	stdOut io.Writer
	stdErr io.Writer

	log log.Logger
}

func New(cfg Config, logger log.Logger) (*Machine, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	memory, err := mem.NewMemory(cfg.Memory...)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory: %w", err)
	}
	return newMachine(cfg, memory, logger)
}

func newMachine(cfg Config, memory *mem.Memory, logger log.Logger) (*Machine, error) {
	ext, err := isa.ParseExtensions(cfg.Extensions)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Root()
	}
	m := &Machine{
		cfg:    cfg,
		Memory: memory,
		status: make([]HartStatus, cfg.Harts),
		stdOut: io.Discard,
		stdErr: io.Discard,
		log:    logger,
	}
	for i := 0; i < cfg.Harts; i++ {
		m.harts = append(m.harts, hart.New(i, memory, ext))
	}
	return m, nil
}

// SetOutput routes the guest's writes to fd 1 and 2.
func (m *Machine) SetOutput(stdOut, stdErr io.Writer) {
	m.stdOut, m.stdErr = stdOut, stdErr
}

func (m *Machine) Config() Config {
	return m.cfg
}

func (m *Machine) Harts() []*hart.Hart {
	return m.harts
}

func (m *Machine) Status(i int) HartStatus {
	return m.status[i]
}

// Retired is the number of instructions completed by all harts so far.
// It is safe to call while the machine runs.
func (m *Machine) Retired() uint64 {
	return m.retired.Load()
}

// Exited reports whether the program is over: either a hart called
// exit_group, or every hart called exit.
func (m *Machine) Exited() bool {
	if m.groupExited.Load() {
		return true
	}
	for _, s := range m.status {
		if !s.Exited {
			return false
		}
	}
	return true
}

// ExitCode is the exit_group code, or the exit code of hart 0.
func (m *Machine) ExitCode() uint32 {
	if m.groupExited.Load() {
		return m.groupCode.Load()
	}
	return m.status[0].ExitCode
}

// Run executes all harts that have not exited, each on its own goroutine,
// until they exit, the program fails or ctx is done. A maxSteps of 0 means
// no per-hart step limit.
func (m *Machine) Run(ctx context.Context, maxSteps uint64) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range m.harts {
		if m.status[i].Exited {
			continue
		}
		i := i
		g.Go(func() error {
			return m.runHart(gctx, i, maxSteps)
		})
	}
	return g.Wait()
}

func (m *Machine) runHart(ctx context.Context, i int, maxSteps uint64) error {
	h := m.harts[i]
	var pending uint64
	defer func() {
		m.retired.Add(pending)
	}()
	for step := uint64(0); maxSteps == 0 || step < maxSteps; step++ {
		if step%100 == 0 { // don't do the ctx err check (includes lock) too often
			if err := ctx.Err(); err != nil {
				return err
			}
			m.retired.Add(pending)
			pending = 0
		}
		if m.groupExited.Load() {
			return nil
		}

		pc := h.PC
		c := h.Execute()
		if !c.IsTrap() {
			pending++
			continue
		}
		done, err := m.handleTrap(i, h, c)
		if err != nil {
			return fmt.Errorf("hart %d failed at step %d (PC: %08x): %w", h.ID, step, pc, err)
		}
		pending++
		if done {
			return nil
		}
	}
	m.log.Debug("hart reached step limit", "hart", h.ID, "steps", maxSteps, "pc", fmt.Sprintf("%08x", h.PC))
	return nil
}

func (m *Machine) handleTrap(i int, h *hart.Hart, c hart.Conclusion) (bool, error) {
	if c.Kind != hart.Trapped || c.Cause != riscv.CauseEcallFromM {
		return false, &TrapError{Hart: h.ID, PC: h.PC, Cause: c.Cause, Tval: c.Tval, Err: c.Err}
	}
	done, err := m.hostCall(i, h)
	if err != nil {
		return false, err
	}
	// a served host call retires the ecall
	h.PC += riscv.InstrSize
	h.CSRs().Retire()
	return done, nil
}

// hostCall serves an ecall with the Linux RISC-V calling convention:
// number in a7, arguments in a0..a2, result in a0 and error code in a1.
func (m *Machine) hostCall(i int, h *hart.Hart) (bool, error) {
	switch a7 := h.Reg(riscv.RegA7); a7 {
	case riscv.SysExit:
		code := h.Reg(riscv.RegA0)
		m.status[i] = HartStatus{Exited: true, ExitCode: code}
		m.log.Info("hart exited", "hart", h.ID, "code", code)
		return true, nil
	case riscv.SysExitGroup:
		code := h.Reg(riscv.RegA0)
		m.status[i] = HartStatus{Exited: true, ExitCode: code}
		m.groupCode.Store(code)
		m.groupExited.Store(true)
		m.log.Info("program exited", "hart", h.ID, "code", code)
		return true, nil
	case riscv.SysWrite:
		fd := h.Reg(riscv.RegA0)
		addr := h.Reg(riscv.RegA1)
		count := h.Reg(riscv.RegA2)
		var w io.Writer
		switch fd {
		case riscv.FdStdout:
			w = m.stdOut
		case riscv.FdStderr:
			w = m.stdErr
		default:
			h.SetReg(riscv.RegA0, ^uint32(0))
			h.SetReg(riscv.RegA1, errCodeBadFd)
			return false, nil
		}
		m.outMu.Lock()
		n, err := io.Copy(w, m.Memory.ReadMemoryRange(addr, count))
		m.outMu.Unlock()
		if err != nil {
			var f *mem.Fault
			if !errors.As(err, &f) {
				return false, fmt.Errorf("failed to write to fd %d: %w", fd, err)
			}
			if n == 0 {
				h.SetReg(riscv.RegA0, ^uint32(0))
				h.SetReg(riscv.RegA1, errCodeFault)
				return false, nil
			}
		}
		h.SetReg(riscv.RegA0, uint32(n))
		h.SetReg(riscv.RegA1, 0)
		return false, nil
	default:
		return false, fmt.Errorf("%w: %d", ErrUnknownHostCall, a7)
	}
}
