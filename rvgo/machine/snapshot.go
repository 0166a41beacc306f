package machine

import (
	"cmp"
	"fmt"
	"os"
	"slices"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/harts-sim/rvcore/rvgo/hart"
	"github.com/harts-sim/rvcore/rvgo/mem"
)

var OutFilePerm = os.FileMode(0o644)

// Snapshot is the complete state of a stopped machine.
// Reservations are not part of it: a restored hart holds none.
type Snapshot struct {
	Config    Config       `json:"config"`
	Harts     []hart.State `json:"harts"`
	Status    []HartStatus `json:"status"`
	GroupExit *uint32      `json:"groupExit,omitempty"`
	Retired   uint64       `json:"retired"`
	Memory    *mem.Memory  `json:"memory"`
}

// Snapshot captures the machine state. The snapshot shares the memory of
// the machine, so it must be written out before the machine runs again.
func (m *Machine) Snapshot() *Snapshot {
	s := &Snapshot{
		Config:  m.cfg,
		Status:  append([]HartStatus(nil), m.status...),
		Retired: m.Retired(),
		Memory:  m.Memory,
	}
	for _, h := range m.harts {
		s.Harts = append(s.Harts, h.State())
	}
	if m.groupExited.Load() {
		code := m.groupCode.Load()
		s.GroupExit = &code
	}
	return s
}

// Restore builds a machine from a snapshot. The machine takes ownership of
// the snapshot memory.
func Restore(s *Snapshot, logger log.Logger) (*Machine, error) {
	if err := s.Config.Check(); err != nil {
		return nil, err
	}
	if len(s.Harts) != s.Config.Harts || len(s.Status) != s.Config.Harts {
		return nil, fmt.Errorf("%w: snapshot has %d hart states and %d statuses for %d harts",
			ErrInvalidConfig, len(s.Harts), len(s.Status), s.Config.Harts)
	}
	if s.Memory == nil {
		return nil, fmt.Errorf("%w: snapshot has no memory", ErrInvalidConfig)
	}
	layout := slices.Clone(s.Config.Memory)
	slices.SortFunc(layout, func(a, b mem.Region) int { return cmp.Compare(a.Base, b.Base) })
	if !slices.Equal(layout, s.Memory.Regions()) {
		return nil, fmt.Errorf("%w: config memory layout does not match snapshot memory", ErrInvalidConfig)
	}
	m, err := newMachine(s.Config, s.Memory, logger)
	if err != nil {
		return nil, err
	}
	for i, st := range s.Harts {
		if st.ID != i {
			return nil, fmt.Errorf("%w: hart state %d has id %d", ErrInvalidConfig, i, st.ID)
		}
		if err := m.harts[i].Restore(st); err != nil {
			return nil, fmt.Errorf("failed to restore hart %d: %w", i, err)
		}
	}
	copy(m.status, s.Status)
	if s.GroupExit != nil {
		m.groupCode.Store(*s.GroupExit)
		m.groupExited.Store(true)
	}
	m.retired.Store(s.Retired)
	return m, nil
}

// LoadSnapshot reads a JSON snapshot. Paths ending in .gz are gunzipped.
func LoadSnapshot(path string) (*Snapshot, error) {
	s, err := jsonutil.LoadJSON[Snapshot](path)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %q: %w", path, err)
	}
	return s, nil
}

// WriteSnapshot writes a JSON snapshot to path, or to stdout if path is "-".
// Paths ending in .gz are gzipped.
func WriteSnapshot(path string, s *Snapshot) error {
	if err := jsonutil.WriteJSON(path, s, OutFilePerm); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
