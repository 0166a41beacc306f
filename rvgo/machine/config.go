package machine

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/harts-sim/rvcore/rvgo/isa"
	"github.com/harts-sim/rvcore/rvgo/mem"
)

const (
	MaxHarts = 1024

	DefaultStackSize = 64 << 10
	DefaultRAMBase   = 0x8000_0000
	DefaultRAMSize   = 128 << 20
)

var ErrInvalidConfig = errors.New("invalid machine config")

// Config describes the machine a program runs on.
type Config struct {
	Harts      int          `json:"harts" yaml:"harts"`
	Extensions string       `json:"extensions" yaml:"extensions"`
	StackSize  uint32       `json:"stackSize" yaml:"stack-size"`
	MaxSteps   uint64       `json:"maxSteps,omitempty" yaml:"max-steps"`
	Memory     []mem.Region `json:"memory" yaml:"memory"`
}

func DefaultConfig() Config {
	return Config{
		Harts:      1,
		Extensions: isa.AllExtensions.String(),
		StackSize:  DefaultStackSize,
		Memory: []mem.Region{
			{Name: "ram", Base: DefaultRAMBase, Size: DefaultRAMSize},
		},
	}
}

// LoadConfig reads a YAML machine config. Fields missing from the file keep
// their DefaultConfig value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	dat, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read machine config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(dat, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse machine config %q: %w", path, err)
	}
	return cfg, cfg.Check()
}

func (c Config) Check() error {
	if c.Harts < 1 || c.Harts > MaxHarts {
		return fmt.Errorf("%w: hart count %d out of range [1, %d]", ErrInvalidConfig, c.Harts, MaxHarts)
	}
	if _, err := isa.ParseExtensions(c.Extensions); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.StackSize%16 != 0 {
		return fmt.Errorf("%w: stack size %d is not 16-byte aligned", ErrInvalidConfig, c.StackSize)
	}
	if len(c.Memory) == 0 {
		return fmt.Errorf("%w: no memory regions", ErrInvalidConfig)
	}
	if top := stackRegion(c.Memory); uint64(c.StackSize)*uint64(c.Harts) > uint64(top.Size) {
		return fmt.Errorf("%w: %d stacks of %d bytes do not fit in region %q", ErrInvalidConfig,
			c.Harts, c.StackSize, top.Name)
	}
	return nil
}

// stackRegion is the highest region: hart stacks grow down from its end.
func stackRegion(regions []mem.Region) mem.Region {
	top := regions[0]
	for _, r := range regions[1:] {
		if r.Base > top.Base {
			top = r
		}
	}
	return top
}
