package mem

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harts-sim/rvcore/rvgo/riscv"
)

const (
	ramBase = 0x8000_0000
	romBase = 0x1000
)

func newTestMemory(t *testing.T) *Memory {
	m, err := NewMemory(
		Region{Name: "ram", Base: ramBase, Size: 1 << 20},
		Region{Name: "rom", Base: romBase, Size: PageSize, ReadOnly: true},
	)
	require.NoError(t, err)
	return m
}

func requireFault(t *testing.T, err error, access Access, kind FaultKind, addr uint32) {
	t.Helper()
	var f *Fault
	require.ErrorAs(t, err, &f)
	require.Equal(t, access, f.Access, "access")
	require.Equal(t, kind, f.Kind, "kind")
	require.Equal(t, addr, f.Addr, "addr")
}

func TestMemoryRegions(t *testing.T) {
	m := newTestMemory(t)
	regions := m.Regions()
	require.Len(t, regions, 2)
	require.Equal(t, "rom", regions[0].Name, "regions are sorted by base")
	require.Equal(t, "ram", regions[1].Name)

	for name, r := range map[string]Region{
		"empty":          {Name: "x", Base: 0},
		"unaligned base": {Name: "x", Base: 0x10, Size: PageSize},
		"unaligned size": {Name: "x", Base: 0, Size: 100},
		"wraps":          {Name: "x", Base: 0xFFFF_F000, Size: 2 * PageSize},
	} {
		_, err := NewMemory(r)
		require.ErrorIs(t, err, ErrBadRegion, name)
	}
	_, err := NewMemory(Region{Name: "a", Base: 0, Size: 2 * PageSize}, Region{Name: "b", Base: PageSize, Size: PageSize})
	require.ErrorIs(t, err, ErrBadRegion, "overlap")

	_, err = NewMemory(Region{Name: "top", Base: 0xFFFF_F000, Size: PageSize})
	require.NoError(t, err, "last page of the address space")
}

func TestMemoryLoadStore(t *testing.T) {
	t.Run("little endian", func(t *testing.T) {
		m := newTestMemory(t)
		require.NoError(t, m.Store(ramBase, Word, 0xDDCCBBAA))
		for i, want := range []uint32{0xAA, 0xBB, 0xCC, 0xDD} {
			v, err := m.Load(ramBase+uint32(i), Byte, false)
			require.NoError(t, err)
			require.Equal(t, want, v)
		}
		v, err := m.Load(ramBase+2, Half, false)
		require.NoError(t, err)
		require.Equal(t, uint32(0xDDCC), v)
	})

	t.Run("sign extension", func(t *testing.T) {
		m := newTestMemory(t)
		require.NoError(t, m.Store(ramBase, Half, 0x80FF))
		v, err := m.Load(ramBase, Byte, true)
		require.NoError(t, err)
		require.Equal(t, uint32(0xFFFF_FFFF), v)
		v, err = m.Load(ramBase+1, Byte, true)
		require.NoError(t, err)
		require.Equal(t, uint32(0xFFFF_FF80), v)
		v, err = m.Load(ramBase, Half, true)
		require.NoError(t, err)
		require.Equal(t, uint32(0xFFFF_80FF), v)
		v, err = m.Load(ramBase, Half, false)
		require.NoError(t, err)
		require.Equal(t, uint32(0x80FF), v)
	})

	t.Run("partial stores", func(t *testing.T) {
		m := newTestMemory(t)
		require.NoError(t, m.Store(ramBase+8, Word, 0x11223344))
		require.NoError(t, m.Store(ramBase+9, Byte, 0xFFFF_FFAA))
		require.NoError(t, m.Store(ramBase+10, Half, 0xBEEF))
		v, err := m.Load(ramBase+8, Word, false)
		require.NoError(t, err)
		require.Equal(t, uint32(0xBEEF_AA44), v)
	})

	t.Run("unwritten memory is zero", func(t *testing.T) {
		m := newTestMemory(t)
		v, err := m.Load(ramBase+0x1234, Word, false)
		require.NoError(t, err)
		require.Zero(t, v)
		require.Zero(t, m.PageCount(), "loads do not allocate")
	})

	t.Run("faults", func(t *testing.T) {
		m := newTestMemory(t)
		_, err := m.Load(ramBase+1, Word, false)
		requireFault(t, err, AccessLoad, FaultMisaligned, ramBase+1)
		_, err = m.Load(ramBase+3, Half, true)
		requireFault(t, err, AccessLoad, FaultMisaligned, ramBase+3)
		_, err = m.Load(0x4000, Byte, false)
		requireFault(t, err, AccessLoad, FaultUnmapped, 0x4000)
		err = m.Store(ramBase+2, Word, 1)
		requireFault(t, err, AccessStore, FaultMisaligned, ramBase+2)
		err = m.Store(romBase, Byte, 1)
		requireFault(t, err, AccessStore, FaultReadOnly, romBase)
		_, err = m.Fetch(ramBase + 2)
		requireFault(t, err, AccessFetch, FaultMisaligned, ramBase+2)
		_, err = m.Fetch(0)
		requireFault(t, err, AccessFetch, FaultUnmapped, 0)
		_, err = m.Load(romBase, Word, false)
		require.NoError(t, err, "read-only memory is readable")
		require.Zero(t, m.PageCount(), "faulting stores write nothing")
	})

	t.Run("bad width", func(t *testing.T) {
		m := newTestMemory(t)
		require.Panics(t, func() { _, _ = m.Load(ramBase, Width(3), false) })
	})
}

func TestFaultCause(t *testing.T) {
	cases := []struct {
		access Access
		kind   FaultKind
		cause  riscv.Cause
	}{
		{AccessFetch, FaultMisaligned, riscv.CauseInstrAddrMisaligned},
		{AccessFetch, FaultUnmapped, riscv.CauseInstrAccessFault},
		{AccessLoad, FaultMisaligned, riscv.CauseLoadAddrMisaligned},
		{AccessLoad, FaultUnmapped, riscv.CauseLoadAccessFault},
		{AccessStore, FaultMisaligned, riscv.CauseStoreAddrMisaligned},
		{AccessStore, FaultUnmapped, riscv.CauseStoreAccessFault},
		{AccessStore, FaultReadOnly, riscv.CauseStoreAccessFault},
	}
	for _, tc := range cases {
		f := &Fault{Access: tc.access, Kind: tc.kind, Addr: 4}
		require.Equal(t, tc.cause, f.Cause(), f.Error())
	}
	var err error = &Fault{Access: AccessStore, Kind: FaultReadOnly, Addr: 0x1000}
	require.Equal(t, "read-only store at 00001000", err.Error())
}

func TestMemoryReadWrite(t *testing.T) {
	t.Run("large random", func(t *testing.T) {
		m := newTestMemory(t)
		data := make([]byte, 20_000)
		_, err := rand.Read(data[:])
		require.NoError(t, err)
		require.NoError(t, m.SetMemoryRange(ramBase+3, bytes.NewReader(data)))
		for _, i := range []uint32{0, 1, 2, 3, 4, 5, 6, 7, 1000, 3333, 4095, 4096, 4097, 20_000 - 32} {
			res, err := io.ReadAll(m.ReadMemoryRange(ramBase+3+i, 32))
			require.NoError(t, err)
			require.Equalf(t, data[i:i+32], res, "read at %d", i)
		}
	})

	t.Run("repeat range", func(t *testing.T) {
		m := newTestMemory(t)
		data := []byte(strings.Repeat("under the big bright yellow sun ", 40))
		require.NoError(t, m.SetMemoryRange(ramBase+0x1337, bytes.NewReader(data)))
		res, err := io.ReadAll(m.ReadMemoryRange(ramBase+0x1337-10, uint32(len(data)+20)))
		require.NoError(t, err)
		require.Equal(t, make([]byte, 10), res[:10], "empty start")
		require.Equal(t, data, res[10:len(res)-10], "result")
		require.Equal(t, make([]byte, 10), res[len(res)-10:], "empty end")
	})

	t.Run("range writes ignore read-only", func(t *testing.T) {
		m := newTestMemory(t)
		require.NoError(t, m.SetMemoryRange(romBase, bytes.NewReader([]byte{1, 2, 3, 4})))
		v, err := m.Load(romBase, Word, false)
		require.NoError(t, err)
		require.Equal(t, uint32(0x04030201), v)
	})

	t.Run("range outside regions", func(t *testing.T) {
		m := newTestMemory(t)
		err := m.SetMemoryRange(romBase+PageSize-2, bytes.NewReader([]byte{1, 2, 3, 4}))
		requireFault(t, err, AccessStore, FaultUnmapped, romBase+PageSize)
		_, err = io.ReadAll(m.ReadMemoryRange(romBase+PageSize-2, 4))
		requireFault(t, err, AccessLoad, FaultUnmapped, romBase+PageSize)
	})

	t.Run("usage", func(t *testing.T) {
		m := newTestMemory(t)
		require.Equal(t, "0 B", m.Usage())
		require.NoError(t, m.Store(ramBase, Byte, 1))
		require.NoError(t, m.Store(ramBase+PageSize, Byte, 1))
		require.Equal(t, 2, m.PageCount())
		require.Equal(t, "8.0 KiB", m.Usage())
	})
}

func TestReservations(t *testing.T) {
	const addr = ramBase + 0x100

	t.Run("lr then sc", func(t *testing.T) {
		m := newTestMemory(t)
		require.NoError(t, m.Store(addr, Word, 7))
		v, err := m.LoadReserved(0, addr)
		require.NoError(t, err)
		require.Equal(t, uint32(7), v)
		require.True(t, m.Reserved(0, addr))
		require.False(t, m.Reserved(1, addr))
		ok, err := m.StoreConditional(0, addr, 8)
		require.NoError(t, err)
		require.True(t, ok)
		require.False(t, m.Reserved(0, addr), "sc consumes the reservation")
		v, err = m.Load(addr, Word, false)
		require.NoError(t, err)
		require.Equal(t, uint32(8), v)
	})

	t.Run("sc without reservation", func(t *testing.T) {
		m := newTestMemory(t)
		require.NoError(t, m.Store(addr, Word, 7))
		ok, err := m.StoreConditional(0, addr, 8)
		require.NoError(t, err)
		require.False(t, ok)
		v, err := m.Load(addr, Word, false)
		require.NoError(t, err)
		require.Equal(t, uint32(7), v, "failed sc writes nothing")
	})

	t.Run("other hart store breaks reservation", func(t *testing.T) {
		m := newTestMemory(t)
		_, err := m.LoadReserved(0, addr)
		require.NoError(t, err)
		require.NoError(t, m.Store(addr+3, Byte, 1), "any byte of the granule")
		ok, err := m.StoreConditional(0, addr, 8)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("neighbouring granule keeps reservation", func(t *testing.T) {
		m := newTestMemory(t)
		_, err := m.LoadReserved(0, addr)
		require.NoError(t, err)
		require.NoError(t, m.Store(addr+4, Word, 1))
		require.NoError(t, m.Store(addr-1, Byte, 1))
		// same lock stripe, different granule
		require.NoError(t, m.Store(addr+4*lockStripes, Word, 1))
		require.True(t, m.Reserved(0, addr))
	})

	t.Run("amo breaks reservation", func(t *testing.T) {
		m := newTestMemory(t)
		_, err := m.LoadReserved(0, addr)
		require.NoError(t, err)
		_, err = m.AtomicRMW(AMOAdd, addr, 1)
		require.NoError(t, err)
		require.False(t, m.Reserved(0, addr))
	})

	t.Run("range write breaks reservation", func(t *testing.T) {
		m := newTestMemory(t)
		_, err := m.LoadReserved(0, addr)
		require.NoError(t, err)
		require.NoError(t, m.SetMemoryRange(addr+2, bytes.NewReader([]byte{9})))
		require.False(t, m.Reserved(0, addr))
	})

	t.Run("first sc wins", func(t *testing.T) {
		m := newTestMemory(t)
		for hart := 0; hart < 3; hart++ {
			_, err := m.LoadReserved(hart, addr)
			require.NoError(t, err)
		}
		ok, err := m.StoreConditional(1, addr, 11)
		require.NoError(t, err)
		require.True(t, ok)
		for hart := 0; hart < 3; hart++ {
			ok, err := m.StoreConditional(hart, addr, 99)
			require.NoError(t, err)
			require.False(t, ok, "hart %d", hart)
		}
		v, err := m.Load(addr, Word, false)
		require.NoError(t, err)
		require.Equal(t, uint32(11), v)
	})

	t.Run("cancel", func(t *testing.T) {
		m := newTestMemory(t)
		_, err := m.LoadReserved(0, addr)
		require.NoError(t, err)
		_, err = m.LoadReserved(1, addr)
		require.NoError(t, err)
		m.CancelReservation(0, addr)
		m.CancelReservation(0, addr)
		require.False(t, m.Reserved(0, addr))
		require.True(t, m.Reserved(1, addr), "other holders are unaffected")
	})

	t.Run("faults", func(t *testing.T) {
		m := newTestMemory(t)
		_, err := m.LoadReserved(0, addr+2)
		requireFault(t, err, AccessLoad, FaultMisaligned, addr+2)
		_, err = m.StoreConditional(0, addr+2, 1)
		requireFault(t, err, AccessStore, FaultMisaligned, addr+2)
		_, err = m.LoadReserved(0, romBase)
		require.NoError(t, err)
		_, err = m.StoreConditional(0, romBase, 1)
		requireFault(t, err, AccessStore, FaultReadOnly, romBase)
		_, err = m.AtomicRMW(AMOSwap, 0x10, 1)
		requireFault(t, err, AccessStore, FaultUnmapped, 0x10)
	})
}

func TestAtomicRMW(t *testing.T) {
	cases := []struct {
		op      AMOOp
		old     uint32
		operand uint32
		want    uint32
	}{
		{AMOSwap, 5, 9, 9},
		{AMOAdd, 0xFFFF_FFFF, 2, 1},
		{AMOXor, 0b1100, 0b1010, 0b0110},
		{AMOAnd, 0b1100, 0b1010, 0b1000},
		{AMOOr, 0b1100, 0b1010, 0b1110},
		{AMOMin, 0xFFFF_FFFF, 1, 0xFFFF_FFFF},
		{AMOMax, 0xFFFF_FFFF, 1, 1},
		{AMOMinU, 0xFFFF_FFFF, 1, 1},
		{AMOMaxU, 0xFFFF_FFFF, 1, 0xFFFF_FFFF},
		{AMOMin, 3, 0x8000_0000, 0x8000_0000},
		{AMOMaxU, 3, 0x8000_0000, 0x8000_0000},
	}
	for _, tc := range cases {
		t.Run(tc.op.String(), func(t *testing.T) {
			m := newTestMemory(t)
			require.NoError(t, m.Store(ramBase, Word, tc.old))
			old, err := m.AtomicRMW(tc.op, ramBase, tc.operand)
			require.NoError(t, err)
			require.Equal(t, tc.old, old)
			v, err := m.Load(ramBase, Word, false)
			require.NoError(t, err)
			require.Equal(t, tc.want, v)
		})
	}
	require.Panics(t, func() {
		_, _ = newTestMemory(t).AtomicRMW(AMOOp(42), ramBase, 0)
	})
}

func TestAtomicRMWConcurrent(t *testing.T) {
	m := newTestMemory(t)
	const workers, iterations = 8, 2000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if _, err := m.AtomicRMW(AMOAdd, ramBase, 1); err != nil {
					panic(err)
				}
			}
		}()
	}
	wg.Wait()
	v, err := m.Load(ramBase, Word, false)
	require.NoError(t, err)
	require.Equal(t, uint32(workers*iterations), v)
}

func TestMemoryJSON(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Store(ramBase+8, Byte, 123))
	require.NoError(t, m.Store(ramBase+PageSize, Word, 0)) // zero pages are not written out
	dat, err := json.Marshal(m)
	require.NoError(t, err)
	var res Memory
	require.NoError(t, json.Unmarshal(dat, &res))
	require.Equal(t, m.Regions(), res.Regions())
	require.Equal(t, 1, res.PageCount())
	v, err := res.Load(ramBase+8, Byte, false)
	require.NoError(t, err)
	require.Equal(t, uint32(123), v)

	err = json.Unmarshal([]byte(`{"regions":[],"pages":[{"addr":"0x0","data":"0x00"}]}`), &res)
	require.Error(t, err)
}

func TestMemoryBinary(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Store(ramBase+8, Byte, 123))
	require.NoError(t, m.SetMemoryRange(romBase, bytes.NewReader([]byte("boot"))))
	ser := new(bytes.Buffer)
	require.NoError(t, m.Serialize(ser), "must serialize state")
	first := bytes.Clone(ser.Bytes())

	var m2 Memory
	require.NoError(t, m2.Deserialize(ser), "must deserialize state")
	require.Equal(t, m.Regions(), m2.Regions())
	v, err := m2.Load(ramBase+8, Byte, false)
	require.NoError(t, err)
	require.Equal(t, uint32(123), v)
	err = m2.Store(romBase, Byte, 0)
	require.True(t, errors.As(err, new(*Fault)), "read-only flag survives")

	again := new(bytes.Buffer)
	require.NoError(t, m2.Serialize(again))
	require.Equal(t, first, again.Bytes(), "serialization is deterministic")
}
