package mem

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
)

// Note: 2**12 = 4 KiB, the Go runtime min phys page size.
const (
	PageAddrSize = 12
	PageSize     = 1 << PageAddrSize
	PageAddrMask = PageSize - 1
	pageWords    = PageSize / 4

	// GranuleSize is the reservation granule: LR/SC track naturally aligned words.
	GranuleSize = 4

	lockStripes = 256
)

var ErrBadRegion = errors.New("bad memory region")

// Reservation is the address range a hart claimed with a load-reserved.
type Reservation struct {
	Addr uint32
	Size uint32
}

// Width of a memory access in bytes.
type Width uint32

const (
	Byte Width = 1
	Half Width = 2
	Word Width = 4
)

// Page holds 4 KiB of memory as little-endian words. Words are accessed
// atomically so that loads from one hart never observe a torn store from another.
type Page [pageWords]atomic.Uint32

// Region describes a mapped range of the physical address space.
type Region struct {
	Name     string `json:"name" yaml:"name"`
	Base     uint32 `json:"base" yaml:"base"`
	Size     uint32 `json:"size" yaml:"size"`
	ReadOnly bool   `json:"readOnly,omitempty" yaml:"read-only"`
}

func (r Region) Contains(addr uint32) bool {
	return addr >= r.Base && addr-r.Base < r.Size
}

func (r Region) End() uint64 {
	return uint64(r.Base) + uint64(r.Size)
}

type region struct {
	Region
	// pages are only allocated just in time, on first write.
	pages []atomic.Pointer[Page]
}

func (r *region) page(addr uint32, alloc bool) *Page {
	slot := &r.pages[(addr-r.Base)>>PageAddrSize]
	if p := slot.Load(); p != nil || !alloc {
		return p
	}
	p := new(Page)
	if slot.CompareAndSwap(nil, p) {
		return p
	}
	return slot.Load()
}

func (r *region) loadWord(addr uint32) uint32 {
	p := r.page(addr, false)
	if p == nil {
		return 0
	}
	return p[(addr&PageAddrMask)>>2].Load()
}

// storeLocked merges width bytes of value into the word containing addr.
// The caller must hold the lock stripe of addr.
func (r *region) storeLocked(addr uint32, width Width, value uint32) {
	w := &r.page(addr, true)[(addr&PageAddrMask)>>2]
	if width == Word {
		w.Store(value)
		return
	}
	shift := (addr & 3) * 8
	mask := uint32(1<<(width*8)-1) << shift
	w.Store(w.Load()&^mask | (value<<shift)&mask)
}

// stripe serializes every write to the granules that hash to it, and owns
// the reservations on those granules.
type stripe struct {
	mu sync.Mutex
	// granule address -> harts holding a reservation on it
	holders map[uint32]*bitset.BitSet
	_       [48]byte // pad to a cache line
}

// invalidate drops every reservation on granule g. Caller holds s.mu.
func (s *stripe) invalidate(g uint32) {
	if len(s.holders) != 0 {
		delete(s.holders, g)
	}
}

func (s *stripe) reserve(g uint32, hart int) {
	if s.holders == nil {
		s.holders = make(map[uint32]*bitset.BitSet)
	}
	b, ok := s.holders[g]
	if !ok {
		b = new(bitset.BitSet)
		s.holders[g] = b
	}
	b.Set(uint(hart))
}

func (s *stripe) holds(g uint32, hart int) bool {
	b, ok := s.holders[g]
	return ok && b.Test(uint(hart))
}

func (s *stripe) release(g uint32, hart int) {
	b, ok := s.holders[g]
	if !ok {
		return
	}
	b.Clear(uint(hart))
	if b.None() {
		delete(s.holders, g)
	}
}

func granule(addr uint32) uint32 {
	return addr &^ (GranuleSize - 1)
}

// Memory is the physical memory shared by all harts of a machine.
//
// Loads are lock-free. Every path that writes memory (plain stores, SC,
// AMOs and bulk range writes) holds the lock stripe of the written granule
// and drops all reservations on it before releasing the lock, so a
// reservation can never survive an overlapping store from any hart.
type Memory struct {
	regions []*region
	stripes [lockStripes]stripe
}

func NewMemory(regions ...Region) (*Memory, error) {
	m := &Memory{}
	for _, r := range regions {
		if err := m.addRegion(r); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Memory) addRegion(r Region) error {
	if r.Size == 0 {
		return fmt.Errorf("%w %q: empty", ErrBadRegion, r.Name)
	}
	if r.Base&PageAddrMask != 0 || r.Size&PageAddrMask != 0 {
		return fmt.Errorf("%w %q: base %08x and size %x must be page aligned", ErrBadRegion, r.Name, r.Base, r.Size)
	}
	if r.End() > 1<<32 {
		return fmt.Errorf("%w %q: extends past the 32-bit address space", ErrBadRegion, r.Name)
	}
	for _, o := range m.regions {
		if uint64(r.Base) < o.End() && uint64(o.Base) < r.End() {
			return fmt.Errorf("%w %q: overlaps region %q", ErrBadRegion, r.Name, o.Name)
		}
	}
	m.regions = append(m.regions, &region{
		Region: r,
		pages:  make([]atomic.Pointer[Page], r.Size>>PageAddrSize),
	})
	sort.Slice(m.regions, func(i, j int) bool {
		return m.regions[i].Base < m.regions[j].Base
	})
	return nil
}

func (m *Memory) Regions() []Region {
	out := make([]Region, len(m.regions))
	for i, r := range m.regions {
		out[i] = r.Region
	}
	return out
}

func (m *Memory) lookup(addr uint32) *region {
	for _, r := range m.regions {
		if r.Contains(addr) {
			return r
		}
	}
	return nil
}

func (m *Memory) stripe(addr uint32) *stripe {
	return &m.stripes[(addr>>2)&(lockStripes-1)]
}

func checkWidth(width Width) {
	if width != Byte && width != Half && width != Word {
		panic(fmt.Errorf("unsupported access width: %d", width))
	}
}

// writable resolves the region of a store-like access, or the fault it raises.
func (m *Memory) writable(addr uint32, width Width) (*region, error) {
	if addr&uint32(width-1) != 0 {
		return nil, &Fault{Access: AccessStore, Kind: FaultMisaligned, Addr: addr}
	}
	r := m.lookup(addr)
	if r == nil {
		return nil, &Fault{Access: AccessStore, Kind: FaultUnmapped, Addr: addr}
	}
	if r.ReadOnly {
		return nil, &Fault{Access: AccessStore, Kind: FaultReadOnly, Addr: addr}
	}
	return r, nil
}

func (m *Memory) readable(addr uint32, width Width, access Access) (*region, error) {
	if addr&uint32(width-1) != 0 {
		return nil, &Fault{Access: access, Kind: FaultMisaligned, Addr: addr}
	}
	r := m.lookup(addr)
	if r == nil {
		return nil, &Fault{Access: access, Kind: FaultUnmapped, Addr: addr}
	}
	return r, nil
}

// Load reads a naturally aligned value, zero- or sign-extended to 32 bits.
func (m *Memory) Load(addr uint32, width Width, signed bool) (uint32, error) {
	checkWidth(width)
	r, err := m.readable(addr, width, AccessLoad)
	if err != nil {
		return 0, err
	}
	v := r.loadWord(addr) >> ((addr & 3) * 8)
	switch width {
	case Byte:
		if signed {
			return uint32(int32(int8(v))), nil
		}
		return v & 0xFF, nil
	case Half:
		if signed {
			return uint32(int32(int16(v))), nil
		}
		return v & 0xFFFF, nil
	}
	return v, nil
}

// Fetch reads the instruction word at pc.
func (m *Memory) Fetch(pc uint32) (uint32, error) {
	r, err := m.readable(pc, Word, AccessFetch)
	if err != nil {
		return 0, err
	}
	return r.loadWord(pc), nil
}

// Store writes a naturally aligned value and invalidates every reservation
// on the granule, whichever hart holds it.
func (m *Memory) Store(addr uint32, width Width, value uint32) error {
	checkWidth(width)
	r, err := m.writable(addr, width)
	if err != nil {
		return err
	}
	s := m.stripe(addr)
	s.mu.Lock()
	r.storeLocked(addr, width, value)
	s.invalidate(granule(addr))
	s.mu.Unlock()
	return nil
}

// LoadReserved reads the word at addr and registers a reservation for the
// hart on its granule. The caller is responsible for releasing any other
// reservation the hart holds.
func (m *Memory) LoadReserved(hart int, addr uint32) (uint32, error) {
	r, err := m.readable(addr, Word, AccessLoad)
	if err != nil {
		return 0, err
	}
	s := m.stripe(addr)
	s.mu.Lock()
	v := r.loadWord(addr)
	s.reserve(granule(addr), hart)
	s.mu.Unlock()
	return v, nil
}

// StoreConditional stores value only if the hart still holds an unbroken
// reservation on the granule of addr. A successful store invalidates the
// reservations of all harts on the granule, including the caller's.
func (m *Memory) StoreConditional(hart int, addr uint32, value uint32) (bool, error) {
	r, err := m.writable(addr, Word)
	if err != nil {
		return false, err
	}
	g := granule(addr)
	s := m.stripe(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holds(g, hart) {
		return false, nil
	}
	r.storeLocked(addr, Word, value)
	s.invalidate(g)
	return true, nil
}

// AtomicRMW performs read, combine, write as one indivisible step with
// respect to every other write path, and returns the original value.
func (m *Memory) AtomicRMW(op AMOOp, addr uint32, value uint32) (uint32, error) {
	if !op.Valid() {
		panic(fmt.Errorf("unrecognized mem op: %d", op))
	}
	r, err := m.writable(addr, Word)
	if err != nil {
		return 0, err
	}
	s := m.stripe(addr)
	s.mu.Lock()
	old := r.loadWord(addr)
	r.storeLocked(addr, Word, op.Apply(old, value))
	s.invalidate(granule(addr))
	s.mu.Unlock()
	return old, nil
}

// CancelReservation drops the hart's reservation on the granule of addr, if any.
func (m *Memory) CancelReservation(hart int, addr uint32) {
	s := m.stripe(addr)
	s.mu.Lock()
	s.release(granule(addr), hart)
	s.mu.Unlock()
}

// Reserved reports whether the hart holds an unbroken reservation on the granule of addr.
func (m *Memory) Reserved(hart int, addr uint32) bool {
	s := m.stripe(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holds(granule(addr), hart)
}

// writeBytes stores dat at addr one word at a time, following the same
// locking and invalidation rules as Store. Read-only regions are writable
// here: this is how images are loaded.
func (m *Memory) writeBytes(addr uint32, dat []byte) error {
	for len(dat) > 0 {
		r := m.lookup(addr)
		if r == nil {
			return &Fault{Access: AccessStore, Kind: FaultUnmapped, Addr: addr}
		}
		off := addr & 3
		n := 4 - int(off)
		if n > len(dat) {
			n = len(dat)
		}
		s := m.stripe(addr)
		s.mu.Lock()
		w := &r.page(addr, true)[(addr&PageAddrMask)>>2]
		v := w.Load()
		for j := 0; j < n; j++ {
			shift := (off + uint32(j)) * 8
			v = v&^(0xFF<<shift) | uint32(dat[j])<<shift
		}
		w.Store(v)
		s.invalidate(granule(addr))
		s.mu.Unlock()
		addr += uint32(n)
		dat = dat[n:]
	}
	return nil
}

// SetMemoryRange copies everything r produces into memory starting at addr.
func (m *Memory) SetMemoryRange(addr uint32, r io.Reader) error {
	var buf [PageSize]byte
	for {
		n, err := r.Read(buf[:PageSize-(addr&PageAddrMask)])
		if n > 0 {
			if werr := m.writeBytes(addr, buf[:n]); werr != nil {
				return werr
			}
			addr += uint32(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

type memReader struct {
	m     *Memory
	addr  uint32
	count uint32
}

func (r *memReader) Read(dest []byte) (n int, err error) {
	for n < len(dest) && r.count > 0 {
		reg := r.m.lookup(r.addr)
		if reg == nil {
			return n, &Fault{Access: AccessLoad, Kind: FaultUnmapped, Addr: r.addr}
		}
		dest[n] = byte(reg.loadWord(r.addr) >> ((r.addr & 3) * 8))
		n++
		r.addr++
		r.count--
	}
	if n == 0 && r.count == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadMemoryRange returns a reader over count bytes at addr. Unallocated
// pages read as zeroes; leaving the mapped regions is a *Fault.
func (m *Memory) ReadMemoryRange(addr uint32, count uint32) io.Reader {
	return &memReader{m: m, addr: addr, count: count}
}

// ForEachPage visits allocated pages that hold at least one non-zero byte,
// in ascending address order.
func (m *Memory) ForEachPage(fn func(addr uint32, page *Page) error) error {
	for _, r := range m.regions {
		for i := range r.pages {
			p := r.pages[i].Load()
			if p == nil || p.zero() {
				continue
			}
			if err := fn(r.Base+uint32(i)<<PageAddrSize, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Memory) PageCount() int {
	count := 0
	for _, r := range m.regions {
		for i := range r.pages {
			if r.pages[i].Load() != nil {
				count++
			}
		}
	}
	return count
}

func (m *Memory) Usage() string {
	total := uint64(m.PageCount()) * PageSize
	const unit = 1024
	if total < unit {
		return fmt.Sprintf("%d B", total)
	}
	div, exp := uint64(unit), 0
	for n := total / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	// KiB, MiB, GiB, TiB, ...
	return fmt.Sprintf("%.1f %ciB", float64(total)/float64(div), "KMGTPE"[exp])
}

func (p *Page) zero() bool {
	for i := range p {
		if p[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Bytes returns a little-endian copy of the page.
func (p *Page) Bytes() []byte {
	out := make([]byte, PageSize)
	for i := range p {
		v := p[i].Load()
		out[i*4] = byte(v)
		out[i*4+1] = byte(v >> 8)
		out[i*4+2] = byte(v >> 16)
		out[i*4+3] = byte(v >> 24)
	}
	return out
}

func (p *Page) setBytes(dat []byte) {
	for i := range p {
		p[i].Store(uint32(dat[i*4]) | uint32(dat[i*4+1])<<8 | uint32(dat[i*4+2])<<16 | uint32(dat[i*4+3])<<24)
	}
}
