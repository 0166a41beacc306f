package mem

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type pageEntry struct {
	Addr hexutil.Uint64 `json:"addr"`
	Data hexutil.Bytes  `json:"data"`
}

type memoryJSON struct {
	Regions []Region    `json:"regions"`
	Pages   []pageEntry `json:"pages"`
}

func (m *Memory) MarshalJSON() ([]byte, error) {
	out := memoryJSON{Regions: m.Regions(), Pages: []pageEntry{}}
	err := m.ForEachPage(func(addr uint32, page *Page) error {
		out.Pages = append(out.Pages, pageEntry{Addr: hexutil.Uint64(addr), Data: page.Bytes()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON replaces the whole memory, layout included.
// Reservations do not survive a restore.
func (m *Memory) UnmarshalJSON(data []byte) error {
	var in memoryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Memory{}
	for _, r := range in.Regions {
		if err := m.addRegion(r); err != nil {
			return err
		}
	}
	for i, p := range in.Pages {
		if p.Addr > 0xFFFF_FFFF {
			return fmt.Errorf("page entry %d: address %x out of range", i, uint64(p.Addr))
		}
		if len(p.Data) != PageSize {
			return fmt.Errorf("page entry %d: expected %d bytes, got %d", i, PageSize, len(p.Data))
		}
		if err := m.restorePage(uint32(p.Addr), p.Data); err != nil {
			return fmt.Errorf("page entry %d: %w", i, err)
		}
	}
	return nil
}

func (m *Memory) restorePage(addr uint32, dat []byte) error {
	if addr&PageAddrMask != 0 {
		return fmt.Errorf("page address %08x is not page aligned", addr)
	}
	r := m.lookup(addr)
	if r == nil {
		return fmt.Errorf("page address %08x is not mapped", addr)
	}
	slot := &r.pages[(addr-r.Base)>>PageAddrSize]
	if slot.Load() != nil {
		return fmt.Errorf("cannot load duplicate page at %08x", addr)
	}
	p := new(Page)
	p.setBytes(dat)
	slot.Store(p)
	return nil
}

// Serialize writes the memory in a simple binary format which can be read again using Deserialize.
// The format is a simple concatenation of fields, with prefixed item count for repeating items and using big endian
// encoding for numbers. The output is a pure function of the layout and the memory contents: pages are written in
// ascending order and pages holding only zeroes are omitted.
//
// len(Regions)      uint32
// For each region:
//
//	len(name)           uint16
//	name                []byte
//	base                uint32
//	size                uint32
//	read-only           uint8
//
// len(Pages)        uint32
// For each page:
//
//	page address        uint32
//	page data           [PageSize]byte
func (m *Memory) Serialize(out io.Writer) error {
	if err := binary.Write(out, binary.BigEndian, uint32(len(m.regions))); err != nil {
		return err
	}
	for _, r := range m.regions {
		if err := binary.Write(out, binary.BigEndian, uint16(len(r.Name))); err != nil {
			return err
		}
		if _, err := io.WriteString(out, r.Name); err != nil {
			return err
		}
		var ro uint8
		if r.ReadOnly {
			ro = 1
		}
		if err := binary.Write(out, binary.BigEndian, struct {
			Base, Size uint32
			ReadOnly   uint8
		}{r.Base, r.Size, ro}); err != nil {
			return err
		}
	}
	var addrs []uint32
	var pages []*Page
	_ = m.ForEachPage(func(addr uint32, page *Page) error {
		addrs = append(addrs, addr)
		pages = append(pages, page)
		return nil
	})
	if err := binary.Write(out, binary.BigEndian, uint32(len(pages))); err != nil {
		return err
	}
	for i, page := range pages {
		if err := binary.Write(out, binary.BigEndian, addrs[i]); err != nil {
			return err
		}
		if _, err := out.Write(page.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize replaces the memory with what Serialize wrote.
func (m *Memory) Deserialize(in io.Reader) error {
	*m = Memory{}
	var regionCount uint32
	if err := binary.Read(in, binary.BigEndian, &regionCount); err != nil {
		return err
	}
	for i := uint32(0); i < regionCount; i++ {
		var nameLen uint16
		if err := binary.Read(in, binary.BigEndian, &nameLen); err != nil {
			return err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(in, name); err != nil {
			return err
		}
		var hdr struct {
			Base, Size uint32
			ReadOnly   uint8
		}
		if err := binary.Read(in, binary.BigEndian, &hdr); err != nil {
			return err
		}
		if err := m.addRegion(Region{Name: string(name), Base: hdr.Base, Size: hdr.Size, ReadOnly: hdr.ReadOnly != 0}); err != nil {
			return err
		}
	}
	var pageCount uint32
	if err := binary.Read(in, binary.BigEndian, &pageCount); err != nil {
		return err
	}
	buf := make([]byte, PageSize)
	for i := uint32(0); i < pageCount; i++ {
		var addr uint32
		if err := binary.Read(in, binary.BigEndian, &addr); err != nil {
			return err
		}
		if _, err := io.ReadFull(in, buf); err != nil {
			return err
		}
		if err := m.restorePage(addr, buf); err != nil {
			return err
		}
	}
	return nil
}
