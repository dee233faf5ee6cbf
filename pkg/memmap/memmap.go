// Package memmap models the target device's programmable memory as a set
// of typed address ranges, each backed by a host-side shadow buffer.
package memmap

import "fmt"

// Kind identifies a programmable memory region on the device.
type Kind int

const (
	// Program is the main application flash.
	Program Kind = iota
	// EEPROM is the device's data EEPROM.
	EEPROM
	// Config is the device configuration word region.
	Config
	// UserID is the device user-id row.
	UserID
)

func (k Kind) String() string {
	switch k {
	case Program:
		return "PROGRAM"
	case EEPROM:
		return "EEPROM"
	case Config:
		return "CONFIG"
	case UserID:
		return "USERID"
	default:
		return "UNKNOWN"
	}
}

// BytesPerAddress returns the number of host bytes that correspond to one
// device address unit, for the given region kind. The compiled-in
// descriptor only ever uses 1, but the arithmetic throughout this package
// is written generically so other values remain correct.
func BytesPerAddress(k Kind) uint32 {
	switch k {
	case Program, EEPROM, Config, UserID:
		return 1
	default:
		return 1
	}
}

// BytesPerWord returns the programming granularity for a region kind: the
// number of bytes that must be written together, never split across two
// packets.
func BytesPerWord(k Kind) uint32 {
	switch k {
	case Program:
		return 2
	default:
		return 1
	}
}

// erasedByte is the default value of an erased flash/EEPROM cell.
const erasedByte = 0xFF

// Range is one contiguous, typed address range and its host-side shadow
// buffer. Addresses are in device-address units (not bytes); Start is
// inclusive, End is exclusive.
type Range struct {
	Kind   Kind
	Start  uint32
	End    uint32
	Buffer []byte
}

// Location is the result of a successful Locate call.
type Location struct {
	Range         *Range
	Offset        int
	DeviceAddress uint32
	IsLastByte    bool
}

// DeviceMap is an ordered collection of Ranges. A DeviceMap exclusively
// owns its Ranges and their shadow buffers.
type DeviceMap struct {
	ranges []*Range
}

// New returns an empty DeviceMap.
func New() *DeviceMap {
	return &DeviceMap{}
}

// Ranges returns the ranges in the map, in the order they were added.
func (m *DeviceMap) Ranges() []*Range {
	return m.ranges
}

// AddRange appends a new range of addressCount device addresses of the
// given kind, starting at startAddress. The shadow buffer is allocated at
// addressCount*BytesPerAddress(kind) bytes and initialized to 0xFF. It is
// an error to add a range that overlaps an existing range of the same
// kind.
func (m *DeviceMap) AddRange(kind Kind, addressCount, startAddress uint32) (*Range, error) {
	end := startAddress + addressCount
	for _, r := range m.ranges {
		if r.Kind != kind {
			continue
		}
		if startAddress < r.End && end > r.Start {
			return nil, fmt.Errorf("memmap: range %s [0x%X,0x%X) overlaps existing range [0x%X,0x%X)",
				kind, startAddress, end, r.Start, r.End)
		}
	}

	buf := make([]byte, addressCount*BytesPerAddress(kind))
	for i := range buf {
		buf[i] = erasedByte
	}

	r := &Range{
		Kind:   kind,
		Start:  startAddress,
		End:    end,
		Buffer: buf,
	}
	m.ranges = append(m.ranges, r)
	return r, nil
}

// Clone returns a new DeviceMap with the same range layout as m (same
// kinds, starts, ends), but with freshly-allocated, erased (0xFF) shadow
// buffers. It does not copy m's buffer contents.
func (m *DeviceMap) Clone() *DeviceMap {
	clone := New()
	for _, r := range m.ranges {
		addressCount := r.End - r.Start
		// AddRange cannot fail here: the source map's ranges are
		// already known to be non-overlapping.
		_, _ = clone.AddRange(r.Kind, addressCount, r.Start)
	}
	return clone
}

// Locate maps a HEX-file linear byte address to its shadow-buffer
// location, trying PROGRAM and EEPROM kinds (CONFIG and USERID are never
// populated from a HEX file in the core programming flow). It returns
// ok=false if the address falls outside every range. Locate never
// mutates the map.
func (m *DeviceMap) Locate(hostLinearAddress uint32) (Location, bool) {
	for _, kind := range []Kind{Program, EEPROM} {
		bpa := BytesPerAddress(kind)
		deviceAddress := hostLinearAddress / bpa

		for _, r := range m.ranges {
			if r.Kind != kind {
				continue
			}
			if deviceAddress < r.Start || deviceAddress >= r.End {
				continue
			}

			offset := int((deviceAddress-r.Start)*bpa) + int(hostLinearAddress%bpa)
			isLast := deviceAddress == r.End-1 && hostLinearAddress%bpa == bpa-1

			return Location{
				Range:         r,
				Offset:        offset,
				DeviceAddress: deviceAddress,
				IsLastByte:    isLast,
			}, true
		}
	}
	return Location{}, false
}

// FindKind returns the first range of the given kind, or nil if none is
// present.
func (m *DeviceMap) FindKind(kind Kind) *Range {
	for _, r := range m.ranges {
		if r.Kind == kind {
			return r
		}
	}
	return nil
}
