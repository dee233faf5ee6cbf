package memmap

// Compiled-in device descriptor. The target's flash layout is fixed
// hardware fact, not user-configurable policy, so it lives here as data
// rather than in pkg/config.
const (
	// ProgramStart and ProgramEnd bound the PROGRAM flash region, in
	// device address units.
	ProgramStart = 0xEC00
	ProgramEnd   = 0xFC00

	// ConfigStart and ConfigEnd bound the CONFIG word region.
	ConfigStart = 0xFFF8
	ConfigEnd   = 0x10000
)

// NewDeviceDescriptorMap returns a DeviceMap populated with the
// compiled-in device layout: one PROGRAM range and one CONFIG range.
func NewDeviceDescriptorMap() *DeviceMap {
	m := New()
	// AddRange cannot fail for the compiled-in layout: the two ranges
	// are of different kinds and never overlap.
	_, _ = m.AddRange(Program, ProgramEnd-ProgramStart, ProgramStart)
	_, _ = m.AddRange(Config, ConfigEnd-ConfigStart, ConfigStart)
	return m
}
