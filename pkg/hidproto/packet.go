package hidproto

import "fmt"

// OutPacket is a fully-assembled outbound HID report: report id, command,
// a command-specific 32-bit address/payload field, a byte count, and the
// right-justified 58-byte data field.
//
// The data field is right-justified by design, not left-justified: for a
// payload of length L, data[0:58-L] are padding and data[58-L:58] hold
// the L payload bytes in device order. The bootloader firmware relies on
// the fixed trailing position of the last data byte; do not "fix" this by
// left-justifying.
type OutPacket struct {
	Command Command
	Address uint32
	Length  byte
	Data    [DataFieldSize]byte
}

// Encode renders p as the 65-byte wire frame to send to the device.
func (p OutPacket) Encode() [OutReportSize]byte {
	var out [OutReportSize]byte
	out[0] = outReportID
	out[1] = byte(p.Command)
	out[2] = byte(p.Address)
	out[3] = byte(p.Address >> 8)
	out[4] = byte(p.Address >> 16)
	out[5] = byte(p.Address >> 24)
	out[6] = p.Length
	copy(out[7:], p.Data[:])
	return out
}

// SetPayloadRightJustified copies data into p's data field right-justified:
// the last len(data) bytes of the field hold data, in order, and
// everything before is left untouched by this call (callers should pad
// explicitly per spec.md's short-packet promotion rule before calling, or
// rely on the field's zero-initialized state for a fresh packet).
func (p *OutPacket) SetPayloadRightJustified(data []byte) error {
	if len(data) > DataFieldSize {
		return fmt.Errorf("hidproto: payload of %d bytes exceeds %d-byte data field", len(data), DataFieldSize)
	}
	start := DataFieldSize - len(data)
	copy(p.Data[start:], data)
	return nil
}

// InPacket is a decoded inbound 64-byte HID report.
type InPacket struct {
	Command Command
	Address uint32
	Length  byte
	Data    [DataFieldSize]byte
}

// DecodeInPacket parses a raw 64-byte inbound report.
func DecodeInPacket(raw []byte) (InPacket, error) {
	if len(raw) != InReportSize {
		return InPacket{}, fmt.Errorf("hidproto: inbound report is %d bytes, want %d", len(raw), InReportSize)
	}
	var p InPacket
	p.Command = Command(raw[0])
	p.Address = uint32(raw[1]) | uint32(raw[2])<<8 | uint32(raw[3])<<16 | uint32(raw[4])<<24
	p.Length = raw[5]
	copy(p.Data[:], raw[6:])
	return p, nil
}

// Payload returns the Length meaningful bytes of the response's
// right-justified data field.
func (p InPacket) Payload() []byte {
	n := int(p.Length)
	if n > len(p.Data) {
		n = len(p.Data)
	}
	return p.Data[len(p.Data)-n:]
}
