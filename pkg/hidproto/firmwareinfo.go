package hidproto

import "fmt"

// FirmwareInfo is the device's response to the FIRMWARE_INFO command.
// Unlike the GetData response, its fields are left-packed immediately
// after the command byte, not right-justified in a data field.
type FirmwareInfo struct {
	BootloaderVersion  uint16
	ApplicationVersion uint16
	SignatureAddress   uint32
	SignatureValue     uint16
	ErasePageSize      uint32
}

// decodeFirmwareInfo parses the FIRMWARE_INFO response frame:
// command(1) | bootloader_version(2) | application_version(2) |
// signature_address(4) | signature_value(2) | erase_page_size(4) | pad...
func decodeFirmwareInfo(raw []byte) (FirmwareInfo, error) {
	if len(raw) != InReportSize {
		return FirmwareInfo{}, fmt.Errorf("hidproto: firmware info frame is %d bytes, want %d", len(raw), InReportSize)
	}
	if Command(raw[0]) != FirmwareInfoCmd {
		return FirmwareInfo{}, &IncorrectCommandError{Got: Command(raw[0]), Want: FirmwareInfoCmd}
	}

	le16 := func(i int) uint16 { return uint16(raw[i]) | uint16(raw[i+1])<<8 }
	le32 := func(i int) uint32 {
		return uint32(raw[i]) | uint32(raw[i+1])<<8 | uint32(raw[i+2])<<16 | uint32(raw[i+3])<<24
	}

	return FirmwareInfo{
		BootloaderVersion:  le16(1),
		ApplicationVersion: le16(3),
		SignatureAddress:   le32(5),
		SignatureValue:     le16(9),
		ErasePageSize:      le32(11),
	}, nil
}
