package hexfile

import (
	"fmt"
	"io"

	"github.com/robotfw/muriprog/pkg/memmap"
)

// maxDataRecordBytes is the payload width used when emitting DATA
// records; it has no bearing on the 58-byte HID packet payload limit,
// which is a property of pkg/hidproto, not of the file format.
const maxDataRecordBytes = 16

// Encode writes m's PROGRAM and EEPROM ranges to w as a canonical Intel
// HEX stream: an EXTENDED_LINEAR_ADDRESS record at the start of each range
// and wherever the upper 16 address bits change, DATA records of up to
// maxDataRecordBytes
// bytes, and a trailing END_OF_FILE record. It is the inverse of Load for
// the purpose of the round-trip testable property: parsing Encode's
// output into a fresh DeviceMap with the same layout yields byte-identical
// shadow buffers.
func Encode(w io.Writer, m *memmap.DeviceMap) error {
	for _, r := range m.Ranges() {
		if r.Kind != memmap.Program && r.Kind != memmap.EEPROM {
			continue
		}
		if err := encodeRange(w, r); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, ":00000001FF\n")
	return err
}

func encodeRange(w io.Writer, r *memmap.Range) error {
	bpa := memmap.BytesPerAddress(r.Kind)
	var lastUpperBase uint32 = ^uint32(0) // force an initial ELA record

	for off := 0; off < len(r.Buffer); off += maxDataRecordBytes {
		end := off + maxDataRecordBytes
		if end > len(r.Buffer) {
			end = len(r.Buffer)
		}
		chunk := r.Buffer[off:end]

		hostLinear := r.Start*bpa + uint32(off)
		upperBase := hostLinear &^ 0xFFFF
		if upperBase != lastUpperBase {
			if err := writeRecord(w, 2, 0, recExtendedLinearAddress, []byte{byte(upperBase >> 24), byte(upperBase >> 16)}); err != nil {
				return err
			}
			lastUpperBase = upperBase
		}

		if err := writeRecord(w, byte(len(chunk)), uint16(hostLinear&0xFFFF), recData, chunk); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(w io.Writer, byteCount byte, address uint16, recType recordType, payload []byte) error {
	sum := int(byteCount) + int(address>>8) + int(address&0xFF) + int(recType)
	for _, b := range payload {
		sum += int(b)
	}
	checksum := byte(-sum) & 0xFF

	if _, err := fmt.Fprintf(w, ":%02X%04X%02X", byteCount, address, recType); err != nil {
		return err
	}
	for _, b := range payload {
		if _, err := fmt.Fprintf(w, "%02X", b); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%02X\n", checksum)
	return err
}
