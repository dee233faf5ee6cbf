package util

import "hash/crc32"

// LoadChecksum computes a CRC-32 (IEEE) checksum of a loaded HEX image's
// shadow buffer, for the CLI's load-summary diagnostic. It is a
// convenience check for operators comparing two builds, not part of the
// device protocol.
func LoadChecksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
