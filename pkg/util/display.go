package util

import "fmt"

// HexDump renders data in address/hex/ASCII hex-dump format, for showing
// a memory range to an operator.
func HexDump(data []byte, startAddress uint32) string {
	const bytesPerLine = 16
	var out string

	for offset := 0; offset < len(data); offset += bytesPerLine {
		address := startAddress + uint32(offset)
		out += fmt.Sprintf("%06X: ", address)

		lineEnd := offset + bytesPerLine
		if lineEnd > len(data) {
			lineEnd = len(data)
		}

		for i := offset; i < lineEnd; i++ {
			out += fmt.Sprintf("%02X ", data[i])
		}
		for i := lineEnd; i < offset+bytesPerLine; i++ {
			out += "   "
		}

		out += " | "
		for i := offset; i < lineEnd; i++ {
			b := data[i]
			if b >= 32 && b <= 126 {
				out += string(rune(b))
			} else {
				out += "."
			}
		}
		out += "\n"
	}
	return out
}
