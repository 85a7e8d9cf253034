package utils

import "strings"

const hexd = "0123456789ABCDEF"

// Hex4 formats a uint16 as four upper-case hex digits, e.g. "31C3".
func Hex4(v uint16) string {
	return string([]byte{
		hexd[(v>>12)&0xF],
		hexd[(v>>8)&0xF],
		hexd[(v>>4)&0xF],
		hexd[v&0xF],
	})
}

// BytesToHex converts a byte slice to an upper-case hex string.
func BytesToHex(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexd[x>>4], hexd[x&0x0F])
	}
	return string(out)
}

// HexDump renders b as rows of 16 space-separated bytes prefixed with the
// row offset. Used for upload bodies at debug level.
func HexDump(b []byte) string {
	var sb strings.Builder
	for off := 0; off < len(b); off += 16 {
		end := min(off+16, len(b))
		sb.WriteString(Hex4(uint16(off)))
		sb.WriteByte(':')
		for _, x := range b[off:end] {
			sb.WriteByte(' ')
			sb.WriteByte(hexd[x>>4])
			sb.WriteByte(hexd[x&0x0F])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
