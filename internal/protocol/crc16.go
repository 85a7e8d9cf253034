package protocol

// crc16Table is the MSB-first table for polynomial 0x1021.
var crc16Table = makeCRC16Table(0x1021)

func makeCRC16Table(poly uint16) [256]uint16 {
	var t [256]uint16
	for i := range t {
		crc := uint16(i) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// CRC16 computes CRC-16/XMODEM (poly 0x1021, init 0, no reflection, no
// final xor).
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc<<8 ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}
