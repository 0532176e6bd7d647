// Package crc16 implements the CRC16-CCITT variant used by Davis Instruments
// consoles. The console appends the checksum big-endian, so a frame that
// includes its trailing CRC bytes checksums to zero when valid.
package crc16

const poly = 0x1021

var table [256]uint16

func init() {
	for i := range table {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
}

// Checksum computes the CRC16 of data, starting from zero.
func Checksum(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = table[(crc>>8)^uint16(b)] ^ (crc&0xFF)<<8
	}
	return crc
}

// WithChecksum returns data with its CRC16 appended as two big-endian bytes.
func WithChecksum(data []byte) []byte {
	crc := Checksum(data)
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, byte(crc>>8), byte(crc))
}

// Verify reports whether data, which must include its trailing checksum
// bytes, is intact. Valid frames checksum to zero; empty input is invalid.
func Verify(data []byte) bool {
	return len(data) != 0 && Checksum(data) == 0
}
