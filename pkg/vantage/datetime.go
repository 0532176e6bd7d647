package vantage

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/chrissnell/vantagepro2/pkg/crc16"
)

// The console uses two distinct compact datetime encodings: an 8-byte
// big-endian frame for the GETTIME/SETTIME clock commands, and a pair of
// bit-packed little-endian words for the archive-dump protocol.

// PackDatetime encodes t in the console clock format: second, minute, hour,
// day, month, year-1900 as single bytes, followed by a 2-byte CRC.
func PackDatetime(t time.Time) []byte {
	data := []byte{
		byte(t.Second()),
		byte(t.Minute()),
		byte(t.Hour()),
		byte(t.Day()),
		byte(t.Month()),
		byte(t.Year() - 1900),
	}
	return crc16.WithChecksum(data)
}

// UnpackDatetime decodes a console clock frame. Only the first six bytes are
// examined; the trailing CRC, if present, is the caller's concern.
func UnpackDatetime(data []byte) (time.Time, error) {
	if len(data) < 6 {
		return time.Time{}, fmt.Errorf("clock frame is %d bytes, need 6: %w", len(data), ErrBadData)
	}
	return time.Date(int(data[5])+1900, time.Month(data[4]), int(data[3]),
		int(data[2]), int(data[1]), int(data[0]), 0, time.Local), nil
}

// PackDmpDateTime encodes t as the DMPAFT start stamp: a date word with
// day in bits 0-4, month in bits 5-8 and year-2000 in bits 9-15, then a
// time word holding hour*100+minute, both little-endian, plus a 2-byte CRC.
func PackDmpDateTime(t time.Time) []byte {
	date := uint16(t.Day()) | uint16(t.Month())<<5 | uint16(t.Year()-2000)<<9
	tod := uint16(t.Hour()*100 + t.Minute())
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:2], date)
	binary.LittleEndian.PutUint16(data[2:4], tod)
	return crc16.WithChecksum(data)
}

// UnpackDmpDateTime decodes an archive record timestamp. The all-ones pair
// marks an unused archive slot and yields ok=false. Any other combination
// decodes without validation; the console is trusted on calendar sanity.
func UnpackDmpDateTime(date, tod uint16) (t time.Time, ok bool) {
	if date == 0xFFFF && tod == 0xFFFF {
		return time.Time{}, false
	}
	day := int(date & 0x1F)
	month := time.Month(date >> 5 & 0x0F)
	year := int(date>>9&0x7F) + 2000
	return time.Date(year, month, day, int(tod/100), int(tod%100), 0, 0, time.Local), true
}

// unpackTimeOfDay renders a packed HHMM integer (e.g. 601 for 6:01 AM) as a
// zero-padded "HH:MM" string.
func unpackTimeOfDay(v uint16) string {
	return fmt.Sprintf("%02d:%02d", v/100, v%100)
}
