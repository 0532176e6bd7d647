package vantage

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/vantagepro2/pkg/crc16"
)

// buildArchiveSlot synthesizes a 52-byte archive slot stamped with ts, or an
// unused slot when ts is the zero time.
func buildArchiveSlot(ts time.Time) []byte {
	slot := make([]byte, ArchiveRecordSize)
	if ts.IsZero() {
		binary.LittleEndian.PutUint16(slot[0:], 0xFFFF)
		binary.LittleEndian.PutUint16(slot[2:], 0xFFFF)
		return slot
	}
	stamp := PackDmpDateTime(ts)
	copy(slot[0:4], stamp[:4])
	return slot
}

func TestDecodeArchiveRecord(t *testing.T) {
	slot := buildArchiveSlot(time.Time{})
	binary.LittleEndian.PutUint16(slot[0:], 0x10A1) // 2008-05-01
	binary.LittleEndian.PutUint16(slot[2:], 601)    // 06:01
	binary.LittleEndian.PutUint16(slot[4:], 755)    // out temp 75.5
	binary.LittleEndian.PutUint16(slot[10:], 3)     // rain rate, raw clicks
	binary.LittleEndian.PutUint16(slot[14:], 29876) // barometer 29.876
	binary.LittleEndian.PutUint16(slot[20:], 701)   // in temp 70.1
	slot[22] = 35                                   // inside humidity
	slot[28] = 12                                   // UV 1.2
	slot[29] = 3                                    // ET 0.003
	slot[34] = 110                                  // leaf temp 1: 20 °F
	slot[38] = 100                                  // soil temp 1: 10 °F
	slot[45] = 90                                   // extra temp 1: 0 °F

	rec, err := DecodeArchiveRecord(slot)
	require.NoError(t, err)

	assert.False(t, rec.Empty())
	assert.Equal(t, time.Date(2008, time.May, 1, 6, 1, 0, 0, time.Local), rec.Datetime)
	assert.Equal(t, 75.5, rec.TempOut)
	assert.Equal(t, uint16(3), rec.RainRate)
	assert.Equal(t, 29.876, rec.Barometer)
	assert.Equal(t, 70.1, rec.TempIn)
	assert.Equal(t, uint8(35), rec.HumIn)
	assert.Equal(t, 1.2, rec.UV)
	assert.Equal(t, 0.003, rec.ETHour)
	assert.Equal(t, 20, rec.LeafTemps[0])
	assert.Equal(t, 10, rec.SoilTemps[0])
	assert.Equal(t, 0, rec.ExtraTemps[0])
	assert.Equal(t, -90, rec.SoilTemps[1]) // untouched byte decodes offset
}

func TestDecodeArchiveRecordSentinel(t *testing.T) {
	rec, err := DecodeArchiveRecord(buildArchiveSlot(time.Time{}))
	require.NoError(t, err)
	assert.True(t, rec.Empty())
}

func TestDecodeArchiveRecordShort(t *testing.T) {
	_, err := DecodeArchiveRecord(make([]byte, 20))
	assert.ErrorIs(t, err, ErrBadData)
}

func TestDecodeDmpHeader(t *testing.T) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:], 17)
	binary.LittleEndian.PutUint16(data[2:], 3)
	frame := crc16.WithChecksum(data)

	h, err := DecodeDmpHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(17), h.Pages)
	assert.Equal(t, uint16(3), h.Offset)
	assert.False(t, h.CRCError)

	frame[0] ^= 0x01
	h, err = DecodeDmpHeader(frame)
	require.NoError(t, err)
	assert.True(t, h.CRCError)
}

func TestDecodeDmpHeaderShort(t *testing.T) {
	_, err := DecodeDmpHeader([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadData)
}

func TestDecodeDmpPage(t *testing.T) {
	data := make([]byte, DmpPageSize-2)
	data[0] = 9
	for i := 0; i < recordsPerPage; i++ {
		copy(data[1+i*ArchiveRecordSize:], buildArchiveSlot(time.Time{}))
	}
	frame := crc16.WithChecksum(data)
	require.Len(t, frame, DmpPageSize)

	p, err := DecodeDmpPage(frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(9), p.Index)
	assert.Len(t, p.Records, recordsPerPage*ArchiveRecordSize)
	assert.False(t, p.CRCError)

	// The page owns its record block.
	frame[1] ^= 0xFF
	assert.NotEqual(t, frame[1], p.Records[0])
}

func TestDecodeDmpPageShort(t *testing.T) {
	_, err := DecodeDmpPage(make([]byte, 100))
	assert.ErrorIs(t, err, ErrBadData)
}
