package vantage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/vantagepro2/pkg/crc16"
)

func TestPackDatetimeLayout(t *testing.T) {
	d := time.Date(2014, time.July, 8, 13, 45, 30, 0, time.Local)
	packed := PackDatetime(d)

	require.Len(t, packed, 8)
	assert.Equal(t, []byte{30, 45, 13, 8, 7, 114}, packed[:6])
	assert.True(t, crc16.Verify(packed))
}

func TestPackUnpackDatetimeRoundTrip(t *testing.T) {
	dates := []time.Time{
		time.Date(2001, time.January, 1, 1, 1, 1, 0, time.Local),
		time.Date(2014, time.July, 8, 13, 45, 30, 0, time.Local),
		time.Date(2099, time.December, 31, 23, 59, 59, 0, time.Local),
	}
	for _, d := range dates {
		packed := PackDatetime(d)
		got, err := UnpackDatetime(packed[:6])
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}

func TestUnpackDatetimeTooShort(t *testing.T) {
	_, err := UnpackDatetime([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadData)
}

func TestDmpDateTimeRoundTrip(t *testing.T) {
	dates := []time.Time{
		time.Date(2000, time.January, 1, 0, 0, 0, 0, time.Local),
		time.Date(2008, time.May, 1, 6, 1, 0, 0, time.Local),
		time.Date(2127, time.December, 31, 23, 59, 0, 0, time.Local),
	}
	for _, d := range dates {
		packed := PackDmpDateTime(d)
		require.Len(t, packed, 6)
		require.True(t, crc16.Verify(packed))

		date := uint16(packed[0]) | uint16(packed[1])<<8
		tod := uint16(packed[2]) | uint16(packed[3])<<8
		got, ok := UnpackDmpDateTime(date, tod)
		require.True(t, ok)
		assert.Equal(t, d, got)
	}
}

func TestUnpackDmpDateTimeKnownStamp(t *testing.T) {
	// day=1, month=5, year offset=8, time word 601 = 06:01.
	got, ok := UnpackDmpDateTime(0x10A1, 601)
	require.True(t, ok)
	assert.Equal(t, time.Date(2008, time.May, 1, 6, 1, 0, 0, time.Local), got)
}

func TestUnpackDmpDateTimeSentinel(t *testing.T) {
	_, ok := UnpackDmpDateTime(0xFFFF, 0xFFFF)
	assert.False(t, ok)

	// Only the full sentinel pair marks an unused slot.
	_, ok = UnpackDmpDateTime(0xFFFF, 0)
	assert.True(t, ok)
	_, ok = UnpackDmpDateTime(0, 0xFFFF)
	assert.True(t, ok)
}

func TestUnpackTimeOfDay(t *testing.T) {
	assert.Equal(t, "06:01", unpackTimeOfDay(601))
	assert.Equal(t, "18:45", unpackTimeOfDay(1845))
	assert.Equal(t, "00:00", unpackTimeOfDay(0))
}
