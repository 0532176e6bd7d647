package vantage

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/vantagepro2/pkg/crc16"
)

// buildLoopFrame synthesizes a valid 99-byte LOOP frame with a handful of
// recognizable field values.
func buildLoopFrame(t *testing.T) []byte {
	t.Helper()

	data := make([]byte, 97)
	copy(data, "LOO")
	binary.LittleEndian.PutUint16(data[7:], 30000) // barometer 30.000 inHg
	binary.LittleEndian.PutUint16(data[9:], 723)   // inside temp 72.3 °F
	data[11] = 40                                  // inside humidity
	binary.LittleEndian.PutUint16(data[12:], 855)  // outside temp 85.5 °F
	data[14] = 7                                   // wind speed
	binary.LittleEndian.PutUint16(data[16:], 270)  // wind dir
	for i := 0; i < 7; i++ {
		data[18+i] = byte(101 + i) // extra temps 1-7
	}
	binary.LittleEndian.PutUint16(data[41:], 150)    // rain rate 1.50
	binary.LittleEndian.PutUint16(data[48:], 0x5088) // storm start 2008-5-1
	binary.LittleEndian.PutUint16(data[50:], 25)     // day rain 0.25
	binary.LittleEndian.PutUint16(data[56:], 12)     // day ET 0.012
	data[70] = 0b00000101                            // inside alarms
	binary.LittleEndian.PutUint16(data[87:], 512)    // battery 3.00 V
	binary.LittleEndian.PutUint16(data[91:], 601)    // sunrise 06:01
	binary.LittleEndian.PutUint16(data[93:], 1845)   // sunset 18:45
	copy(data[95:], "\n\r")

	frame := crc16.WithChecksum(data)
	require.Len(t, frame, LoopFrameSize)
	return frame
}

func TestDecodeLoop(t *testing.T) {
	now := time.Now()
	rec, err := DecodeLoop(buildLoopFrame(t), now)
	require.NoError(t, err)

	assert.False(t, rec.CRCError)
	assert.Equal(t, now, rec.Datetime)
	assert.Equal(t, 30.0, rec.Barometer)
	assert.Equal(t, 72.3, rec.TempIn)
	assert.Equal(t, uint8(40), rec.HumIn)
	assert.Equal(t, 85.5, rec.TempOut)
	assert.Equal(t, uint8(7), rec.WindSpeed)
	assert.Equal(t, uint16(270), rec.WindDir)
	assert.Equal(t, uint8(101), rec.ExtraTemp1)
	assert.Equal(t, uint8(107), rec.ExtraTemp7)
	assert.Equal(t, 1.5, rec.RainRate)
	assert.Equal(t, "2008-5-1", rec.StormStartDate)
	assert.Equal(t, 0.25, rec.RainDay)
	assert.Equal(t, 0.012, rec.ETDay)
	assert.Equal(t, 3.0, rec.BatteryVolts)
	assert.Equal(t, "06:01", rec.SunRise)
	assert.Equal(t, "18:45", rec.SunSet)
}

func TestDecodeLoopAlarmBits(t *testing.T) {
	rec, err := DecodeLoop(buildLoopFrame(t), time.Now())
	require.NoError(t, err)

	// Inside alarm byte is 0b00000101: falling bar trend and low temp.
	assert.True(t, rec.AlarmInFallBarTrend)
	assert.True(t, rec.AlarmInLowTemp)
	assert.False(t, rec.AlarmInRisBarTrend)
	assert.False(t, rec.AlarmInHighTemp)
	assert.False(t, rec.AlarmInLowHum)
	assert.False(t, rec.AlarmInHighHum)
	assert.False(t, rec.AlarmInTime)

	assert.False(t, rec.AlarmRainHighRate)
	assert.False(t, rec.AlarmOutLowTemp)
	for _, a := range rec.ExtraAlarms {
		assert.Equal(t, ExtraAlarm{}, a)
	}
	for _, a := range rec.SoilLeafAlarms {
		assert.Equal(t, SoilLeafAlarm{}, a)
	}
}

func TestDecodeLoopCRCError(t *testing.T) {
	frame := buildLoopFrame(t)
	frame[7] ^= 0xFF

	rec, err := DecodeLoop(frame, time.Now())
	require.NoError(t, err)
	assert.True(t, rec.CRCError)
}

func TestDecodeLoopShortFrame(t *testing.T) {
	_, err := DecodeLoop(make([]byte, 50), time.Now())
	assert.ErrorIs(t, err, ErrBadData)
}

func TestDecodeLoopDeterministic(t *testing.T) {
	frame := buildLoopFrame(t)
	now := time.Now()

	a, err := DecodeLoop(frame, now)
	require.NoError(t, err)
	b, err := DecodeLoop(frame, now)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnpackStormDate(t *testing.T) {
	// month=5, day=1, year offset=8.
	assert.Equal(t, "2008-5-1", unpackStormDate(0x5088))
	assert.Equal(t, "2021-12-31", unpackStormDate(12<<12|31<<7|21))
}
