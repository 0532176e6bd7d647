package vantage

import (
	"encoding/binary"
	"fmt"

	"github.com/chrissnell/vantagepro2/pkg/crc16"
)

// HiLowFrameSize is the on-wire size of a HILOWS response, trailing CRC
// included.
const HiLowFrameSize = 438

// HiLowRecord is a decoded hi/low extrema report. Barometers are scaled to
// inches of mercury, inside/outside temperatures to °F, rain rates to
// inches/hour, and every time-of-extreme field is rendered "HH:MM".
// Per-channel extrema (7 extra temperature stations plus 4 soil and 4 leaf
// stations share the 15-wide temperature arrays) are indexed in station
// order.
type HiLowRecord struct {
	CRCError bool

	DayLowBarometer   float64
	DayHighBarometer  float64
	MonthLowBarometer float64
	MonthHighBarometer float64
	YearLowBarometer  float64
	YearHighBarometer float64
	TimeDayLowBarometer  string
	TimeDayHighBarometer string

	DayHighWindSpeed     uint8
	TimeDayHighWindSpeed string
	MonthHighWindSpeed   uint8
	YearHighWindSpeed    uint8

	DayHighInTemp    float64
	DayLowInTemp     float64
	TimeDayHighInTemp string
	TimeDayLowInTemp  string
	MonthLowInTemp   float64
	MonthHighInTemp  float64
	YearLowInTemp    float64
	YearHighInTemp   float64

	DayHighInHum     uint8
	DayLowInHum      uint8
	TimeDayHighInHum string
	TimeDayLowInHum  string
	MonthHighInHum   uint8
	MonthLowInHum    uint8
	YearHighInHum    uint8
	YearLowInHum     uint8

	DayLowOutTemp     float64
	DayHighOutTemp    float64
	TimeDayLowOutTemp  string
	TimeDayHighOutTemp string
	MonthHighOutTemp  float64
	MonthLowOutTemp   float64
	YearHighOutTemp   float64
	YearLowOutTemp    float64

	DayLowDewPoint     uint16
	DayHighDewPoint    uint16
	TimeDayLowDewPoint  string
	TimeDayHighDewPoint string
	MonthHighDewPoint  uint16
	MonthLowDewPoint   uint16
	YearHighDewPoint   uint16
	YearLowDewPoint    uint16

	DayLowWindChill     uint16
	TimeDayLowWindChill string
	MonthLowWindChill   uint16
	YearLowWindChill    uint16

	DayHighHeat     uint16
	TimeDayHighHeat string
	MonthHighHeat   uint16
	YearHighHeat    uint16

	DayHighTHSW     uint16
	TimeDayHighTHSW string
	MonthHighTHSW   uint16
	YearHighTHSW    uint16

	DayHighSolarRad     uint16
	TimeDayHighSolarRad string
	MonthHighSolarRad   uint16
	YearHighSolarRad    uint16

	DayHighUV     uint8
	TimeDayHighUV string
	MonthHighUV   uint8
	YearHighUV    uint8

	DayHighRainRate     float64
	TimeDayHighRainRate string
	HourHighRainRate    float64
	MonthHighRainRate   float64
	YearHighRainRate    float64

	DayLowTemp      [15]float64
	DayHighTemp     [15]float64
	TimeDayLowTemp  [15]string
	TimeDayHighTemp [15]string
	MonthHighTemp   [15]float64
	MonthLowTemp    [15]float64
	YearHighTemp    [15]float64
	YearLowTemp     [15]float64

	DayLowHum      [8]uint8
	DayHighHum     [8]uint8
	TimeDayLowHum  [8]string
	TimeDayHighHum [8]string
	MonthHighHum   [8]uint8
	MonthLowHum    [8]uint8
	YearHighHum    [8]uint8
	YearLowHum     [8]uint8

	DayHighSoilMoist     [4]uint8
	TimeDayHighSoilMoist [4]string
	DayLowSoilMoist      [4]uint8
	TimeDayLowSoilMoist  [4]string
	MonthLowSoilMoist    [4]uint8
	MonthHighSoilMoist   [4]uint8
	YearLowSoilMoist     [4]uint8
	YearHighSoilMoist    [4]uint8

	DayHighLeafWetness     [4]uint8
	TimeDayHighLeafWetness [4]string
	DayLowLeafWetness      [4]uint8
	TimeDayLowLeafWetness  [4]string
	MonthLowLeafWetness    [4]uint8
	MonthHighLeafWetness   [4]uint8
	YearLowLeafWetness     [4]uint8
	YearHighLeafWetness    [4]uint8
}

// DecodeHiLows decodes a HILOWS response frame. A CRC residue only sets
// CRCError; field extraction proceeds regardless.
func DecodeHiLows(frame []byte) (*HiLowRecord, error) {
	if len(frame) < HiLowFrameSize {
		return nil, fmt.Errorf("HILOWS frame is %d bytes, need %d: %w", len(frame), HiLowFrameSize, ErrBadData)
	}
	frame = frame[:HiLowFrameSize]

	rec := &HiLowRecord{CRCError: !crc16.Verify(frame)}
	r := newFrameReader(frame, binary.LittleEndian)

	rec.DayLowBarometer = float64(r.u16()) / 1000
	rec.DayHighBarometer = float64(r.u16()) / 1000
	rec.MonthLowBarometer = float64(r.u16()) / 1000
	rec.MonthHighBarometer = float64(r.u16()) / 1000
	rec.YearLowBarometer = float64(r.u16()) / 1000
	rec.YearHighBarometer = float64(r.u16()) / 1000
	rec.TimeDayLowBarometer = unpackTimeOfDay(r.u16())
	rec.TimeDayHighBarometer = unpackTimeOfDay(r.u16())

	rec.DayHighWindSpeed = r.u8()
	rec.TimeDayHighWindSpeed = unpackTimeOfDay(r.u16())
	rec.MonthHighWindSpeed = r.u8()
	rec.YearHighWindSpeed = r.u8()

	rec.DayHighInTemp = float64(r.u16()) / 10
	rec.DayLowInTemp = float64(r.u16()) / 10
	rec.TimeDayHighInTemp = unpackTimeOfDay(r.u16())
	rec.TimeDayLowInTemp = unpackTimeOfDay(r.u16())
	rec.MonthLowInTemp = float64(r.u16()) / 10
	rec.MonthHighInTemp = float64(r.u16()) / 10
	rec.YearLowInTemp = float64(r.u16()) / 10
	rec.YearHighInTemp = float64(r.u16()) / 10

	rec.DayHighInHum = r.u8()
	rec.DayLowInHum = r.u8()
	rec.TimeDayHighInHum = unpackTimeOfDay(r.u16())
	rec.TimeDayLowInHum = unpackTimeOfDay(r.u16())
	rec.MonthHighInHum = r.u8()
	rec.MonthLowInHum = r.u8()
	rec.YearHighInHum = r.u8()
	rec.YearLowInHum = r.u8()

	rec.DayLowOutTemp = float64(r.u16()) / 10
	rec.DayHighOutTemp = float64(r.u16()) / 10
	rec.TimeDayLowOutTemp = unpackTimeOfDay(r.u16())
	rec.TimeDayHighOutTemp = unpackTimeOfDay(r.u16())
	rec.MonthHighOutTemp = float64(r.u16()) / 10
	rec.MonthLowOutTemp = float64(r.u16()) / 10
	rec.YearHighOutTemp = float64(r.u16()) / 10
	rec.YearLowOutTemp = float64(r.u16()) / 10

	rec.DayLowDewPoint = r.u16()
	rec.DayHighDewPoint = r.u16()
	rec.TimeDayLowDewPoint = unpackTimeOfDay(r.u16())
	rec.TimeDayHighDewPoint = unpackTimeOfDay(r.u16())
	rec.MonthHighDewPoint = r.u16()
	rec.MonthLowDewPoint = r.u16()
	rec.YearHighDewPoint = r.u16()
	rec.YearLowDewPoint = r.u16()

	rec.DayLowWindChill = r.u16()
	rec.TimeDayLowWindChill = unpackTimeOfDay(r.u16())
	rec.MonthLowWindChill = r.u16()
	rec.YearLowWindChill = r.u16()

	rec.DayHighHeat = r.u16()
	rec.TimeDayHighHeat = unpackTimeOfDay(r.u16())
	rec.MonthHighHeat = r.u16()
	rec.YearHighHeat = r.u16()

	rec.DayHighTHSW = r.u16()
	rec.TimeDayHighTHSW = unpackTimeOfDay(r.u16())
	rec.MonthHighTHSW = r.u16()
	rec.YearHighTHSW = r.u16()

	rec.DayHighSolarRad = r.u16()
	rec.TimeDayHighSolarRad = unpackTimeOfDay(r.u16())
	rec.MonthHighSolarRad = r.u16()
	rec.YearHighSolarRad = r.u16()

	rec.DayHighUV = r.u8()
	rec.TimeDayHighUV = unpackTimeOfDay(r.u16())
	rec.MonthHighUV = r.u8()
	rec.YearHighUV = r.u8()

	rec.DayHighRainRate = float64(r.u16()) / 100
	rec.TimeDayHighRainRate = unpackTimeOfDay(r.u16())
	rec.HourHighRainRate = float64(r.u16()) / 100
	rec.MonthHighRainRate = float64(r.u16()) / 100
	rec.YearHighRainRate = float64(r.u16()) / 100

	readTemps := func(dst *[15]float64) {
		for i, b := range r.bytes(15) {
			dst[i] = float64(b) / 10
		}
	}
	readTimes15 := func(dst *[15]string) {
		for i := range dst {
			dst[i] = unpackTimeOfDay(r.u16())
		}
	}
	readTemps(&rec.DayLowTemp)
	readTemps(&rec.DayHighTemp)
	readTimes15(&rec.TimeDayLowTemp)
	readTimes15(&rec.TimeDayHighTemp)
	readTemps(&rec.MonthHighTemp)
	readTemps(&rec.MonthLowTemp)
	readTemps(&rec.YearHighTemp)
	readTemps(&rec.YearLowTemp)

	readBytes8 := func(dst *[8]uint8) {
		copy(dst[:], r.bytes(8))
	}
	readTimes8 := func(dst *[8]string) {
		for i := range dst {
			dst[i] = unpackTimeOfDay(r.u16())
		}
	}
	readBytes8(&rec.DayLowHum)
	readBytes8(&rec.DayHighHum)
	readTimes8(&rec.TimeDayLowHum)
	readTimes8(&rec.TimeDayHighHum)
	readBytes8(&rec.MonthHighHum)
	readBytes8(&rec.MonthLowHum)
	readBytes8(&rec.YearHighHum)
	readBytes8(&rec.YearLowHum)

	readBytes4 := func(dst *[4]uint8) {
		copy(dst[:], r.bytes(4))
	}
	readTimes4 := func(dst *[4]string) {
		for i := range dst {
			dst[i] = unpackTimeOfDay(r.u16())
		}
	}
	readBytes4(&rec.DayHighSoilMoist)
	readTimes4(&rec.TimeDayHighSoilMoist)
	readBytes4(&rec.DayLowSoilMoist)
	readTimes4(&rec.TimeDayLowSoilMoist)
	readBytes4(&rec.MonthLowSoilMoist)
	readBytes4(&rec.MonthHighSoilMoist)
	readBytes4(&rec.YearLowSoilMoist)
	readBytes4(&rec.YearHighSoilMoist)

	readBytes4(&rec.DayHighLeafWetness)
	readTimes4(&rec.TimeDayHighLeafWetness)
	readBytes4(&rec.DayLowLeafWetness)
	readTimes4(&rec.TimeDayLowLeafWetness)
	readBytes4(&rec.MonthLowLeafWetness)
	readBytes4(&rec.MonthHighLeafWetness)
	readBytes4(&rec.YearLowLeafWetness)
	readBytes4(&rec.YearHighLeafWetness)

	// Only the trailing CRC bytes remain; Verify already covered them.
	if err := r.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}
