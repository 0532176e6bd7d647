package vantage

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/chrissnell/vantagepro2/pkg/crc16"
)

// LoopFrameSize is the on-wire size of a Rev B LOOP packet, trailing CRC
// included.
const LoopFrameSize = 99

// LoopRecord is a decoded real-time (LOOP) snapshot. Scaled fields carry
// physical units: barometers in inches of mercury, temperatures in °F, rain
// in inches, evapotranspiration in inches, battery in volts. Sentinel raw
// values (0xFF / 0x7FFF / 0xFFFF dashed readings) are passed through
// unfiltered; callers decide what an absent sensor looks like.
type LoopRecord struct {
	Datetime time.Time
	CRCError bool

	BarTrend       uint8
	Barometer      float64
	TempIn         float64
	HumIn          uint8
	TempOut        float64
	WindSpeed      uint8
	WindSpeed10Min uint8
	WindDir        uint16

	ExtraTemp1 uint8
	ExtraTemp2 uint8
	ExtraTemp3 uint8
	ExtraTemp4 uint8
	ExtraTemp5 uint8
	ExtraTemp6 uint8
	ExtraTemp7 uint8
	SoilTemp1  uint8
	SoilTemp2  uint8
	SoilTemp3  uint8
	SoilTemp4  uint8
	LeafTemp1  uint8
	LeafTemp2  uint8
	LeafTemp3  uint8
	LeafTemp4  uint8

	HumOut    uint8
	HumExtra1 uint8
	HumExtra2 uint8
	HumExtra3 uint8
	HumExtra4 uint8
	HumExtra5 uint8
	HumExtra6 uint8
	HumExtra7 uint8

	RainRate       float64
	UV             uint8
	SolarRad       uint16
	RainStorm      float64
	StormStartDate string
	RainDay        float64
	RainMonth      float64
	RainYear       float64
	ETDay          float64
	ETMonth        float64
	ETYear         float64

	SoilMoist1   uint8
	SoilMoist2   uint8
	SoilMoist3   uint8
	SoilMoist4   uint8
	LeafWetness1 uint8
	LeafWetness2 uint8
	LeafWetness3 uint8
	LeafWetness4 uint8

	// Inside alarms, 7 bits used.
	AlarmInFallBarTrend bool
	AlarmInRisBarTrend  bool
	AlarmInLowTemp      bool
	AlarmInHighTemp     bool
	AlarmInLowHum       bool
	AlarmInHighHum      bool
	AlarmInTime         bool

	// Rain alarms, 5 bits used.
	AlarmRainHighRate   bool
	AlarmRain15Min      bool
	AlarmRain24Hour     bool
	AlarmRainStormTotal bool
	AlarmRainETDaily    bool

	// Outside alarms, 13 bits used across two bytes.
	AlarmOutLowTemp       bool
	AlarmOutHighTemp      bool
	AlarmOutWindSpeed     bool
	AlarmOut10MinAvgSpeed bool
	AlarmOutLowDewpoint   bool
	AlarmOutHighDewpoint  bool
	AlarmOutHighHeat      bool
	AlarmOutLowWindChill  bool
	AlarmOutHighTHSW      bool
	AlarmOutHighSolarRad  bool
	AlarmOutHighUV        bool
	AlarmOutUVDose        bool
	AlarmOutUVDoseEnabled bool

	// Per-channel extra temperature/humidity alarms, stations 1-7.
	ExtraAlarms [7]ExtraAlarm

	// Per-channel soil/leaf alarms, stations 1-4.
	SoilLeafAlarms [4]SoilLeafAlarm

	BatteryStatus  uint8
	BatteryVolts   float64
	ForecastIcon   uint8
	ForecastRuleNo uint8
	SunRise        string
	SunSet         string
}

// ExtraAlarm holds the alarm bits of one extra temperature/humidity station.
type ExtraAlarm struct {
	LowTemp  bool
	HighTemp bool
	LowHum   bool
	HighHum  bool
}

// SoilLeafAlarm holds the alarm bits of one soil/leaf station.
type SoilLeafAlarm struct {
	LowLeafWetness   bool
	HighLeafWetness  bool
	LowSoilMoisture  bool
	HighSoilMoisture bool
	LowLeafTemp      bool
	HighLeafTemp     bool
	LowSoilTemp      bool
	HighSoilTemp     bool
}

// DecodeLoop decodes a 99-byte Rev B LOOP frame. dtime is the wall-clock
// time of the request; the console does not echo its own clock in LOOP
// responses. A CRC residue only sets CRCError, it never aborts the decode.
func DecodeLoop(frame []byte, dtime time.Time) (*LoopRecord, error) {
	if len(frame) < LoopFrameSize {
		return nil, fmt.Errorf("LOOP frame is %d bytes, need %d: %w", len(frame), LoopFrameSize, ErrBadData)
	}
	frame = frame[:LoopFrameSize]

	rec := &LoopRecord{
		Datetime: dtime,
		CRCError: !crc16.Verify(frame),
	}

	r := newFrameReader(frame, binary.LittleEndian)
	r.skip(3) // "LOO" marker
	rec.BarTrend = r.u8()
	r.skip(1) // packet type
	r.skip(2) // next archive record pointer
	rec.Barometer = float64(r.u16()) / 1000
	rec.TempIn = float64(r.u16()) / 10
	rec.HumIn = r.u8()
	rec.TempOut = float64(r.u16()) / 10
	rec.WindSpeed = r.u8()
	rec.WindSpeed10Min = r.u8()
	rec.WindDir = r.u16()

	extraTemps := r.bytes(7)
	rec.ExtraTemp1, rec.ExtraTemp2, rec.ExtraTemp3 = extraTemps[0], extraTemps[1], extraTemps[2]
	rec.ExtraTemp4, rec.ExtraTemp5, rec.ExtraTemp6 = extraTemps[3], extraTemps[4], extraTemps[5]
	rec.ExtraTemp7 = extraTemps[6]
	soilTemps := r.bytes(4)
	rec.SoilTemp1, rec.SoilTemp2, rec.SoilTemp3, rec.SoilTemp4 = soilTemps[0], soilTemps[1], soilTemps[2], soilTemps[3]
	leafTemps := r.bytes(4)
	rec.LeafTemp1, rec.LeafTemp2, rec.LeafTemp3, rec.LeafTemp4 = leafTemps[0], leafTemps[1], leafTemps[2], leafTemps[3]

	rec.HumOut = r.u8()
	humExtra := r.bytes(7)
	rec.HumExtra1, rec.HumExtra2, rec.HumExtra3 = humExtra[0], humExtra[1], humExtra[2]
	rec.HumExtra4, rec.HumExtra5, rec.HumExtra6 = humExtra[3], humExtra[4], humExtra[5]
	rec.HumExtra7 = humExtra[6]

	rec.RainRate = float64(r.u16()) / 100
	rec.UV = r.u8()
	rec.SolarRad = r.u16()
	rec.RainStorm = float64(r.u16()) / 100
	rec.StormStartDate = unpackStormDate(r.u16())
	rec.RainDay = float64(r.u16()) / 100
	rec.RainMonth = float64(r.u16()) / 100
	rec.RainYear = float64(r.u16()) / 100
	rec.ETDay = float64(r.u16()) / 1000
	rec.ETMonth = float64(r.u16()) / 100
	rec.ETYear = float64(r.u16()) / 100

	soilMoist := r.bytes(4)
	rec.SoilMoist1, rec.SoilMoist2, rec.SoilMoist3, rec.SoilMoist4 = soilMoist[0], soilMoist[1], soilMoist[2], soilMoist[3]
	leafWetness := r.bytes(4)
	rec.LeafWetness1, rec.LeafWetness2, rec.LeafWetness3, rec.LeafWetness4 = leafWetness[0], leafWetness[1], leafWetness[2], leafWetness[3]

	alarmIn := r.u8()
	rec.AlarmInFallBarTrend = bit(alarmIn, 0)
	rec.AlarmInRisBarTrend = bit(alarmIn, 1)
	rec.AlarmInLowTemp = bit(alarmIn, 2)
	rec.AlarmInHighTemp = bit(alarmIn, 3)
	rec.AlarmInLowHum = bit(alarmIn, 4)
	rec.AlarmInHighHum = bit(alarmIn, 5)
	rec.AlarmInTime = bit(alarmIn, 6)

	alarmRain := r.u8()
	rec.AlarmRainHighRate = bit(alarmRain, 0)
	rec.AlarmRain15Min = bit(alarmRain, 1)
	rec.AlarmRain24Hour = bit(alarmRain, 2)
	rec.AlarmRainStormTotal = bit(alarmRain, 3)
	rec.AlarmRainETDaily = bit(alarmRain, 4)

	alarmOut := r.bytes(2)
	rec.AlarmOutLowTemp = bit(alarmOut[0], 0)
	rec.AlarmOutHighTemp = bit(alarmOut[0], 1)
	rec.AlarmOutWindSpeed = bit(alarmOut[0], 2)
	rec.AlarmOut10MinAvgSpeed = bit(alarmOut[0], 3)
	rec.AlarmOutLowDewpoint = bit(alarmOut[0], 4)
	rec.AlarmOutHighDewpoint = bit(alarmOut[0], 5)
	rec.AlarmOutHighHeat = bit(alarmOut[0], 6)
	rec.AlarmOutLowWindChill = bit(alarmOut[0], 7)
	rec.AlarmOutHighTHSW = bit(alarmOut[1], 0)
	rec.AlarmOutHighSolarRad = bit(alarmOut[1], 1)
	rec.AlarmOutHighUV = bit(alarmOut[1], 2)
	rec.AlarmOutUVDose = bit(alarmOut[1], 3)
	rec.AlarmOutUVDoseEnabled = bit(alarmOut[1], 4)

	alarmExtra := r.bytes(8)
	for i := 0; i < 7; i++ {
		// One byte per station 1-7; the eighth byte of the block is unused.
		b := alarmExtra[i]
		rec.ExtraAlarms[i] = ExtraAlarm{
			LowTemp:  bit(b, 0),
			HighTemp: bit(b, 1),
			LowHum:   bit(b, 2),
			HighHum:  bit(b, 3),
		}
	}

	alarmSoilLeaf := r.bytes(4)
	for i, b := range alarmSoilLeaf {
		rec.SoilLeafAlarms[i] = SoilLeafAlarm{
			LowLeafWetness:   bit(b, 0),
			HighLeafWetness:  bit(b, 1),
			LowSoilMoisture:  bit(b, 2),
			HighSoilMoisture: bit(b, 3),
			LowLeafTemp:      bit(b, 4),
			HighLeafTemp:     bit(b, 5),
			LowSoilTemp:      bit(b, 6),
			HighSoilTemp:     bit(b, 7),
		}
	}

	rec.BatteryStatus = r.u8()
	rec.BatteryVolts = float64(r.u16()) * 300 / 512 / 100
	rec.ForecastIcon = r.u8()
	rec.ForecastRuleNo = r.u8()
	rec.SunRise = unpackTimeOfDay(r.u16())
	rec.SunSet = unpackTimeOfDay(r.u16())
	// EOL marker and CRC bytes are framing, not data.

	if err := r.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// unpackStormDate decodes the packed storm start date word: month in bits
// 12-15, day in bits 7-11, year-2000 in bits 0-6. Rendered as "YYYY-M-D".
func unpackStormDate(w uint16) string {
	month := w >> 12 & 0x0F
	day := w >> 7 & 0x1F
	year := int(w&0x7F) + 2000
	return fmt.Sprintf("%d-%d-%d", year, month, day)
}
