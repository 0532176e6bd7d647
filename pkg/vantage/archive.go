package vantage

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/chrissnell/vantagepro2/pkg/crc16"
)

const (
	// ArchiveRecordSize is the size of one Rev B archive slot.
	ArchiveRecordSize = 52

	// DmpHeaderSize is the size of the DMPAFT session header.
	DmpHeaderSize = 6

	// DmpPageSize is the size of one archive dump page: an index byte,
	// five archive slots, four reserved bytes and the CRC.
	DmpPageSize = 267

	// recordsPerPage is how many archive slots one dump page carries.
	recordsPerPage = 5
)

// ArchiveRecord is one decoded Rev B archive slot. Datetime is the zero
// time for an unused slot (sentinel date/time stamps); Empty reports that
// case. Temperatures are °F, barometer inches of mercury, ETHour inches.
// Rain fields stay in rain-collector clicks, matching the console.
type ArchiveRecord struct {
	Datetime time.Time

	TempOut    float64
	TempOutHi  float64
	TempOutLow float64
	RainRate   uint16
	RainRateHi uint16
	Barometer  float64
	SolarRad   uint16
	WindSamps  uint16
	TempIn     float64
	HumIn      uint8
	HumOut     uint8
	WindAvg    uint8
	WindHi     uint8
	WindHiDir  uint8
	WindAvgDir uint8
	UV         float64
	ETHour     float64
	SolarRadHi uint16
	UVHi       uint8

	ForecastRuleNo uint8
	RecType        uint8

	// Leaf, soil and extra temperatures arrive as bytes with a fixed
	// +90 °F storage offset, removed here.
	LeafTemps   [2]int
	LeafWetness [2]uint8
	SoilTemps   [4]int
	ExtraHum    [2]uint8
	ExtraTemps  [3]int
	SoilMoist   [4]uint8
}

// Empty reports whether the slot was unused (no record written yet).
func (r *ArchiveRecord) Empty() bool {
	return r.Datetime.IsZero()
}

// DecodeArchiveRecord decodes one 52-byte Rev B archive slot.
func DecodeArchiveRecord(slot []byte) (*ArchiveRecord, error) {
	if len(slot) < ArchiveRecordSize {
		return nil, fmt.Errorf("archive slot is %d bytes, need %d: %w", len(slot), ArchiveRecordSize, ErrBadData)
	}

	rec := &ArchiveRecord{}
	r := newFrameReader(slot[:ArchiveRecordSize], binary.LittleEndian)

	dateStamp := r.u16()
	timeStamp := r.u16()
	if t, ok := UnpackDmpDateTime(dateStamp, timeStamp); ok {
		rec.Datetime = t
	}

	rec.TempOut = float64(r.u16()) / 10
	rec.TempOutHi = float64(r.u16()) / 10
	rec.TempOutLow = float64(r.u16()) / 10
	rec.RainRate = r.u16()
	rec.RainRateHi = r.u16()
	rec.Barometer = float64(r.u16()) / 1000
	rec.SolarRad = r.u16()
	rec.WindSamps = r.u16()
	rec.TempIn = float64(r.u16()) / 10
	rec.HumIn = r.u8()
	rec.HumOut = r.u8()
	rec.WindAvg = r.u8()
	rec.WindHi = r.u8()
	rec.WindHiDir = r.u8()
	rec.WindAvgDir = r.u8()
	rec.UV = float64(r.u8()) / 10
	rec.ETHour = float64(r.u8()) / 1000
	rec.SolarRadHi = r.u16()
	rec.UVHi = r.u8()
	rec.ForecastRuleNo = r.u8()

	for i, b := range r.bytes(2) {
		rec.LeafTemps[i] = int(b) - 90
	}
	copy(rec.LeafWetness[:], r.bytes(2))
	for i, b := range r.bytes(4) {
		rec.SoilTemps[i] = int(b) - 90
	}
	rec.RecType = r.u8()
	copy(rec.ExtraHum[:], r.bytes(2))
	for i, b := range r.bytes(3) {
		rec.ExtraTemps[i] = int(b) - 90
	}
	copy(rec.SoilMoist[:], r.bytes(4))

	if err := r.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// DmpHeader is the 6-byte reply to an accepted DMPAFT start stamp: how many
// pages follow and at which slot of the first page the requested range
// begins.
type DmpHeader struct {
	Pages    uint16
	Offset   uint16
	CRCError bool
}

// DecodeDmpHeader decodes a DMPAFT session header.
func DecodeDmpHeader(frame []byte) (*DmpHeader, error) {
	if len(frame) < DmpHeaderSize {
		return nil, fmt.Errorf("dump header is %d bytes, need %d: %w", len(frame), DmpHeaderSize, ErrBadData)
	}
	frame = frame[:DmpHeaderSize]

	h := &DmpHeader{CRCError: !crc16.Verify(frame)}
	r := newFrameReader(frame, binary.LittleEndian)
	h.Pages = r.u16()
	h.Offset = r.u16()
	return h, r.Err()
}

// DmpPage is one 267-byte archive dump page. Records holds the five
// concatenated 52-byte archive slots; the page owns the copy.
type DmpPage struct {
	Index    uint8
	Records  []byte
	CRCError bool
}

// DecodeDmpPage decodes one archive dump page.
func DecodeDmpPage(frame []byte) (*DmpPage, error) {
	if len(frame) < DmpPageSize {
		return nil, fmt.Errorf("dump page is %d bytes, need %d: %w", len(frame), DmpPageSize, ErrBadData)
	}
	frame = frame[:DmpPageSize]

	p := &DmpPage{CRCError: !crc16.Verify(frame)}
	r := newFrameReader(frame, binary.LittleEndian)
	p.Index = r.u8()
	p.Records = append([]byte(nil), r.bytes(recordsPerPage*ArchiveRecordSize)...)
	// Four reserved bytes and the CRC complete the page.
	return p, r.Err()
}

// slot returns the i'th raw archive slot of the page, 0-based.
func (p *DmpPage) slot(i int) []byte {
	return p.Records[i*ArchiveRecordSize : (i+1)*ArchiveRecordSize]
}
