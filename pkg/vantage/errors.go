package vantage

import "errors"

// Sentinel errors returned by the protocol core. Operations wrap these with
// fmt.Errorf("...: %w", ...) so callers can test with errors.Is.
var (
	// ErrNoDevice means the console never acknowledged a wake-up.
	ErrNoDevice = errors.New("vantage: no device detected")

	// ErrBadAck means the console replied with something other than the
	// expected acknowledgement.
	ErrBadAck = errors.New("vantage: bad acknowledgement")

	// ErrBadCRC means a CRC-framed payload failed checksum validation.
	ErrBadCRC = errors.New("vantage: bad CRC")

	// ErrBadData means a frame was shorter than its declared layout.
	ErrBadData = errors.New("vantage: bad data")

	// ErrUnsupportedFormat means the station uses the pre-2002 Rev A
	// record layout, which this driver does not implement.
	ErrUnsupportedFormat = errors.New("vantage: unsupported record format")
)
