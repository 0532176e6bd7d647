package vantage

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/vantagepro2/pkg/crc16"
)

// Console wire constants.
const (
	wakeStr = "\n"
	wakeAck = "\n\r"
	ackStr  = "\x06"
	nackStr = "\x21"
	doneStr = "DONE\n\r"
	okStr   = "\n\rOK\n\r"

	cancelByte = 0x18
	escByte    = 0x1B
)

// revBCutoff is the firmware date that introduced the Rev B record layout.
var revBCutoff = time.Date(2002, time.April, 24, 0, 0, 0, 0, time.UTC)

// Conn is a session with a Vantage Pro2 console over an open transport.
// The protocol is strictly sequential request/response with no multiplexing,
// so a Conn must not be used from more than one goroutine at a time; callers
// needing shared access serialize it themselves.
type Conn struct {
	rwc    io.ReadWriteCloser
	logger *zap.SugaredLogger

	// Record layout revision, fixed by firmware date. Rev A (pre-2002)
	// is detected but not implemented.
	revA bool
	revB bool

	retryDelay time.Duration

	// Console properties are expensive round-trips and never change
	// within a session, so they are fetched once and memoized by name.
	props map[string]interface{}
}

// NewConn wraps an open console transport. The transport's reads must block
// no longer than its configured timeout and may return fewer bytes than
// requested when it expires.
func NewConn(rwc io.ReadWriteCloser, logger *zap.SugaredLogger) *Conn {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Conn{
		rwc:        rwc,
		logger:     logger,
		revB:       true,
		retryDelay: time.Second,
		props:      make(map[string]interface{}),
	}
}

// Close closes the underlying transport.
func (c *Conn) Close() error {
	return c.rwc.Close()
}

func (c *Conn) write(p []byte) error {
	if _, err := c.rwc.Write(p); err != nil {
		return fmt.Errorf("error writing to console: %w", err)
	}
	return nil
}

func (c *Conn) writeByte(b byte) error {
	return c.write([]byte{b})
}

// readFull reads exactly n bytes. A zero-length read means the transport
// timed out mid-frame; that is a framing error, never padded or retried
// here.
func (c *Conn) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	read := 0
	for read < n {
		nn, err := c.rwc.Read(buf[read:])
		if err != nil {
			return nil, fmt.Errorf("error reading from console (%d of %d bytes): %w", read, n, err)
		}
		if nn == 0 {
			return nil, fmt.Errorf("short read (%d of %d bytes): %w", read, n, ErrBadData)
		}
		read += nn
	}
	return buf, nil
}

// readLine reads byte-at-a-time until the console's "\n\r" terminator.
func (c *Conn) readLine() (string, error) {
	var response []byte
	buf := make([]byte, 1)
	for {
		n, err := c.rwc.Read(buf)
		if err != nil {
			return "", fmt.Errorf("error reading line from console: %w", err)
		}
		if n == 0 {
			return "", fmt.Errorf("console reply never terminated: %w", ErrBadData)
		}
		response = append(response, buf[0])
		if len(response) >= 2 && string(response[len(response)-2:]) == "\n\r" {
			return string(response[:len(response)-2]), nil
		}
	}
}

// WakeUp rouses the console from its power-saving state by sending a line
// feed and expecting "\n\r" back. On a mismatch one extra byte is consumed
// first: the console sometimes leaves a stray byte in the serial buffer and
// the discard realigns the stream for the next attempt.
func (c *Conn) WakeUp() error {
	return c.retry(func() error {
		if err := c.write([]byte(wakeStr)); err != nil {
			return err
		}
		buf, err := c.readFull(len(wakeAck))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		if string(buf) == wakeAck {
			c.logger.Debug("console is awake")
			return nil
		}
		b := make([]byte, 1)
		c.rwc.Read(b)
		return fmt.Errorf("%w: unexpected wake reply %q", ErrNoDevice, buf)
	})
}

// sendCommand writes an ASCII command (line feed appended) and, when
// wantAck is non-empty, requires the console to echo exactly that
// acknowledgement.
func (c *Conn) sendCommand(cmd string, wantAck string) error {
	return c.sendBytes([]byte(cmd+"\n"), wantAck)
}

// sendBytes writes raw data and checks the expected acknowledgement.
func (c *Conn) sendBytes(data []byte, wantAck string) error {
	return c.retry(func() error {
		if err := c.write(data); err != nil {
			return err
		}
		if wantAck == "" {
			return nil
		}
		got, err := c.readFull(len(wantAck))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadAck, err)
		}
		if string(got) != wantAck {
			return fmt.Errorf("%w: expected %x, got %x", ErrBadAck, wantAck, got)
		}
		return nil
	})
}

// ReadFromEEPROM reads size bytes of console configuration starting at the
// given hex address, validating the CRC-framed reply. The returned payload
// has the CRC bytes stripped.
func (c *Conn) ReadFromEEPROM(hexAddress string, size int) ([]byte, error) {
	var payload []byte
	err := c.retry(func() error {
		if err := c.write([]byte(fmt.Sprintf("EEBRD %s %02d\n", hexAddress, size))); err != nil {
			return err
		}
		ack, err := c.readFull(len(ackStr))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadAck, err)
		}
		if string(ack) != ackStr {
			return fmt.Errorf("%w: EEBRD not acknowledged (%x)", ErrBadAck, ack)
		}
		data, err := c.readFull(size + 2)
		if err != nil {
			return err
		}
		if !crc16.Verify(data) {
			return fmt.Errorf("EEPROM read at %s: %w", hexAddress, ErrBadCRC)
		}
		payload = data[:size]
		return nil
	})
	return payload, err
}

// GetTime returns the console's current clock.
func (c *Conn) GetTime() (time.Time, error) {
	if err := c.WakeUp(); err != nil {
		return time.Time{}, err
	}
	if err := c.sendCommand("GETTIME", ackStr); err != nil {
		return time.Time{}, err
	}
	data, err := c.readFull(8)
	if err != nil {
		return time.Time{}, err
	}
	return UnpackDatetime(data)
}

// SetTime sets the console clock to t.
func (c *Conn) SetTime(t time.Time) error {
	if err := c.WakeUp(); err != nil {
		return err
	}
	if err := c.sendCommand("SETTIME", ackStr); err != nil {
		return err
	}
	return c.sendBytes(PackDatetime(t), ackStr)
}

// GetCurrentData fetches one real-time snapshot via LOOP 1, stamped with
// the wall-clock time of the call.
func (c *Conn) GetCurrentData() (*LoopRecord, error) {
	if !c.revB {
		return nil, fmt.Errorf("rev A LOOP layout: %w", ErrUnsupportedFormat)
	}
	if err := c.WakeUp(); err != nil {
		return nil, err
	}
	if err := c.sendCommand("LOOP 1", ackStr); err != nil {
		return nil, err
	}
	frame, err := c.readFull(LoopFrameSize)
	if err != nil {
		return nil, err
	}
	return DecodeLoop(frame, time.Now())
}

// GetHiLows fetches the console's running extrema report.
func (c *Conn) GetHiLows() (*HiLowRecord, error) {
	if err := c.WakeUp(); err != nil {
		return nil, err
	}
	if err := c.sendCommand("HILOWS", ackStr); err != nil {
		return nil, err
	}
	frame, err := c.readFull(HiLowFrameSize)
	if err != nil {
		return nil, err
	}
	return DecodeHiLows(frame)
}

// cached memoizes a console property for the life of the session. The cache
// is only invalidated by reconstructing the Conn.
func (c *Conn) cached(name string, fill func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.props[name]; ok {
		return v, nil
	}
	v, err := fill()
	if err != nil {
		return nil, err
	}
	c.props[name] = v
	return v, nil
}

// ArchivePeriod returns the console's archive interval in minutes.
func (c *Conn) ArchivePeriod() (int, error) {
	v, err := c.cached("archive_period", func() (interface{}, error) {
		data, err := c.ReadFromEEPROM("2D", 1)
		if err != nil {
			return nil, err
		}
		return int(data[0]), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Timezone returns the console's timezone setting, either a "GMT+hh.mm"
// offset or "Localtime".
func (c *Conn) Timezone() (string, error) {
	v, err := c.cached("timezone", func() (interface{}, error) {
		data, err := c.ReadFromEEPROM("14", 3)
		if err != nil {
			return nil, err
		}
		offset := uint16(data[0]) | uint16(data[1])<<8
		if data[2] == 1 {
			return fmt.Sprintf("GMT+%.2f", float64(offset)/100), nil
		}
		return "Localtime", nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// FirmwareVersion returns the console firmware version string (NVER).
func (c *Conn) FirmwareVersion() (string, error) {
	v, err := c.cached("firmware_version", func() (interface{}, error) {
		if err := c.WakeUp(); err != nil {
			return nil, err
		}
		if err := c.sendCommand("NVER", okStr); err != nil {
			return nil, err
		}
		data, err := c.readFull(6)
		if err != nil {
			return nil, err
		}
		return strings.Trim(string(data), "\n\r"), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// FirmwareDate returns the console firmware date code (VER).
func (c *Conn) FirmwareDate() (time.Time, error) {
	v, err := c.cached("firmware_date", func() (interface{}, error) {
		if err := c.WakeUp(); err != nil {
			return nil, err
		}
		if err := c.sendCommand("VER", okStr); err != nil {
			return nil, err
		}
		data, err := c.readFull(13)
		if err != nil {
			return nil, err
		}
		date, err := time.Parse("Jan 2 2006", strings.Trim(string(data), "\n\r"))
		if err != nil {
			return nil, fmt.Errorf("unparseable firmware date %q: %w", data, err)
		}
		return date, nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return v.(time.Time), nil
}

// Diagnostics is the console's receiver statistics report.
type Diagnostics struct {
	TotalReceived int
	TotalMissed   int
	Resyncs       int
	MaxReceived   int
	CRCErrors     int
}

// GetDiagnostics returns the RXCHECK receiver diagnostics counters.
func (c *Conn) GetDiagnostics() (*Diagnostics, error) {
	v, err := c.cached("diagnostics", func() (interface{}, error) {
		if err := c.WakeUp(); err != nil {
			return nil, err
		}
		if err := c.sendCommand("RXCHECK", okStr); err != nil {
			return nil, err
		}
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, fmt.Errorf("unexpected RXCHECK reply %q: %w", line, ErrBadData)
		}
		counters := make([]int, 5)
		for i, f := range fields {
			counters[i], err = strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("unparseable RXCHECK counter %q: %w", f, ErrBadData)
			}
		}
		return &Diagnostics{
			TotalReceived: counters[0],
			TotalMissed:   counters[1],
			Resyncs:       counters[2],
			MaxReceived:   counters[3],
			CRCErrors:     counters[4],
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Diagnostics), nil
}

// CheckRevision fixes the session's record layout revision from the
// firmware date. Firmware older than April 24, 2002 uses the Rev A layout,
// which this driver reports as unsupported when exercised.
func (c *Conn) CheckRevision() error {
	date, err := c.FirmwareDate()
	if err != nil {
		return err
	}
	c.revA = date.Before(revBCutoff)
	c.revB = !c.revA
	if c.revA {
		c.logger.Warnf("console firmware dated %s uses the unsupported Rev A record layout", date.Format("2006-01-02"))
	}
	return nil
}
