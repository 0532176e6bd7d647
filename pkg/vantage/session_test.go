package vantage

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/vantagepro2/pkg/crc16"
)

// fakeConn is a scripted transport: each Read serves from the front of the
// queued chunks, Writes are recorded. An exhausted script reads like a
// dead console.
type fakeConn struct {
	reads  [][]byte
	writes [][]byte
	closed bool
}

func (f *fakeConn) Read(p []byte) (int, error) {
	if len(f.reads) == 0 {
		return 0, io.EOF
	}
	chunk := f.reads[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		f.reads[0] = chunk[n:]
	} else {
		f.reads = f.reads[1:]
	}
	return n, nil
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func (f *fakeConn) wrote(data []byte) bool {
	for _, w := range f.writes {
		if bytes.Equal(w, data) {
			return true
		}
	}
	return false
}

func newTestConn(reads ...[]byte) (*Conn, *fakeConn) {
	f := &fakeConn{reads: reads}
	c := NewConn(f, nil)
	c.retryDelay = 0
	return c, f
}

func TestRetryBound(t *testing.T) {
	c, _ := newTestConn()

	attempts := 0
	boom := errors.New("boom")
	err := c.retry(func() error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, attempts)
}

func TestRetryRecovers(t *testing.T) {
	c, _ := newTestConn()

	attempts := 0
	err := c.retry(func() error {
		attempts++
		if attempts < 4 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 4, attempts)
}

func TestWakeUp(t *testing.T) {
	c, f := newTestConn([]byte("\n\r"))

	require.NoError(t, c.WakeUp())
	assert.True(t, f.wrote([]byte("\n")))
}

func TestWakeUpNoDevice(t *testing.T) {
	// Four attempts, each answered with garbage; each mismatch consumes
	// one extra realignment byte.
	c, f := newTestConn(
		[]byte("xx"), []byte("y"),
		[]byte("xx"), []byte("y"),
		[]byte("xx"), []byte("y"),
		[]byte("xx"), []byte("y"),
	)

	err := c.WakeUp()
	assert.ErrorIs(t, err, ErrNoDevice)

	wakes := 0
	for _, w := range f.writes {
		if bytes.Equal(w, []byte("\n")) {
			wakes++
		}
	}
	assert.Equal(t, 4, wakes)
}

func TestSendCommandBadAck(t *testing.T) {
	c, _ := newTestConn([]byte("!"), []byte("!"), []byte("!"), []byte("!"))

	err := c.sendCommand("TEST", ackStr)
	assert.ErrorIs(t, err, ErrBadAck)
}

func TestReadFromEEPROM(t *testing.T) {
	payload := []byte{30}
	c, f := newTestConn([]byte(ackStr), crc16.WithChecksum(payload))

	got, err := c.ReadFromEEPROM("2D", 1)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.True(t, f.wrote([]byte("EEBRD 2D 01\n")))
}

func TestReadFromEEPROMBadCRC(t *testing.T) {
	bad := crc16.WithChecksum([]byte{30})
	bad[0] ^= 0xFF

	var reads [][]byte
	for i := 0; i < 4; i++ {
		reads = append(reads, []byte(ackStr), append([]byte(nil), bad...))
	}
	c, _ := newTestConn(reads...)

	_, err := c.ReadFromEEPROM("2D", 1)
	assert.ErrorIs(t, err, ErrBadCRC)
}

func TestGetTime(t *testing.T) {
	want := time.Date(2021, time.March, 14, 15, 9, 26, 0, time.Local)
	c, f := newTestConn([]byte("\n\r"), []byte(ackStr), PackDatetime(want))

	got, err := c.GetTime()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, f.wrote([]byte("GETTIME\n")))
}

func TestSetTime(t *testing.T) {
	when := time.Date(2021, time.March, 14, 15, 9, 26, 0, time.Local)
	c, f := newTestConn([]byte("\n\r"), []byte(ackStr), []byte(ackStr))

	require.NoError(t, c.SetTime(when))
	assert.True(t, f.wrote([]byte("SETTIME\n")))
	assert.True(t, f.wrote(PackDatetime(when)))
}

func TestGetCurrentData(t *testing.T) {
	frame := buildLoopFrame(t)
	c, f := newTestConn([]byte("\n\r"), []byte(ackStr), frame)

	rec, err := c.GetCurrentData()
	require.NoError(t, err)
	assert.Equal(t, 30.0, rec.Barometer)
	assert.False(t, rec.Datetime.IsZero())
	assert.True(t, f.wrote([]byte("LOOP 1\n")))
}

func TestGetCurrentDataRevA(t *testing.T) {
	c, _ := newTestConn()
	c.revA, c.revB = true, false

	_, err := c.GetCurrentData()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestGetHiLows(t *testing.T) {
	frame := buildHiLowFrame(t)
	c, f := newTestConn([]byte("\n\r"), []byte(ackStr), frame)

	rec, err := c.GetHiLows()
	require.NoError(t, err)
	assert.Equal(t, 30.125, rec.DayHighBarometer)
	assert.True(t, f.wrote([]byte("HILOWS\n")))
}

func TestArchivePeriodCached(t *testing.T) {
	c, f := newTestConn([]byte(ackStr), crc16.WithChecksum([]byte{30}))

	period, err := c.ArchivePeriod()
	require.NoError(t, err)
	assert.Equal(t, 30, period)

	// Second call must be served from the cache: the script is empty.
	writes := len(f.writes)
	period, err = c.ArchivePeriod()
	require.NoError(t, err)
	assert.Equal(t, 30, period)
	assert.Equal(t, writes, len(f.writes))
}

func TestTimezone(t *testing.T) {
	c, _ := newTestConn([]byte(ackStr), crc16.WithChecksum([]byte{0x2C, 0x01, 0x01}))

	tz, err := c.Timezone()
	require.NoError(t, err)
	assert.Equal(t, "GMT+3.00", tz)
}

func TestTimezoneLocaltime(t *testing.T) {
	c, _ := newTestConn([]byte(ackStr), crc16.WithChecksum([]byte{0x00, 0x00, 0x00}))

	tz, err := c.Timezone()
	require.NoError(t, err)
	assert.Equal(t, "Localtime", tz)
}

func TestFirmwareVersion(t *testing.T) {
	c, _ := newTestConn([]byte("\n\r"), []byte(okStr), []byte("1.90\n\r"))

	ver, err := c.FirmwareVersion()
	require.NoError(t, err)
	assert.Equal(t, "1.90", ver)
}

func TestFirmwareDateAndRevision(t *testing.T) {
	c, _ := newTestConn([]byte("\n\r"), []byte(okStr), []byte("Apr 24 2002\n\r"))

	date, err := c.FirmwareDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2002, time.April, 24, 0, 0, 0, 0, time.UTC), date)

	// On-or-after the cutoff means Rev B.
	require.NoError(t, c.CheckRevision())
	assert.True(t, c.revB)
	assert.False(t, c.revA)
}

func TestCheckRevisionRevA(t *testing.T) {
	c, _ := newTestConn([]byte("\n\r"), []byte(okStr), []byte("Jan 15 2000\n\r"))

	require.NoError(t, c.CheckRevision())
	assert.True(t, c.revA)

	_, err := c.GetCurrentData()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestGetDiagnostics(t *testing.T) {
	c, _ := newTestConn([]byte("\n\r"), []byte(okStr), []byte("21629 15 0 3204 128\n\r"))

	d, err := c.GetDiagnostics()
	require.NoError(t, err)
	assert.Equal(t, 21629, d.TotalReceived)
	assert.Equal(t, 15, d.TotalMissed)
	assert.Equal(t, 0, d.Resyncs)
	assert.Equal(t, 3204, d.MaxReceived)
	assert.Equal(t, 128, d.CRCErrors)
}

func TestConnClose(t *testing.T) {
	c, f := newTestConn()
	require.NoError(t, c.Close())
	assert.True(t, f.closed)
}
