package vantage

import (
	"fmt"
	"io"
	"net"
	"time"

	serial "github.com/tarm/goserial"
)

// The console speaks over a direct serial port or a WeatherLink IP
// serial-to-TCP bridge. Both transports present the same blocking
// read/write surface to the session.

// OpenSerial opens a serial console at the given device and baud rate.
func OpenSerial(device string, baud int) (io.ReadWriteCloser, error) {
	sc := &serial.Config{Name: device, Baud: baud}
	rwc, err := serial.OpenPort(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	return rwc, nil
}

// netTransport wraps a TCP connection with a per-read deadline, so a
// stalled console surfaces as a timeout error instead of blocking forever.
// A zero timeout disables the deadline.
type netTransport struct {
	conn        net.Conn
	readTimeout time.Duration
}

func (t *netTransport) Read(p []byte) (int, error) {
	if t.readTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return 0, err
		}
	}
	return t.conn.Read(p)
}

func (t *netTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *netTransport) Close() error {
	return t.conn.Close()
}

// DialNetwork connects to a networked console at host:port.
func DialNetwork(addr string, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr, err)
	}
	return &netTransport{conn: conn, readTimeout: readTimeout}, nil
}
