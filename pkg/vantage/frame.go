package vantage

import (
	"encoding/binary"
	"fmt"
)

// frameReader walks a fixed-layout binary frame field by field. Byte order
// is explicit per reader because the console mixes encodings: on-wire data
// is little-endian, the clock frames are big-endian. Reads past the end of
// the buffer record ErrBadData and return zero values.
type frameReader struct {
	buf   []byte
	off   int
	order binary.ByteOrder
	err   error
}

func newFrameReader(buf []byte, order binary.ByteOrder) *frameReader {
	return &frameReader{buf: buf, order: order}
}

func (r *frameReader) fail(n int) {
	if r.err == nil {
		r.err = fmt.Errorf("frame underrun: need %d bytes at offset %d of %d: %w",
			n, r.off, len(r.buf), ErrBadData)
	}
}

func (r *frameReader) u8() uint8 {
	if r.off+1 > len(r.buf) {
		r.fail(1)
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *frameReader) u16() uint16 {
	if r.off+2 > len(r.buf) {
		r.fail(2)
		return 0
	}
	v := r.order.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

// bytes returns the next n raw bytes without copying. Record decoders that
// retain the data must copy it so the record owns its buffer.
func (r *frameReader) bytes(n int) []byte {
	if r.off+n > len(r.buf) {
		r.fail(n)
		return make([]byte, n)
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v
}

func (r *frameReader) skip(n int) {
	if r.off+n > len(r.buf) {
		r.fail(n)
		return
	}
	r.off += n
}

func (r *frameReader) Err() error {
	return r.err
}

// bit reports whether bit pos (0 = least significant) of b is set.
func bit(b byte, pos uint) bool {
	return b>>pos&1 == 1
}
