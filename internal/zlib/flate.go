// Package zlib provides abstractions on top of compress/zlib to work with
// Discord's method of compressing gateway websocket frames.
package zlib

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"io"

	"github.com/pkg/errors"
)

// MaxInflated caps the amount of decompressed bytes a single Flush will
// return. Discord frames are small; this only guards against a pathological
// or malicious peer streaming an unbounded flate payload.
const MaxInflated = 10 * 1024 * 1024 // 10 MiB

// Suffix is the 4-byte marker Discord appends to terminate a zlib-stream
// message. A message is only complete once it ends with this suffix.
var Suffix = [4]byte{'\x00', '\x00', '\xff', '\xff'}

// ErrPartial is unused by Inflator directly; reserved for callers that buffer
// frames themselves before handing them to Flush.
var ErrPartial = errors.New("only partial payload in buffer")

// ErrTooLarge is returned when an inflated frame exceeds MaxInflated.
var ErrTooLarge = errors.New("zlib: inflated payload exceeds maximum size")

type Reader interface {
	io.ReadCloser
	zlib.Resetter
}

func zlibStreamer(r flate.Reader) (Reader, error) {
	// verify header
	h := make([]byte, 2)

	if _, err := io.ReadFull(r, h); err != nil {
		return nil, err
	}

	// verify header
	if err := verifyHeader(h); err != nil {
		return nil, err
	}

	return flate.NewReader(r).(Reader), nil
}

// https://golang.org/src/compress/zlib/reader.go#L35
const zlibDeflate = 8

func verifyHeader(scratch []byte) error {
	h := uint(scratch[0])<<8 | uint(scratch[1])
	if (scratch[0]&0x0f != zlibDeflate) || (h%31 != 0) {
		return zlib.ErrHeader
	}
	return nil
}

// Inflator incrementally decompresses a stream of zlib-compressed frames. The
// gateway reuses a single flate stream across the lifetime of a connection,
// so the same Inflator must be fed every binary frame in order.
type Inflator struct {
	zlib Reader
	wbuf bytes.Buffer // compressed bytes not yet consumed by the flate reader
	rbuf bytes.Buffer // decompressed bytes pending Flush
}

func NewInflator() *Inflator {
	return &Inflator{}
}

// Write appends compressed bytes from a single frame to the internal buffer.
func (i *Inflator) Write(p []byte) (n int, err error) {
	return i.wbuf.Write(p)
}

// CanFlush reports whether the last Write completed a message, i.e. the
// written bytes end in Suffix.
func (i *Inflator) CanFlush() bool {
	if i.wbuf.Len() < 4 {
		return false
	}
	p := i.wbuf.Bytes()
	return bytes.Equal(p[len(p)-4:], Suffix[:])
}

// Flush decompresses everything written so far and returns the inflated
// bytes. It should only be called once CanFlush reports true.
func (i *Inflator) Flush() ([]byte, error) {
	defer i.rbuf.Reset()

	if i.zlib == nil {
		r, err := zlibStreamer(&i.wbuf)
		if err != nil {
			return nil, errors.Wrap(err, "failed to make a FLATE reader")
		}
		i.zlib = r
	}

	n, err := i.rbuf.ReadFrom(io.LimitReader(i.zlib, MaxInflated+1))
	if err != nil {
		// ErrUnexpectedEOF happens because zlib tries to find the last 4
		// bytes to verify checksum. Discord doesn't send this.
		return nil, errors.Wrap(err, "failed to read from FLATE reader")
	}
	if n > MaxInflated {
		return nil, ErrTooLarge
	}

	return bytecopy(i.rbuf.Bytes()), nil
}

func bytecopy(p []byte) []byte {
	cpy := make([]byte, len(p))
	copy(cpy, p)
	return cpy
}
