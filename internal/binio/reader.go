// Package binio reads the big-endian primitives that make up Code42 archive
// structures. All multi-byte integers on disk are big-endian two's-complement.
//
// Two flavors are provided: Cursor walks an in-memory buffer and advances as
// it reads, and the package-level Read* functions consume an io.Reader (such
// as an *os.File at its current position). The Read* functions surface a
// short read as io.EOF when nothing was read and errors.ErrShortRead when a
// value was cut off partway, so callers can tell "no more records" from
// "truncated record". Cursor reports every short read, including one at the
// very end of its buffer, as errors.ErrShortRead; use Remaining to detect
// the end.
package binio

import (
	"encoding/binary"
	"io"

	"plango/internal/errors"
)

// Cursor reads big-endian values from an in-memory buffer, advancing an
// internal offset with every read.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor creates a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.off
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// Unread moves the cursor back n bytes. It panics if that would move before
// the start of the buffer; callers only ever unread what they just read.
func (c *Cursor) Unread(n int) {
	if n > c.off {
		panic("binio: unread past start of buffer")
	}
	c.off -= n
}

func (c *Cursor) take(n int) ([]byte, error) {
	if c.Remaining() < n {
		return nil, errors.ErrShortRead
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Int64 reads a big-endian int64.
func (c *Cursor) Int64() (int64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Int32 reads a big-endian int32.
func (c *Cursor) Int32() (int32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// Int16 reads a big-endian int16.
func (c *Cursor) Int16() (int16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

// Int8 reads a signed byte.
func (c *Cursor) Int8() (int8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// Uint8 reads an unsigned byte.
func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Bytes reads n bytes into a fresh slice.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadInt64 reads a big-endian int64 from r.
func ReadInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// ReadInt32 reads a big-endian int32 from r.
func ReadInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// ReadInt16 reads a big-endian int16 from r.
func ReadInt16(r io.Reader) (int16, error) {
	var b [2]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b[:])), nil
}

// ReadInt8 reads a signed byte from r.
func ReadInt8(r io.Reader) (int8, error) {
	var b [1]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// ReadUint8 reads an unsigned byte from r.
func ReadUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBytes reads exactly n bytes from r.
func ReadBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// readFull fills b from r. A clean end-of-stream before the first byte is
// reported as io.EOF; a partial fill is reported as ErrShortRead so that
// mid-value truncation is never mistaken for a normal end of iteration.
func readFull(r io.Reader, b []byte) error {
	n, err := io.ReadFull(r, b)
	switch {
	case err == nil:
		return nil
	case err == io.EOF && n == 0:
		return io.EOF
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return errors.ErrShortRead
	default:
		return err
	}
}
