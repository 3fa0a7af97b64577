package binio

import (
	"bytes"
	"io"
	"testing"

	"plango/internal/errors"
)

func TestCursorRoundTrip(t *testing.T) {
	// Encoded by hand: int64, int32, int16, int8, uint8 back to back.
	buf := []byte{
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFE, // -2
		0x00, 0x00, 0x01, 0x00, // 256
		0x80, 0x00, // -32768
		0xFF,       // -1
		0x80,       // 128
		0xAA, 0xBB, // trailing bytes
	}

	c := NewCursor(buf)

	v64, err := c.Int64()
	if err != nil || v64 != -2 {
		t.Fatalf("Int64() = %d, %v; want -2, nil", v64, err)
	}
	if c.Offset() != 8 {
		t.Errorf("Offset after int64 = %d; want 8", c.Offset())
	}

	v32, err := c.Int32()
	if err != nil || v32 != 256 {
		t.Fatalf("Int32() = %d, %v; want 256, nil", v32, err)
	}

	v16, err := c.Int16()
	if err != nil || v16 != -32768 {
		t.Fatalf("Int16() = %d, %v; want -32768, nil", v16, err)
	}

	v8, err := c.Int8()
	if err != nil || v8 != -1 {
		t.Fatalf("Int8() = %d, %v; want -1, nil", v8, err)
	}

	u8, err := c.Uint8()
	if err != nil || u8 != 128 {
		t.Fatalf("Uint8() = %d, %v; want 128, nil", u8, err)
	}

	rest, err := c.Bytes(2)
	if err != nil || !bytes.Equal(rest, []byte{0xAA, 0xBB}) {
		t.Fatalf("Bytes(2) = %x, %v; want aabb, nil", rest, err)
	}

	if c.Remaining() != 0 {
		t.Errorf("Remaining = %d; want 0", c.Remaining())
	}
	if c.Offset() != len(buf) {
		t.Errorf("Offset = %d; want %d (sum of widths)", c.Offset(), len(buf))
	}
}

func TestCursorShortRead(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02})
	if _, err := c.Int32(); !errors.Is(err, errors.ErrShortRead) {
		t.Errorf("Int32 on 2 bytes = %v; want ErrShortRead", err)
	}
	// A failed read must not advance the cursor.
	if c.Offset() != 0 {
		t.Errorf("Offset after failed read = %d; want 0", c.Offset())
	}
}

func TestCursorUnread(t *testing.T) {
	c := NewCursor([]byte{0x10, 0x92, 0x00, 0x01})
	v, err := c.Int16()
	if err != nil || v != 4242 {
		t.Fatalf("Int16() = %d, %v; want 4242, nil", v, err)
	}
	c.Unread(2)
	if c.Offset() != 0 {
		t.Fatalf("Offset after Unread = %d; want 0", c.Offset())
	}
	v2, _ := c.Int16()
	if v2 != v {
		t.Errorf("re-read after Unread = %d; want %d", v2, v)
	}
}

func TestReaderRoundTrip(t *testing.T) {
	buf := []byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00, // 1024
		0xFF, 0xFF, 0xFF, 0xFF, // -1
		0x10, 0x92, // 4242
	}
	r := bytes.NewReader(buf)

	v64, err := ReadInt64(r)
	if err != nil || v64 != 1024 {
		t.Fatalf("ReadInt64 = %d, %v; want 1024, nil", v64, err)
	}
	v32, err := ReadInt32(r)
	if err != nil || v32 != -1 {
		t.Fatalf("ReadInt32 = %d, %v; want -1, nil", v32, err)
	}
	v16, err := ReadInt16(r)
	if err != nil || v16 != 4242 {
		t.Fatalf("ReadInt16 = %d, %v; want 4242, nil", v16, err)
	}
}

func TestReaderEOFVersusShortRead(t *testing.T) {
	// Clean EOF: nothing left at all.
	r := bytes.NewReader(nil)
	if _, err := ReadInt64(r); err != io.EOF {
		t.Errorf("ReadInt64 at EOF = %v; want io.EOF", err)
	}

	// Truncated value: some bytes present, but not enough.
	r = bytes.NewReader([]byte{0x01, 0x02, 0x03})
	if _, err := ReadInt64(r); !errors.Is(err, errors.ErrShortRead) {
		t.Errorf("ReadInt64 on 3 bytes = %v; want ErrShortRead", err)
	}
}
