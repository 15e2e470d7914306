package tmr

import (
	"errors"
)

// ErrShort is returned when a payload ends before a field does.
var ErrShort = errors.New("tmr: payload too short")

// Cursor reads big-endian fields from a payload.
type Cursor struct {
	buf []byte
	off int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (c *Cursor) Len() int {
	return len(c.buf) - c.off
}

func (c *Cursor) Offset() int {
	return c.off
}

func (c *Cursor) U8() (byte, error) {
	if c.Len() < 1 {
		return 0, ErrShort
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

func (c *Cursor) U16() (uint16, error) {
	if c.Len() < 2 {
		return 0, ErrShort
	}
	v := uint16(c.buf[c.off])<<8 | uint16(c.buf[c.off+1])
	c.off += 2
	return v, nil
}

func (c *Cursor) U24() (uint32, error) {
	if c.Len() < 3 {
		return 0, ErrShort
	}
	v := uint32(c.buf[c.off])<<16 | uint32(c.buf[c.off+1])<<8 | uint32(c.buf[c.off+2])
	c.off += 3
	return v, nil
}

func (c *Cursor) U32() (uint32, error) {
	if c.Len() < 4 {
		return 0, ErrShort
	}
	v := uint32(c.buf[c.off])<<24 | uint32(c.buf[c.off+1])<<16 | uint32(c.buf[c.off+2])<<8 | uint32(c.buf[c.off+3])
	c.off += 4
	return v, nil
}

// Bytes returns a copy of the next n bytes.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if n < 0 || c.Len() < n {
		return nil, ErrShort
	}
	out := make([]byte, n)
	copy(out, c.buf[c.off:c.off+n])
	c.off += n
	return out, nil
}

// String reads a u8 length-prefixed string.
func (c *Cursor) String() (string, error) {
	n, err := c.U8()
	if err != nil {
		return "", err
	}
	b, err := c.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func AppendU16(dst []byte, v uint16) []byte {
	return append(dst, byte(v>>8), byte(v))
}

func AppendU24(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>16), byte(v>>8), byte(v))
}

func AppendU32(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func AppendString(dst []byte, s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	dst = append(dst, byte(len(s)))
	return append(dst, s...)
}
