// Package wire implements the byte and frame codecs of the CQL v3-derived
// binary protocol (spec §4.1, §6): a typed cursor over a byte slice, its
// inverse writer, and the frame envelope built on top of them.
package wire

import (
	"encoding/binary"

	"github.com/cuemby/ringdb/pkg/wireerr"
)

// Cursor reads primitive wire types from a framed body. Reading past the
// end of the buffer fails with a ProtocolError, per spec §4.1.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for sequential typed reads.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Remaining reports how many unread bytes are left.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

func (c *Cursor) need(n int) error {
	if c.Remaining() < n {
		return wireerr.Newf(wireerr.ProtocolError, "unexpected end of frame: need %d bytes, have %d", n, c.Remaining())
	}
	return nil
}

// U8 reads one unsigned byte.
func (c *Cursor) U8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

// I16 / Short reads a signed 16-bit big-endian integer.
func (c *Cursor) I16() (int16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := int16(binary.BigEndian.Uint16(c.buf[c.pos:]))
	c.pos += 2
	return v, nil
}

// Short is the CQL name for I16.
func (c *Cursor) Short() (int16, error) { return c.I16() }

// I32 / Int reads a signed 32-bit big-endian integer.
func (c *Cursor) I32() (int32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(c.buf[c.pos:]))
	c.pos += 4
	return v, nil
}

// Int is the CQL name for I32.
func (c *Cursor) Int() (int32, error) { return c.I32() }

// U32 reads an unsigned 32-bit big-endian integer (used for frame body
// length, which is never negative).
func (c *Cursor) U32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// I64 / Long reads a signed 64-bit big-endian integer.
func (c *Cursor) I64() (int64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(c.buf[c.pos:]))
	c.pos += 8
	return v, nil
}

// Long is the CQL name for I64.
func (c *Cursor) Long() (int64, error) { return c.I64() }

// String reads a [short]-length-prefixed UTF-8 string.
func (c *Cursor) String() (string, error) {
	n, err := c.I16()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", wireerr.New(wireerr.ProtocolError, "negative string length")
	}
	if err := c.need(int(n)); err != nil {
		return "", err
	}
	s := string(c.buf[c.pos : c.pos+int(n)])
	c.pos += int(n)
	return s, nil
}

// LongString reads an [int]-length-prefixed UTF-8 string.
func (c *Cursor) LongString() (string, error) {
	n, err := c.I32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", wireerr.New(wireerr.ProtocolError, "negative long string length")
	}
	if err := c.need(int(n)); err != nil {
		return "", err
	}
	s := string(c.buf[c.pos : c.pos+int(n)])
	c.pos += int(n)
	return s, nil
}

// StringMap reads a [short] count of (string,string) pairs.
func (c *Cursor) StringMap() (map[string]string, error) {
	n, err := c.I16()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, n)
	for i := 0; i < int(n); i++ {
		k, err := c.String()
		if err != nil {
			return nil, err
		}
		v, err := c.String()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// Bytes reads an [int]-length-prefixed byte slice, with -1 meaning NULL
// (returned as a nil slice with a nil error).
func (c *Cursor) Bytes() ([]byte, error) {
	n, err := c.I32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil // NULL sentinel
	}
	if err := c.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, c.buf[c.pos:c.pos+int(n)])
	c.pos += int(n)
	return b, nil
}

// ShortBytes reads a [short]-length-prefixed byte slice.
func (c *Cursor) ShortBytes() ([]byte, error) {
	n, err := c.I16()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, wireerr.New(wireerr.ProtocolError, "negative short bytes length")
	}
	if err := c.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, c.buf[c.pos:c.pos+int(n)])
	c.pos += int(n)
	return b, nil
}

// Consistency reads a [short] consistency level code.
func (c *Cursor) Consistency() (Consistency, error) {
	v, err := c.I16()
	if err != nil {
		return 0, err
	}
	return Consistency(v), nil
}
