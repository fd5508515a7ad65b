package wire

import (
	"bytes"
	"encoding/binary"
)

// Writer is the inverse of Cursor: it appends typed wire values to a
// growing byte buffer.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf.WriteByte(v)
	return w
}

func (w *Writer) I16(v int16) *Writer {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	w.buf.Write(b[:])
	return w
}

// Short is the CQL name for I16.
func (w *Writer) Short(v int16) *Writer { return w.I16(v) }

func (w *Writer) I32(v int32) *Writer {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
	return w
}

// Int is the CQL name for I32.
func (w *Writer) Int(v int32) *Writer { return w.I32(v) }

func (w *Writer) U32(v uint32) *Writer {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
	return w
}

func (w *Writer) I64(v int64) *Writer {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
	return w
}

// Long is the CQL name for I64.
func (w *Writer) Long(v int64) *Writer { return w.I64(v) }

func (w *Writer) String(s string) *Writer {
	w.I16(int16(len(s)))
	w.buf.WriteString(s)
	return w
}

func (w *Writer) LongString(s string) *Writer {
	w.I32(int32(len(s)))
	w.buf.WriteString(s)
	return w
}

func (w *Writer) StringMap(m map[string]string) *Writer {
	w.I16(int16(len(m)))
	for k, v := range m {
		w.String(k)
		w.String(v)
	}
	return w
}

// Bytes writes an [int]-length-prefixed byte slice; a nil slice is
// written as the -1 NULL sentinel.
func (w *Writer) Bytes(b []byte) *Writer {
	if b == nil {
		w.I32(-1)
		return w
	}
	w.I32(int32(len(b)))
	w.buf.Write(b)
	return w
}

func (w *Writer) ShortBytes(b []byte) *Writer {
	w.I16(int16(len(b)))
	w.buf.Write(b)
	return w
}

func (w *Writer) Consistency(c Consistency) *Writer {
	return w.I16(int16(c))
}
