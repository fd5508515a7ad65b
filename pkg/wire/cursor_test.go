package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	w := NewWriter()
	w.U8(7)
	w.I16(-12345)
	w.I32(987654321)
	w.I64(-1234567890123)
	w.String("hello")
	w.LongString("a longer string value")
	w.StringMap(map[string]string{"CQL_VERSION": "3.0.0"})
	w.Bytes([]byte("payload"))
	w.Bytes(nil)
	w.ShortBytes([]byte("sb"))
	w.Consistency(Quorum)

	c := NewCursor(w.Bytes())

	u8, err := c.U8()
	require.NoError(t, err)
	require.EqualValues(t, 7, u8)

	i16, err := c.I16()
	require.NoError(t, err)
	require.EqualValues(t, -12345, i16)

	i32, err := c.I32()
	require.NoError(t, err)
	require.EqualValues(t, 987654321, i32)

	i64, err := c.I64()
	require.NoError(t, err)
	require.EqualValues(t, -1234567890123, i64)

	s, err := c.String()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	ls, err := c.LongString()
	require.NoError(t, err)
	require.Equal(t, "a longer string value", ls)

	sm, err := c.StringMap()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"CQL_VERSION": "3.0.0"}, sm)

	b, err := c.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), b)

	nilB, err := c.Bytes()
	require.NoError(t, err)
	require.Nil(t, nilB)

	sb, err := c.ShortBytes()
	require.NoError(t, err)
	require.Equal(t, []byte("sb"), sb)

	cons, err := c.Consistency()
	require.NoError(t, err)
	require.Equal(t, Quorum, cons)

	require.Zero(t, c.Remaining())
}

func TestCursorRejectsShortBuffer(t *testing.T) {
	c := NewCursor([]byte{0x00, 0x01})
	_, err := c.I32()
	require.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	f := &Frame{
		Version: ProtocolVersion,
		Flags:   0,
		Stream:  42,
		Opcode:  OpQuery,
		Body:    []byte("SELECT * FROM ks.t"),
	}
	raw := f.Serialize()

	got, err := ReadFrame(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, f.Version, got.Version)
	require.Equal(t, f.Flags, got.Flags)
	require.Equal(t, f.Stream, got.Stream)
	require.Equal(t, f.Opcode, got.Opcode)
	require.Equal(t, f.Body, got.Body)
}

func TestFrameRejectsBadVersion(t *testing.T) {
	f := &Frame{Version: 4, Stream: 1, Opcode: OpQuery, Body: []byte("x")}
	raw := f.Serialize()
	_, err := ReadFrame(bytes.NewReader(raw))
	require.Error(t, err)
}

func TestFrameRejectsTruncatedBody(t *testing.T) {
	f := &Frame{Version: ProtocolVersion, Stream: 1, Opcode: OpQuery, Body: []byte("hello world")}
	raw := f.Serialize()
	_, err := ReadFrame(bytes.NewReader(raw[:len(raw)-3]))
	require.Error(t, err)
}

