package wire

import (
	"encoding/binary"
	"io"

	"github.com/cuemby/ringdb/pkg/wireerr"
)

// ProtocolVersion is the only frame version ringdb accepts (spec §4.1).
const ProtocolVersion uint8 = 3

// Opcode identifies a frame's payload kind.
type Opcode uint8

// Request opcodes (spec §6).
const (
	OpStartup      Opcode = 0x01
	OpOptions      Opcode = 0x05
	OpQuery        Opcode = 0x07
	OpPrepare      Opcode = 0x09
	OpExecute      Opcode = 0x0A
	OpRegister     Opcode = 0x0B
	OpBatch        Opcode = 0x0D
	OpAuthResponse Opcode = 0x0F
)

// Response opcodes (spec §6).
const (
	OpError         Opcode = 0x00
	OpReady         Opcode = 0x02
	OpAuthenticate  Opcode = 0x03
	OpSupported     Opcode = 0x06
	OpResult        Opcode = 0x08
	OpEvent         Opcode = 0x0C
	OpAuthChallenge Opcode = 0x0E
	OpAuthSuccess   Opcode = 0x10
)

// Consistency is a CQL consistency level (spec §4.5, §6).
type Consistency int16

const (
	Any     Consistency = 0x0000
	One     Consistency = 0x0001
	Quorum  Consistency = 0x0004
	All     Consistency = 0x0005
)

// Value returns the number of replica acknowledgements required to reach
// this consistency level for the given replication factor (spec §4.5.5).
// ANY on reads is treated as ONE, per spec §4.5.
func (c Consistency) Value(rf int) int {
	switch c {
	case One, Any:
		return 1
	case Quorum:
		return rf/2 + 1
	case All:
		return rf
	default:
		return 1
	}
}

func (c Consistency) String() string {
	switch c {
	case Any:
		return "ANY"
	case One:
		return "ONE"
	case Quorum:
		return "QUORUM"
	case All:
		return "ALL"
	default:
		return "UNKNOWN"
	}
}

// ResultKind is the 4-byte discriminator at the head of a RESULT body
// (spec §6).
type ResultKind uint32

const (
	ResultVoid          ResultKind = 0x0001
	ResultRows          ResultKind = 0x0002
	ResultSetKeyspace   ResultKind = 0x0003
	ResultSchemaChange  ResultKind = 0x0005
)

// Flag bits in a frame's header (only Compression is defined by this
// subset; the STARTUP body negotiates compression separately).
const (
	FlagCompression uint8 = 0x01
)

// Frame is a decoded protocol envelope: version, flags, stream id,
// opcode, and body (spec §4.1).
type Frame struct {
	Version uint8
	Flags   uint8
	Stream  int16
	Opcode  Opcode
	Body    []byte
}

// headerLen is version(1) + flags(1) + stream(2) + opcode(1) + length(4).
const headerLen = 9

// ReadFrame decodes one frame from r. It rejects any version other than
// ProtocolVersion, and any frame whose declared body length doesn't match
// what is actually available on the wire (spec §4.1).
func ReadFrame(r io.Reader) (*Frame, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	version := hdr[0]
	if version != ProtocolVersion {
		return nil, wireerr.Newf(wireerr.ProtocolError, "unsupported protocol version %d", version)
	}
	flags := hdr[1]
	stream := int16(binary.BigEndian.Uint16(hdr[2:4]))
	opcode := Opcode(hdr[4])
	length := binary.BigEndian.Uint32(hdr[5:9])

	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, wireerr.Wrap(wireerr.ProtocolError, "short frame body", err)
		}
	}

	return &Frame{
		Version: version,
		Flags:   flags,
		Stream:  stream,
		Opcode:  opcode,
		Body:    body,
	}, nil
}

// Serialize encodes the frame back into its wire form.
func (f *Frame) Serialize() []byte {
	w := NewWriter()
	w.U8(f.Version)
	w.U8(f.Flags)
	w.I16(f.Stream)
	w.U8(uint8(f.Opcode))
	w.U32(uint32(len(f.Body)))
	out := w.Bytes()
	return append(out, f.Body...)
}

// WriteFrame serializes and writes the frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	_, err := w.Write(f.Serialize())
	return err
}

// NewResponse builds a response frame echoing the request's stream id, as
// required by spec §5 ("replies are delivered in request order; stream
// IDs are echoed").
func NewResponse(stream int16, opcode Opcode, body []byte) *Frame {
	return &Frame{
		Version: ProtocolVersion,
		Flags:   0,
		Stream:  stream,
		Opcode:  opcode,
		Body:    body,
	}
}

// NewErrorFrame renders a wireerr.Error as an ERROR frame body: code (2
// bytes, big-endian) then message (string).
func NewErrorFrame(stream int16, werr *wireerr.Error) *Frame {
	w := NewWriter()
	w.I16(int16(werr.Code))
	w.String(werr.Message)
	return NewResponse(stream, OpError, w.Bytes())
}
