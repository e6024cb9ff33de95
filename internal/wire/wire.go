// Package wire implements the STRATOS datagram codec (§3/§6): fixed
// little-endian binary layouts for the six message kinds exchanged on the
// discovery, service and hello ports.
package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/position"
)

// Message type octets (§6).
const (
	TypeHello          byte = 1
	TypeSearchRequest  byte = 2
	TypeSearchResponse byte = 3
	TypeSearchError    byte = 4
	TypeServiceRequest byte = 5
	TypeServiceResponse byte = 6
	TypeServiceError    byte = 7
)

// Flag is the dialogue state carried in ServiceRequest/ServiceResponse
// bodies (§3/§6).
type Flag byte

const (
	FlagNull Flag = iota
	FlagStart
	FlagStarted
	FlagDo
	FlagStop
	FlagStopped
)

// PacketLength is the fixed padded size of dialogue datagrams (§6).
const PacketLength = 256

// ErrMalformed wraps any codec failure; callers log-and-drop per §7.
var ErrMalformed = errors.New("wire: malformed datagram")

// --- little-endian primitive helpers, the LE analogue of the teacher's
// stream.Read/ReadUint16/ReadUint32 BigEndian helpers ---

type reader struct {
	buf *bytes.Buffer
	err error
}

func newReader(b []byte) *reader {
	return &reader{buf: bytes.NewBuffer(b)}
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.buf, b); err != nil {
		r.err = errors.Wrap(ErrMalformed, err.Error())
		return nil
	}
	return b
}

func (r *reader) byte() byte {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) int32() int32 {
	return int32(r.uint32())
}

func (r *reader) float64() float64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (r *reader) addr() addr.Address {
	return addr.Address(r.uint32())
}

func (r *reader) position() position.Position {
	return position.Position{X: r.float64(), Y: r.float64()}
}

// string reads a length-prefixed (u32) UTF-8 service identifier.
func (r *reader) string() string {
	n := r.uint32()
	if n > 4096 {
		r.err = errors.Wrap(ErrMalformed, "string length implausibly large")
		return ""
	}
	b := r.bytes(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) writeByte(b byte) { w.buf.WriteByte(b) }

func (w *writer) writeUint32(v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	w.buf.Write(b)
}

func (w *writer) writeInt32(v int32) { w.writeUint32(uint32(v)) }

func (w *writer) writeFloat64(v float64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	w.buf.Write(b)
}

func (w *writer) writeAddr(a addr.Address) { w.writeUint32(uint32(a)) }

func (w *writer) writePosition(p position.Position) {
	w.writeFloat64(p.X)
	w.writeFloat64(p.Y)
}

func (w *writer) writeString(s string) {
	w.writeUint32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) bytes() []byte { return w.buf.Bytes() }

// pad right-pads b with zero bytes up to PacketLength, per §6's dialogue
// padding requirement. It is a no-op (and never truncates) if b is already
// at least that long.
func pad(b []byte) []byte {
	if len(b) >= PacketLength {
		return b
	}
	out := make([]byte, PacketLength)
	copy(out, b)
	return out
}

// Decode inspects the leading type octet and dispatches to the matching
// decoder, returning the decoded message and its type.
func Decode(datagram []byte) (interface{}, byte, error) {
	if len(datagram) < 1 {
		return nil, 0, ErrMalformed
	}
	t := datagram[0]
	body := datagram[1:]
	switch t {
	case TypeHello:
		return Hello{}, t, nil
	case TypeSearchRequest:
		m, err := decodeSearchRequest(body)
		return m, t, err
	case TypeSearchResponse:
		m, err := decodeSearchResponse(body)
		return m, t, err
	case TypeSearchError:
		m, err := decodeSearchError(body)
		return m, t, err
	case TypeServiceRequest, TypeServiceResponse:
		m, err := decodeServiceRequestResponse(body)
		return m, t, err
	case TypeServiceError:
		m, err := decodeServiceError(body)
		return m, t, err
	default:
		return nil, t, errors.Wrapf(ErrMalformed, "unknown type %d", t)
	}
}
