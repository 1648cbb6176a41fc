package http2

import (
	"bufio"
	"sync"

	"github.com/tildepoint/h2engine/http2utils"
)

// FrameType identifies the kind of payload a frame header precedes.
// PRIORITY, PING, PUSH_PROMISE, and any extension type are valid on the
// wire and are read and discarded by the engine rather than rejected.
// RST_STREAM is discarded by the client; the server drops that
// stream's state.
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameRSTStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	default:
		return "UNKNOWN"
	}
}

// Flags is the 8-bit flag bitmask carried by every frame header. Its
// meaning is type-dependent; only the bits relevant to this engine are
// named.
type Flags uint8

const (
	FlagEndStream Flags = 0x01
	FlagAck       Flags = 0x01 // same bit, SETTINGS/PING context
	FlagEndHeaders Flags = 0x04
	FlagPadded     Flags = 0x08
	FlagPriority   Flags = 0x20
)

// Has reports whether flag is set.
func (f Flags) Has(flag Flags) bool { return f&flag == flag }

const (
	// FrameHeaderSize is the fixed size of the on-wire frame header.
	FrameHeaderSize = 9

	maxPayloadLength = 1<<24 - 1
	maxStreamID      = 1<<31 - 1
	streamIDMask     = uint32(1)<<31 - 1
)

// Header is the in-memory representation of a 9-byte on-wire frame
// header.
type Header struct {
	Length uint32
	Type   FrameType
	Flags  Flags
	Stream uint32
}

var headerBufPool = sync.Pool{
	New: func() interface{} { return make([]byte, FrameHeaderSize) },
}

func acquireHeaderBuf() []byte  { return headerBufPool.Get().([]byte)[:FrameHeaderSize] }
func releaseHeaderBuf(b []byte) { headerBufPool.Put(b) } //nolint:staticcheck // pool reuse, not a leak

// EncodeHeader serializes h into the fixed 9-byte on-wire layout,
// writing into dst (which must be at least FrameHeaderSize long) and
// returning the 9-byte slice actually written.
func EncodeHeader(dst []byte, h Header) ([]byte, error) {
	if h.Length > maxPayloadLength {
		return nil, &MalformedFrame{Reason: "payload length exceeds 2^24-1"}
	}
	if h.Stream > maxStreamID {
		return nil, &MalformedFrame{Reason: "stream id exceeds 2^31-1"}
	}
	dst = dst[:FrameHeaderSize]
	http2utils.Uint24ToBytes(dst[0:3], h.Length)
	dst[3] = byte(h.Type)
	dst[4] = byte(h.Flags)
	http2utils.Uint32ToBytes(dst[5:9], h.Stream&streamIDMask)
	return dst, nil
}

// DecodeHeader parses the fixed 9-byte on-wire layout out of b (which
// must be exactly FrameHeaderSize long). The reserved top bit of the
// stream id is always masked off, matching the engine's default
// (non-strict) mode described in §4.1.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FrameHeaderSize {
		return Header{}, &MalformedFrame{Reason: "frame header must be 9 bytes"}
	}
	return Header{
		Length: http2utils.BytesToUint24(b[0:3]),
		Type:   FrameType(b[3]),
		Flags:  Flags(b[4]),
		Stream: http2utils.BytesToUint32(b[5:9]) & streamIDMask,
	}, nil
}

// WriteFrame serializes h and payload and writes them to w as a single
// logical write: the header's Length field is overwritten with
// len(payload) before encoding, so callers only need to set Type,
// Flags, and Stream.
func WriteFrame(w *bufio.Writer, h Header, payload []byte) error {
	h.Length = uint32(len(payload))
	buf := acquireHeaderBuf()
	defer releaseHeaderBuf(buf)

	enc, err := EncodeHeader(buf, h)
	if err != nil {
		return err
	}
	if _, err := w.Write(enc); err != nil {
		return &IoError{Err: err}
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return &IoError{Err: err}
		}
	}
	return nil
}

// ReadFrame blocks until a complete frame (header + payload) has been
// read from r, or returns an error. maxLen bounds the accepted payload
// size (typically DefaultMaxFrameSize); a larger advertised length is
// treated as MalformedFrame rather than trusted and allocated.
func ReadFrame(r *bufio.Reader, maxLen uint32) (Header, []byte, error) {
	hb := acquireHeaderBuf()
	defer releaseHeaderBuf(hb)

	if _, err := readFull(r, hb); err != nil {
		return Header{}, nil, err
	}
	h, err := DecodeHeader(hb)
	if err != nil {
		return Header{}, nil, err
	}
	if h.Length > maxLen {
		return Header{}, nil, &MalformedFrame{Reason: "frame exceeds configured max frame size"}
	}
	if h.Length == 0 {
		return h, nil, nil
	}
	payload := make([]byte, h.Length)
	if _, err := readFull(r, payload); err != nil {
		return Header{}, nil, err
	}
	return h, payload, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, &IoError{Err: err}
		}
	}
	return n, nil
}
