package http2

import "fmt"

// ErrorCode is the HTTP/2 error code carried by RST_STREAM and GOAWAY frames.
type ErrorCode uint32

const (
	ErrNoError ErrorCode = iota
	ErrProtocol
	ErrInternal
	ErrFlowControl
	ErrSettingsTimeout
	ErrStreamClosed
	ErrFrameSize
	ErrRefusedStream
	ErrCancel
	ErrCompression
	ErrConnect
	ErrEnhanceYourCalm
	ErrInadequateSecurity
	ErrHTTP11Required
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNoError:
		return "NO_ERROR"
	case ErrProtocol:
		return "PROTOCOL_ERROR"
	case ErrInternal:
		return "INTERNAL_ERROR"
	case ErrFlowControl:
		return "FLOW_CONTROL_ERROR"
	case ErrSettingsTimeout:
		return "SETTINGS_TIMEOUT"
	case ErrStreamClosed:
		return "STREAM_CLOSED"
	case ErrFrameSize:
		return "FRAME_SIZE_ERROR"
	case ErrRefusedStream:
		return "REFUSED_STREAM"
	case ErrCancel:
		return "CANCEL"
	case ErrCompression:
		return "COMPRESSION_ERROR"
	case ErrConnect:
		return "CONNECT_ERROR"
	case ErrEnhanceYourCalm:
		return "ENHANCE_YOUR_CALM"
	case ErrInadequateSecurity:
		return "INADEQUATE_SECURITY"
	case ErrHTTP11Required:
		return "HTTP_1_1_REQUIRED"
	default:
		return fmt.Sprintf("ERROR_CODE(%d)", uint32(c))
	}
}

// IoError wraps a transport-level failure: a read/write EOF, a connect
// failure, or a deadline expiration. Fatal to the session that raised it.
type IoError struct{ Err error }

func (e *IoError) Error() string { return fmt.Sprintf("http2: io error: %s", e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// MalformedFrame indicates a decoded frame header or payload carried an
// impossible value (bad length, truncated fixed-size payload, and so on).
type MalformedFrame struct{ Reason string }

func (e *MalformedFrame) Error() string { return "http2: malformed frame: " + e.Reason }

// HeaderBlockError indicates an HPACK decode failure or an illegal
// pseudo-header ordering. Fatal; there is no partial recovery.
type HeaderBlockError struct{ Err error }

func (e *HeaderBlockError) Error() string { return fmt.Sprintf("http2: header block error: %s", e.Err) }
func (e *HeaderBlockError) Unwrap() error { return e.Err }

// FlowControlError indicates a peer sent more DATA than its receive
// window allowed.
type FlowControlError struct{ StreamID uint32 }

func (e *FlowControlError) Error() string {
	return fmt.Sprintf("http2: flow control violation on stream %d", e.StreamID)
}

// StreamIDError indicates a duplicate/out-of-order stream id, or
// exhaustion of the 31-bit id space.
type StreamIDError struct {
	StreamID uint32
	Reason   string
}

func (e *StreamIDError) Error() string {
	return fmt.Sprintf("http2: stream id %d: %s", e.StreamID, e.Reason)
}

// ApplicationError wraps a panic or error raised from a server handler.
// Confined to the one request that triggered it; the connection survives.
type ApplicationError struct{ Err error }

func (e *ApplicationError) Error() string { return fmt.Sprintf("http2: handler error: %s", e.Err) }
func (e *ApplicationError) Unwrap() error { return e.Err }

// RemoteStatusError surfaces a 4xx/5xx response verbatim to a client
// caller. The connection is not affected.
type RemoteStatusError struct{ Status int }

func (e *RemoteStatusError) Error() string {
	return fmt.Sprintf("http2: remote returned status %d", e.Status)
}

// goAwayCodeFor maps a fatal teardown error to the GOAWAY error code
// best describing it, per RFC 7540 §7.
func goAwayCodeFor(err error) ErrorCode {
	switch err.(type) {
	case *MalformedFrame, *HeaderBlockError, *StreamIDError:
		return ErrProtocol
	case *FlowControlError:
		return ErrFlowControl
	case *IoError:
		return ErrNoError
	default:
		return ErrInternal
	}
}
