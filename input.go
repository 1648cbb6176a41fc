package http2

import (
	"bufio"

	"github.com/tildepoint/h2engine/http2utils"
)

// inputChannel is C3. It lives exclusively on the read loop goroutine
// (mirroring conn.go's single-goroutine readLoop that both reads and
// dispatches inline), so its own counters need no synchronization; the
// one thing it writes back to the peer, WINDOW_UPDATE, goes through the
// output channel's Send, which is safe to call from any goroutine.
type inputChannel struct {
	r           *bufio.Reader
	out         *outputChannel
	maxFrameLen uint32

	connWindow int64
}

func newInputChannel(r *bufio.Reader, out *outputChannel, maxFrameLen uint32) *inputChannel {
	return &inputChannel{r: r, out: out, maxFrameLen: maxFrameLen, connWindow: DefaultWindowSize}
}

// Recv suspends until a whole frame has arrived.
func (ic *inputChannel) Recv() (Header, []byte, error) {
	return ReadFrame(ic.r, ic.maxFrameLen)
}

// Append records data bytes received on s, debits both windows, and
// emits a quantized WINDOW_UPDATE (§4.3) for each window that is below
// DefaultWindowSize: for the connection always, for the stream only
// while more data is still expected on it.
func (ic *inputChannel) Append(s *Stream, data []byte, moreExpected bool) error {
	n := int64(len(data))
	if n > 0 {
		s.body.Write(data)
	}
	ic.connWindow -= n
	s.recvWindow -= n
	if ic.connWindow < 0 || s.recvWindow < 0 {
		return &FlowControlError{StreamID: s.id}
	}

	if ic.connWindow < DefaultWindowSize {
		if err := ic.creditConnection(); err != nil {
			return err
		}
	}
	if moreExpected && !s.endRecv && s.recvWindow < DefaultWindowSize {
		if err := ic.creditStream(s); err != nil {
			return err
		}
	}
	return nil
}

func (ic *inputChannel) creditConnection() error {
	payload := make([]byte, 4)
	http2utils.Uint32ToBytes(payload, DefaultWindowSize)
	if err := ic.out.Send(Header{Type: FrameWindowUpdate, Stream: 0}, payload); err != nil {
		return err
	}
	ic.connWindow += DefaultWindowSize
	return nil
}

func (ic *inputChannel) creditStream(s *Stream) error {
	payload := make([]byte, 4)
	http2utils.Uint32ToBytes(payload, DefaultWindowSize)
	if err := ic.out.Send(Header{Type: FrameWindowUpdate, Stream: s.id}, payload); err != nil {
		return err
	}
	s.recvWindow += DefaultWindowSize
	return nil
}

// Extract moves the accumulated body out of s's assembly buffer.
func (ic *inputChannel) Extract(s *Stream) []byte {
	out := make([]byte, s.body.Len())
	copy(out, s.body.Bytes())
	s.body.Reset()
	return out
}
