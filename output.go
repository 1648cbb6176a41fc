package http2

import (
	"bufio"
	"sync"
	"sync/atomic"

	"github.com/tildepoint/h2engine/http2utils"
)

type pendingBody struct {
	body      []byte
	offset    int
	endStream bool
}

// outputChannel is C4: it fragments application bodies into DATA
// frames subject to flow control and MAX_FRAME_SIZE, and serializes
// every outbound frame (control or data) onto the wire.
//
// Per §4.6 the spec's "write task" is the sole owner of the write half
// of the socket; here that maps to writeMu serializing every write
// regardless of which goroutine calls Send (control frames may
// originate from a handler goroutine, not just the write loop).
type outputChannel struct {
	writeMu sync.Mutex
	w       *bufio.Writer
	hp      *HPACK

	connWindow atomic.Int64
	streams    *streamTable

	pendingMu sync.Mutex
	pending   map[uint32]*pendingBody
	order     []uint32

	// dirty wakes the write loop's flush timer early when new work
	// arrives, per §9's decision to use a notification channel with the
	// timer as a coalescing backstop rather than a bare 1ms poll.
	dirty chan struct{}

	// onStreamDone, if set, is invoked once a stream's last DATA frame
	// (the one carrying END_STREAM) has been written, so the session
	// can release the stream's table slot (§3 invariant 4).
	onStreamDone func(streamID uint32)
}

func newOutputChannel(w *bufio.Writer, hp *HPACK, streams *streamTable) *outputChannel {
	oc := &outputChannel{
		w:       w,
		hp:      hp,
		streams: streams,
		pending: make(map[uint32]*pendingBody),
		dirty:   make(chan struct{}, 1),
	}
	oc.connWindow.Store(DefaultWindowSize)
	return oc
}

func (oc *outputChannel) notifyDirty() {
	select {
	case oc.dirty <- struct{}{}:
	default:
	}
}

// Send writes a single, fully-budgeted frame: HEADERS, SETTINGS,
// WINDOW_UPDATE, GOAWAY, or an ACK. The header's Length is recomputed
// from payload before encoding.
func (oc *outputChannel) Send(h Header, payload []byte) error {
	oc.writeMu.Lock()
	defer oc.writeMu.Unlock()
	if err := WriteFrame(oc.w, h, payload); err != nil {
		return err
	}
	return flushErr(oc.w)
}

func flushErr(w *bufio.Writer) error {
	if err := w.Flush(); err != nil {
		return &IoError{Err: err}
	}
	return nil
}

// Enqueue stores body for later fragmented emission on streamID,
// overwriting any prior body for that stream (§4.4: callers enqueue at
// most once per request).
func (oc *outputChannel) Enqueue(streamID uint32, body []byte) {
	oc.pendingMu.Lock()
	if _, exists := oc.pending[streamID]; !exists {
		oc.order = append(oc.order, streamID)
	}
	oc.pending[streamID] = &pendingBody{body: body}
	oc.pendingMu.Unlock()
	oc.notifyDirty()
}

// WindowUpdate parses a WINDOW_UPDATE payload and credits the
// connection-level or named stream's send window.
func (oc *outputChannel) WindowUpdate(streamID uint32, payload []byte) error {
	if len(payload) != 4 {
		return &MalformedFrame{Reason: "WINDOW_UPDATE payload must be 4 bytes"}
	}
	inc := int64(http2utils.BytesToUint32(payload) &^ (1 << 31))
	if inc == 0 {
		return &MalformedFrame{Reason: "WINDOW_UPDATE increment of 0 is invalid"}
	}
	if streamID == 0 {
		oc.connWindow.Add(inc)
		oc.notifyDirty()
		return nil
	}
	s, ok := oc.streams.get(streamID)
	if !ok {
		return nil // stream already closed; nothing to credit
	}
	s.sendWindow.Add(inc)
	oc.notifyDirty()
	return nil
}

// WriteGoAway sends a best-effort GOAWAY: lastStreamID is the highest
// stream this side has processed or initiated, code is the reason
// (RFC 7540 §7). Payload layout (stream id, error code, empty debug
// data) is grounded on the teacher's goaway.go Serialize. Called once
// per session from a fatal teardown path, immediately before the
// socket is closed; a write failure here is not itself fatal since the
// connection is already going away.
func (oc *outputChannel) WriteGoAway(lastStreamID uint32, code ErrorCode) error {
	payload := make([]byte, 8)
	http2utils.Uint32ToBytes(payload[0:4], lastStreamID&streamIDMask)
	http2utils.Uint32ToBytes(payload[4:8], uint32(code))
	return oc.Send(Header{Type: FrameGoAway}, payload)
}

// Flush drains the send queue: for each stream with a pending body, in
// insertion order, it emits at most one DATA frame sized by the
// min-of-five budget computed in §4.4 (itself grounded on
// original_source/asio_http/v2/Output.hpp's flush()).
func (oc *outputChannel) Flush() error {
	oc.pendingMu.Lock()
	ids := make([]uint32, len(oc.order))
	copy(ids, oc.order)
	oc.pendingMu.Unlock()

	for _, id := range ids {
		if err := oc.flushOne(id); err != nil {
			return err
		}
	}
	return nil
}

func (oc *outputChannel) flushOne(streamID uint32) error {
	oc.pendingMu.Lock()
	pb, ok := oc.pending[streamID]
	oc.pendingMu.Unlock()
	if !ok {
		return nil
	}

	s, ok := oc.streams.get(streamID)
	if !ok {
		oc.removePending(streamID)
		return nil
	}

	remaining := len(pb.body) - pb.offset
	connBudget := oc.connWindow.Load()
	streamBudget := s.sendWindow.Load()

	chunk := minInt64(connBudget, streamBudget, int64(remaining), MaxStreamExclusive, DefaultMaxFrameSize)
	if chunk < MinFrameSize && int64(remaining) > chunk {
		return nil // insufficient credit this pass; wait for WINDOW_UPDATE
	}
	if chunk < 0 {
		chunk = 0
	}

	last := chunk == int64(remaining)
	flags := Flags(0)
	if last {
		flags |= FlagEndStream
	}

	oc.writeMu.Lock()
	err := WriteFrame(oc.w, Header{Type: FrameData, Flags: flags, Stream: streamID}, pb.body[pb.offset:pb.offset+int(chunk)])
	if err == nil {
		err = flushErr(oc.w)
	}
	oc.writeMu.Unlock()
	if err != nil {
		return err
	}

	oc.connWindow.Add(-chunk)
	s.sendWindow.Add(-chunk)

	if last {
		oc.removePending(streamID)
		if oc.onStreamDone != nil {
			oc.onStreamDone(streamID)
		}
	} else {
		oc.pendingMu.Lock()
		pb.offset += int(chunk)
		oc.pendingMu.Unlock()
	}
	return nil
}

func (oc *outputChannel) removePending(streamID uint32) {
	oc.pendingMu.Lock()
	delete(oc.pending, streamID)
	for i, id := range oc.order {
		if id == streamID {
			oc.order = append(oc.order[:i], oc.order[i+1:]...)
			break
		}
	}
	oc.pendingMu.Unlock()
}

func (oc *outputChannel) hasPending() bool {
	oc.pendingMu.Lock()
	defer oc.pendingMu.Unlock()
	return len(oc.pending) > 0
}

func minInt64(vs ...int64) int64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
