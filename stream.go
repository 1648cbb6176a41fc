package http2

import (
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// StreamState is the receive-side state machine from §4.3.
type StreamState uint8

const (
	StreamIdle StreamState = iota
	StreamOpen
	StreamHalfClosedRemote
	StreamClosed
)

// Stream is one multiplexed request/response flow. The session owns
// every Stream; applications only ever see a Request, a Response, or a
// completion channel, never a *Stream directly (§3 "Ownership").
type Stream struct {
	id    uint32
	state StreamState

	// recvWindow is touched only by the read loop (it owns C3), so it
	// needs no synchronization.
	recvWindow int64

	// sendWindow is credited by the read loop (on an incoming
	// WINDOW_UPDATE) and debited by the write loop (during flush), the
	// one piece of per-stream state the two loops legitimately share
	// per §4.6; atomic rather than single-threaded discipline because
	// Go gives the two loops real parallelism.
	sendWindow atomic.Int64

	noBody      bool
	headersDone bool
	hdrFields   []HeaderField

	body bytebufferpool.ByteBuffer

	// server side
	req *Request

	// client side
	resp  Response
	done  chan streamResult
	endRecv bool // END_STREAM already observed (suppresses further stream-level WINDOW_UPDATE, §4.3)
}

type streamResult struct {
	resp Response
	err  error
}

func newStream(id uint32) *Stream {
	s := &Stream{
		id:         id,
		state:      StreamIdle,
		recvWindow: DefaultWindowSize,
	}
	s.sendWindow.Store(DefaultWindowSize)
	return s
}

// streamTable is the session's shared stream map. It is touched by the
// read loop, the write loop, and (client-side) by whichever goroutine
// calls Perform, so unlike the rest of the session's state it is
// protected by a mutex rather than single-threaded discipline -- the
// same choice golang.org/x/net/http2's ClientConn makes for its own
// stream map, since Go's real goroutine parallelism (vs. the original's
// single-threaded coroutine scheduler) gives a third actor access that
// the coroutine model never needed to account for.
type streamTable struct {
	mu    sync.Mutex
	byID  map[uint32]*Stream
	order []uint32 // insertion order
}

func newStreamTable() *streamTable {
	return &streamTable{byID: make(map[uint32]*Stream)}
}

func (t *streamTable) put(s *Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byID[s.id]; !exists {
		t.order = append(t.order, s.id)
	}
	t.byID[s.id] = s
}

func (t *streamTable) get(id uint32) (*Stream, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[id]
	return s, ok
}

func (t *streamTable) delete(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// orderedIDs returns a snapshot of stream ids in insertion order; the
// client's teardown walks it to fail every outstanding stream.
func (t *streamTable) orderedIDs() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint32, len(t.order))
	copy(out, t.order)
	return out
}

func (t *streamTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
