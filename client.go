package http2

import (
	"bufio"
	"errors"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Dialer creates HTTP/2 client sessions over plaintext TCP (§1
// Non-goals: TLS/ALPN is out of scope for the core).
type Dialer struct {
	Addr           string
	Logger         Logger
	ConnectTimeout time.Duration // default 100ms, §5
	RequestTimeout time.Duration // default 1000ms, §5
}

func (d *Dialer) connectTimeout() time.Duration {
	if d.ConnectTimeout > 0 {
		return d.ConnectTimeout
	}
	return defaultConnectTimeoutMS * time.Millisecond
}

func (d *Dialer) requestTimeout() time.Duration {
	if d.RequestTimeout > 0 {
		return d.RequestTimeout
	}
	return defaultRequestTimeoutMS * time.Millisecond
}

// Dial connects to d.Addr, performs the client preface handshake
// (§4.5), and returns a live ClientSession with its read and write
// loops already running.
func (d *Dialer) Dial() (*ClientSession, error) {
	conn, err := net.DialTimeout("tcp", d.Addr, d.connectTimeout())
	if err != nil {
		return nil, &IoError{Err: err}
	}

	host, _, splitErr := net.SplitHostPort(d.Addr)
	if splitErr != nil {
		host = d.Addr
	}

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	if err := writePreface(bw); err != nil {
		conn.Close()
		return nil, err
	}

	streams := newStreamTable()
	hpOut := NewHPACK()
	hpIn := NewHPACK()

	out := newOutputChannel(bw, hpOut, streams)
	in := newInputChannel(br, out, DefaultMaxFrameSize)

	cs := &ClientSession{
		conn:           conn,
		logger:         loggerOrNoop(d.Logger),
		authority:      host,
		requestTimeout: d.requestTimeout(),
		in:             in,
		out:            out,
		hp:             hpIn,
		streams:        streams,
		submitCh:       make(chan submitCmd, 32),
		stop:           make(chan struct{}),
	}
	cs.nextStreamID.Store(1)

	if err := out.Send(Header{Type: FrameSettings}, EncodeSettings(DefaultSettings())); err != nil {
		conn.Close()
		return nil, err
	}

	if err := cs.awaitServerSettings(); err != nil {
		conn.Close()
		return nil, err
	}

	go cs.writeLoop()
	go cs.readLoop()

	return cs, nil
}

type submitCmd struct {
	id        uint32
	fields    []HeaderField
	endStream bool
	body      []byte
}

// ClientSession is C5's client-side instance, bound to one dialed
// connection. Perform may be called concurrently by many goroutines;
// each call correlates its own response by stream id (§8 scenario 6).
type ClientSession struct {
	conn   net.Conn
	logger Logger

	authority      string
	requestTimeout time.Duration

	in      *inputChannel
	out     *outputChannel
	hp      *HPACK // decoder, owned by the read loop
	streams *streamTable

	nextStreamID atomic.Uint32

	submitCh  chan submitCmd
	stop      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	fatal   error
}

func (cs *ClientSession) awaitServerSettings() error {
	h, payload, err := cs.in.Recv()
	if err != nil {
		return err
	}
	if h.Type != FrameSettings || h.Flags.Has(FlagAck) {
		return &MalformedFrame{Reason: "first server frame was not SETTINGS"}
	}
	if _, err := DecodeSettings(payload); err != nil {
		return err
	}
	return cs.out.Send(Header{Type: FrameSettings, Flags: FlagAck}, nil)
}

// allocStreamID returns the next odd client-initiated stream id,
// guaranteeing monotonicity (§3 invariant 7, §8 "stream-id
// monotonicity") even under concurrent Perform calls.
func (cs *ClientSession) allocStreamID() (uint32, error) {
	for {
		id := cs.nextStreamID.Load()
		if id > maxStreamID {
			return 0, &StreamIDError{StreamID: id, Reason: "id space exhausted"}
		}
		if cs.nextStreamID.CompareAndSwap(id, id+2) {
			return id, nil
		}
	}
}

// Perform submits req, blocks until the correlated response arrives or
// the per-request timeout elapses, and returns it. A 4xx/5xx response
// is returned as a *RemoteStatusError alongside the parsed Response.
func (cs *ClientSession) Perform(req *Request) (*Response, error) {
	id, err := cs.allocStreamID()
	if err != nil {
		return nil, err
	}

	s := newStream(id)
	s.done = make(chan streamResult, 1)
	cs.streams.put(s)

	scheme := "http"
	authority := cs.authority
	if u, err := url.Parse(req.URL); err == nil && u.Host != "" {
		authority = u.Hostname()
	}

	cmd := submitCmd{
		id:        id,
		fields:    req.pseudoHeaderFields(scheme, authority),
		endStream: len(req.Body) == 0,
		body:      req.Body,
	}

	select {
	case cs.submitCh <- cmd:
	case <-cs.stop:
		cs.streams.delete(id)
		return nil, cs.sessionErr()
	}

	timer := time.NewTimer(cs.requestTimeout)
	defer timer.Stop()

	select {
	case res := <-s.done:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp.Status >= 400 {
			return &res.resp, &RemoteStatusError{Status: res.resp.Status}
		}
		return &res.resp, nil
	case <-timer.C:
		cs.streams.delete(id)
		return nil, &IoError{Err: errTimeout{}}
	case <-cs.stop:
		return nil, cs.sessionErr()
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "request timeout" }

func (cs *ClientSession) sessionErr() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.fatal != nil {
		return cs.fatal
	}
	return &IoError{Err: net.ErrClosed}
}

// Close shuts the underlying connection down and fails every
// outstanding Perform call.
func (cs *ClientSession) Close() error {
	cs.teardown(&IoError{Err: net.ErrClosed})
	return nil
}

func (cs *ClientSession) teardown(cause error) {
	cs.closeOnce.Do(func() {
		cs.mu.Lock()
		cs.fatal = cause
		cs.mu.Unlock()
		close(cs.stop)

		var ga errGoAway
		if !errors.As(cause, &ga) {
			last := uint32(0)
			if n := cs.nextStreamID.Load(); n > 1 {
				last = n - 2
			}
			_ = cs.out.WriteGoAway(last, goAwayCodeFor(cause))
		}

		cs.conn.Close()
		for _, id := range cs.streams.orderedIDs() {
			if s, ok := cs.streams.get(id); ok && s.done != nil {
				select {
				case s.done <- streamResult{err: cause}:
				default:
				}
			}
		}
	})
}

func (cs *ClientSession) writeLoop() {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-cs.stop:
			return
		case cmd := <-cs.submitCh:
			if err := cs.submit(cmd); err != nil {
				cs.teardown(err)
				return
			}
		case <-cs.out.dirty:
			if err := cs.out.Flush(); err != nil {
				cs.teardown(err)
				return
			}
		case <-ticker.C:
			if cs.out.hasPending() {
				if err := cs.out.Flush(); err != nil {
					cs.teardown(err)
					return
				}
			}
		}
	}
}

func (cs *ClientSession) submit(cmd submitCmd) error {
	block, err := cs.out.hp.Deflate(cmd.fields)
	if err != nil {
		return err
	}
	flags := FlagEndHeaders
	if cmd.endStream {
		flags |= FlagEndStream
	}
	if err := cs.out.Send(Header{Type: FrameHeaders, Flags: flags, Stream: cmd.id}, block); err != nil {
		return err
	}
	if !cmd.endStream {
		cs.out.Enqueue(cmd.id, cmd.body)
	}
	return nil
}

func (cs *ClientSession) readLoop() {
	for {
		setReadDeadline(cs.conn, 0)
		h, payload, err := cs.in.Recv()
		if err != nil {
			cs.teardown(err)
			return
		}

		switch h.Type {
		case FrameHeaders:
			if err := cs.onHeaders(h, payload); err != nil {
				cs.teardown(err)
				return
			}
		case FrameContinuation:
			if err := cs.onContinuation(h, payload); err != nil {
				cs.teardown(err)
				return
			}
		case FrameData:
			if err := cs.onData(h, payload); err != nil {
				cs.teardown(err)
				return
			}
		case FrameSettings:
			if !h.Flags.Has(FlagAck) {
				if _, err := DecodeSettings(payload); err != nil {
					cs.teardown(err)
					return
				}
				if err := cs.out.Send(Header{Type: FrameSettings, Flags: FlagAck}, nil); err != nil {
					cs.teardown(err)
					return
				}
			}
		case FrameWindowUpdate:
			if err := cs.out.WindowUpdate(h.Stream, payload); err != nil {
				cs.teardown(err)
				return
			}
		case FrameGoAway:
			cs.teardown(&IoError{Err: errGoAway{}})
			return
		default:
			// unknown/ignored type: read and discarded, per §3.
		}
	}
}

type errGoAway struct{}

func (errGoAway) Error() string { return "peer sent GOAWAY" }

func (cs *ClientSession) onHeaders(h Header, payload []byte) error {
	payload, err := stripPaddingAndPriority(payload, h.Flags)
	if err != nil {
		return err
	}
	s, ok := cs.streams.get(h.Stream)
	if !ok {
		return nil
	}
	if err := cs.hp.Inflate(payload, func(name, value string) {
		s.hdrFields = append(s.hdrFields, HeaderField{Name: name, Value: value})
	}); err != nil {
		return err
	}
	if h.Flags.Has(FlagEndStream) {
		s.endRecv = true
	}
	if h.Flags.Has(FlagEndHeaders) {
		s.resp = responseFromFields(s.hdrFields)
		s.hdrFields = nil
		if s.endRecv {
			cs.completeStream(s)
		}
	}
	return nil
}

func (cs *ClientSession) onContinuation(h Header, payload []byte) error {
	s, ok := cs.streams.get(h.Stream)
	if !ok {
		return nil
	}
	if err := cs.hp.Inflate(payload, func(name, value string) {
		s.hdrFields = append(s.hdrFields, HeaderField{Name: name, Value: value})
	}); err != nil {
		return err
	}
	if h.Flags.Has(FlagEndHeaders) {
		s.resp = responseFromFields(s.hdrFields)
		s.hdrFields = nil
		if s.endRecv {
			cs.completeStream(s)
		}
	}
	return nil
}

func (cs *ClientSession) onData(h Header, payload []byte) error {
	s, ok := cs.streams.get(h.Stream)
	if !ok {
		return nil
	}
	payload, err := stripPaddingAndPriority(payload, h.Flags&^FlagPriority)
	if err != nil {
		return err
	}
	endStream := h.Flags.Has(FlagEndStream)
	if err := cs.in.Append(s, payload, !endStream); err != nil {
		return err
	}
	if endStream {
		s.endRecv = true
		s.resp.Body = cs.in.Extract(s)
		cs.completeStream(s)
	}
	return nil
}

func (cs *ClientSession) completeStream(s *Stream) {
	cs.streams.delete(s.id)
	select {
	case s.done <- streamResult{resp: s.resp}:
	default:
	}
}
