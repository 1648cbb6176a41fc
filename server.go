package http2

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"
)

// Server is an HTTP/2 server session factory: it accepts connections,
// performs the server-side preface handshake, and dispatches requests
// to registered handlers. Configure exported fields before calling
// Serve, mirroring fasthttp.Server's struct-literal configuration style.
type Server struct {
	Logger               Logger
	IdleTimeout          time.Duration // default 10s, §5
	MaxConcurrentStreams uint32        // default 100, §9

	routes []route
}

// Handle registers h for every request whose path starts with
// pathPrefix. The first registered matching prefix wins; an
// unmatched request gets a 404 (§4.5).
func (s *Server) Handle(pathPrefix string, h Handler) {
	s.routes = append(s.routes, route{prefix: pathPrefix, handler: h})
}

func (s *Server) idleTimeout() time.Duration {
	if s.IdleTimeout > 0 {
		return s.IdleTimeout
	}
	return defaultIdleTimeoutMS * time.Millisecond
}

func (s *Server) settings() Settings {
	st := DefaultSettings()
	if s.MaxConcurrentStreams > 0 {
		st.MaxConcurrentStreams = s.MaxConcurrentStreams
	}
	return st
}

// Serve accepts connections from ln until it returns an error, running
// one pair of read/write-loop goroutines per connection (§5: "each runs
// on some underlying executor thread... no cross-connection
// coordination").
func (s *Server) Serve(ln net.Listener) error {
	logger := loggerOrNoop(s.Logger)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return &IoError{Err: err}
		}
		go s.serveConn(conn, logger)
	}
}

type streamResponse struct {
	id   uint32
	resp *Response
}

// serverSession is C5's server-side instance, bound to one accepted
// connection.
type serverSession struct {
	server *Server
	conn   net.Conn
	logger Logger

	in  *inputChannel
	out *outputChannel
	hp  *HPACK // decoder, owned by the read loop

	streams *streamTable

	idleTimeout time.Duration
	respCh      chan streamResponse
	stop        chan struct{}

	// lastStreamID is the highest stream id seen in a HEADERS frame,
	// touched only by the read loop; reported in a best-effort GOAWAY
	// on fatal teardown (§7).
	lastStreamID uint32
}

func (s *Server) serveConn(conn net.Conn, logger Logger) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	if err := readPreface(br); err != nil {
		logger.Printf("http2: server: %s", err)
		return
	}

	streams := newStreamTable()
	hpOut := NewHPACK()
	hpIn := NewHPACK()
	defer hpOut.Close()
	defer hpIn.Close()

	out := newOutputChannel(bw, hpOut, streams)
	in := newInputChannel(br, out, DefaultMaxFrameSize)

	sess := &serverSession{
		server:      s,
		conn:        conn,
		logger:      logger,
		in:          in,
		out:         out,
		hp:          hpIn,
		streams:     streams,
		idleTimeout: s.idleTimeout(),
		respCh:      make(chan streamResponse, 16),
		stop:        make(chan struct{}),
	}
	out.onStreamDone = func(id uint32) { streams.delete(id) }

	if err := out.Send(Header{Type: FrameSettings}, EncodeSettings(s.settings())); err != nil {
		logger.Printf("http2: server: %s", err)
		return
	}

	go sess.writeLoop()
	err := sess.readLoop()
	var ga errGoAway
	if !errors.As(err, &ga) {
		_ = sess.out.WriteGoAway(sess.lastStreamID, goAwayCodeFor(err))
	}
	close(sess.stop)
}

func (sess *serverSession) writeLoop() {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sess.stop:
			return
		case sr := <-sess.respCh:
			if err := sess.sendResponse(sr.id, sr.resp); err != nil {
				sess.logger.Printf("http2: server: %s", err)
				sess.conn.Close()
				return
			}
		case <-sess.out.dirty:
			if err := sess.out.Flush(); err != nil {
				sess.logger.Printf("http2: server: %s", err)
				sess.conn.Close()
				return
			}
		case <-ticker.C:
			if sess.out.hasPending() {
				if err := sess.out.Flush(); err != nil {
					sess.logger.Printf("http2: server: %s", err)
					sess.conn.Close()
					return
				}
			}
		}
	}
}

func (sess *serverSession) sendResponse(id uint32, resp *Response) error {
	fields := resp.pseudoHeaderFields()
	block, err := sess.out.hp.Deflate(fields)
	if err != nil {
		return err
	}
	flags := FlagEndHeaders
	if len(resp.Body) == 0 {
		flags |= FlagEndStream
	}
	if err := sess.out.Send(Header{Type: FrameHeaders, Flags: flags, Stream: id}, block); err != nil {
		return err
	}
	if len(resp.Body) == 0 {
		sess.streams.delete(id)
		return nil
	}
	sess.out.Enqueue(id, resp.Body)
	return nil
}

func (sess *serverSession) readLoop() error {
	for {
		setReadDeadline(sess.conn, sess.idleTimeout)
		h, payload, err := sess.in.Recv()
		if err != nil {
			return err
		}

		switch h.Type {
		case FrameHeaders:
			if err := sess.onHeaders(h, payload); err != nil {
				return err
			}
		case FrameContinuation:
			if err := sess.onContinuation(h, payload); err != nil {
				return err
			}
		case FrameData:
			if err := sess.onData(h, payload); err != nil {
				return err
			}
		case FrameSettings:
			if err := sess.onSettings(h, payload); err != nil {
				return err
			}
		case FrameWindowUpdate:
			if err := sess.out.WindowUpdate(h.Stream, payload); err != nil {
				return err
			}
		case FrameRSTStream:
			sess.streams.delete(h.Stream)
		case FrameGoAway:
			return &IoError{Err: errGoAway{}}
		default:
			// unknown/ignored type: read and discarded, per §3.
		}
	}
}

func (sess *serverSession) onHeaders(h Header, payload []byte) error {
	payload, err := stripPaddingAndPriority(payload, h.Flags)
	if err != nil {
		return err
	}

	if h.Stream > sess.lastStreamID {
		sess.lastStreamID = h.Stream
	}

	s, existed := sess.streams.get(h.Stream)
	if !existed {
		s = newStream(h.Stream)
		sess.streams.put(s)
	}
	s.noBody = h.Flags.Has(FlagEndStream)

	if err := sess.hp.Inflate(payload, func(name, value string) {
		s.hdrFields = append(s.hdrFields, HeaderField{Name: name, Value: value})
	}); err != nil {
		return err
	}

	if h.Flags.Has(FlagEndStream) {
		s.endRecv = true
		s.state = StreamHalfClosedRemote
	} else {
		s.state = StreamOpen
	}

	if h.Flags.Has(FlagEndHeaders) {
		sess.finishHeaders(s)
	}
	return nil
}

func (sess *serverSession) onContinuation(h Header, payload []byte) error {
	s, ok := sess.streams.get(h.Stream)
	if !ok {
		return nil
	}
	if err := sess.hp.Inflate(payload, func(name, value string) {
		s.hdrFields = append(s.hdrFields, HeaderField{Name: name, Value: value})
	}); err != nil {
		return err
	}
	if h.Flags.Has(FlagEndHeaders) {
		sess.finishHeaders(s)
	}
	return nil
}

func (sess *serverSession) finishHeaders(s *Stream) {
	req := requestFromFields(s.hdrFields)
	s.hdrFields = nil
	s.req = req
	if s.noBody {
		sess.dispatch(s.id, req)
	}
}

func (sess *serverSession) onData(h Header, payload []byte) error {
	s, ok := sess.streams.get(h.Stream)
	if !ok {
		return nil
	}
	payload, err := stripPaddingAndPriority(payload, h.Flags&^FlagPriority)
	if err != nil {
		return err
	}

	endStream := h.Flags.Has(FlagEndStream)
	if err := sess.in.Append(s, payload, !endStream); err != nil {
		return err
	}
	if endStream {
		s.endRecv = true
		s.state = StreamHalfClosedRemote
		req := s.req
		if req == nil {
			req = &Request{Headers: map[string]string{}}
		}
		req.Body = sess.in.Extract(s)
		sess.dispatch(s.id, req)
	}
	return nil
}

func (sess *serverSession) onSettings(h Header, payload []byte) error {
	if h.Flags.Has(FlagAck) {
		return nil
	}
	if _, err := DecodeSettings(payload); err != nil {
		return err
	}
	return sess.out.Send(Header{Type: FrameSettings, Flags: FlagAck}, nil)
}

func (sess *serverSession) dispatch(id uint32, req *Request) {
	go func() {
		resp := sess.invoke(req)
		select {
		case sess.respCh <- streamResponse{id: id, resp: resp}:
		case <-sess.stop:
		}
	}()
}

func (sess *serverSession) invoke(req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			appErr := &ApplicationError{Err: fmt.Errorf("%v", r)}
			sess.logger.Printf("http2: %s", appErr)
			resp = &Response{Status: 500, Body: []byte("internal server error")}
		}
	}()
	h := firstMatch(sess.server.routes, req.URL)
	if h == nil {
		h = notFound
	}
	resp = h(req)
	if resp == nil {
		resp = &Response{Status: 500, Body: []byte("internal server error")}
	}
	return resp
}

// stripPaddingAndPriority removes the PRIORITY fields (5 bytes, ignored
// per §1 Non-goals) and PADDED trailer from a HEADERS/DATA payload.
func stripPaddingAndPriority(payload []byte, flags Flags) ([]byte, error) {
	padLen := 0
	if flags.Has(FlagPadded) {
		if len(payload) < 1 {
			return nil, &MalformedFrame{Reason: "PADDED flag set but payload empty"}
		}
		padLen = int(payload[0])
		payload = payload[1:]
	}
	if flags.Has(FlagPriority) {
		if len(payload) < 5 {
			return nil, &MalformedFrame{Reason: "PRIORITY flag set but payload too short"}
		}
		payload = payload[5:]
	}
	if padLen > 0 {
		if len(payload) < padLen {
			return nil, &MalformedFrame{Reason: "padding length exceeds payload"}
		}
		payload = payload[:len(payload)-padLen]
	}
	return payload, nil
}
