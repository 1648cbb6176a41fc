package http2

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, h Handler, pathPrefix string) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &Server{}
	srv.Handle(pathPrefix, h)
	go srv.Serve(ln)
	return ln.Addr().String(), func() { ln.Close() }
}

func TestSimpleGETRoundtrip(t *testing.T) {
	addr, stop := startServer(t, func(r *Request) *Response {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/test", r.URL)
		return &Response{Status: 200, Body: []byte("body")}
	}, "/test")
	defer stop()

	d := &Dialer{Addr: addr}
	cs, err := d.Dial()
	require.NoError(t, err)
	defer cs.Close()

	resp, err := cs.Perform(&Request{Method: "GET", URL: "/test"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "body", string(resp.Body))
}

func TestNotFoundRoute(t *testing.T) {
	addr, stop := startServer(t, func(r *Request) *Response {
		return &Response{Status: 200, Body: []byte("ok")}
	}, "/known")
	defer stop()

	d := &Dialer{Addr: addr}
	cs, err := d.Dial()
	require.NoError(t, err)
	defer cs.Close()

	resp, err := cs.Perform(&Request{Method: "GET", URL: "/missing"})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.Status)
	var rse *RemoteStatusError
	assert.ErrorAs(t, err, &rse)
}

// TestLargeBodyFragmentation drives the server with a raw connection
// (bypassing ClientSession) so the exact sequence of on-wire DATA
// frame sizes produced by the C4 min-of-five budget can be observed,
// not just the reassembled body.
func TestLargeBodyFragmentation(t *testing.T) {
	body := make([]byte, 50000)
	for i := range body {
		body[i] = byte(i)
	}

	addr, stop := startServer(t, func(r *Request) *Response {
		return &Response{Status: 200, Body: body}
	}, "/big")
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)
	require.NoError(t, writePreface(bw))

	// server's initial SETTINGS frame
	h, _, err := ReadFrame(br, DefaultMaxFrameSize)
	require.NoError(t, err)
	require.Equal(t, FrameSettings, h.Type)

	hp := NewHPACK()
	defer hp.Close()
	fields := requestPseudoHeaders("GET", "/big", "http", addr)
	block, err := hp.Deflate(fields)
	require.NoError(t, err)
	require.NoError(t, WriteFrame(bw, Header{Type: FrameHeaders, Flags: FlagEndHeaders | FlagEndStream, Stream: 1}, block))
	require.NoError(t, bw.Flush())

	var sizes []int
	var got []byte
readLoop:
	for {
		h, payload, err := ReadFrame(br, DefaultMaxFrameSize)
		require.NoError(t, err)
		if h.Type != FrameData {
			continue
		}
		sizes = append(sizes, len(payload))
		got = append(got, payload...)
		if h.Flags.Has(FlagEndStream) {
			break readLoop
		}
	}

	assert.Equal(t, []int{16384, 16384, 16384, 848}, sizes)
	assert.Equal(t, body, got)
}

func TestEchoRequestBody(t *testing.T) {
	addr, stop := startServer(t, func(r *Request) *Response {
		return &Response{Status: 200, Body: r.Body}
	}, "/echo")
	defer stop()

	d := &Dialer{Addr: addr, RequestTimeout: 5 * time.Second}
	cs, err := d.Dial()
	require.NoError(t, err)
	defer cs.Close()

	payload := make([]byte, 100000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	resp, err := cs.Perform(&Request{Method: "POST", URL: "/echo", Body: payload})
	require.NoError(t, err)
	assert.Equal(t, payload, resp.Body)
}

func TestConcurrentStreamsUseSequentialOddIDs(t *testing.T) {
	addr, stop := startServer(t, func(r *Request) *Response {
		v, _ := r.Header("x-n")
		return &Response{Status: 200, Headers: map[string]string{"x-n": v}, Body: []byte(v)}
	}, "/c")
	defer stop()

	d := &Dialer{Addr: addr, RequestTimeout: 5 * time.Second}
	cs, err := d.Dial()
	require.NoError(t, err)
	defer cs.Close()

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := cs.Perform(&Request{
				Method: "GET", URL: "/c",
				Headers: map[string]string{"x-n": string(rune('0' + i))},
			})
			require.NoError(t, err)
			results[i] = string(resp.Body)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, string(rune('0'+i)), results[i])
	}
	// ten allocations starting at 1 with step 2 consumed ids 1, 3, ..., 19
	assert.Equal(t, uint32(2*n+1), cs.nextStreamID.Load())
}

func TestHandlerPanicProduces500(t *testing.T) {
	addr, stop := startServer(t, func(r *Request) *Response {
		panic("boom")
	}, "/panic")
	defer stop()

	d := &Dialer{Addr: addr}
	cs, err := d.Dial()
	require.NoError(t, err)
	defer cs.Close()

	resp, err := cs.Perform(&Request{Method: "GET", URL: "/panic"})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 500, resp.Status)
}
