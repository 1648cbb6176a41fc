package http2

import (
	"net"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTP1Client is the peripheral HTTP/1.1 request/response pair
// specified only at the interface level in §6. It reuses the same
// Request/Response contract as the HTTP/2 engine, built directly on
// fasthttp.HostClient, which already implements a keyed keep-alive
// connection pool with an idle-connection reaper -- exactly the
// behavior §6 asks for, so it is reused rather than reimplemented.
type HTTP1Client struct {
	host *fasthttp.HostClient
}

// NewHTTP1Client builds a pooled client for addr ("host:port").
// idleTimeout bounds how long a pooled connection may sit unused before
// the reaper closes it; zero selects fasthttp's own default.
func NewHTTP1Client(addr string, idleTimeout, connectTimeout time.Duration, logger Logger) *HTTP1Client {
	dial := fasthttp.Dial
	if connectTimeout > 0 {
		dial = func(a string) (net.Conn, error) { return net.DialTimeout("tcp", a, connectTimeout) }
	}
	return &HTTP1Client{host: &fasthttp.HostClient{
		Addr:                addr,
		Dial:                dial,
		MaxIdleConnDuration: idleTimeout,
		Logger:              loggerOrNoop(logger),
	}}
}

// Do performs req with the given total timeout (ms per §6), returning
// the correlated Response. The connect timeout passed to
// NewHTTP1Client governs dialing a fresh pooled connection.
func (c *HTTP1Client) Do(req *Request, totalTimeout time.Duration) (*Response, error) {
	freq := fasthttp.AcquireRequest()
	fresp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(freq)
	defer fasthttp.ReleaseResponse(fresp)

	freq.Header.SetMethod(req.Method)
	freq.SetRequestURI(req.URL)
	for name, value := range req.Headers {
		freq.Header.Set(name, value)
	}
	if len(req.Body) > 0 {
		freq.SetBody(req.Body)
	}

	if totalTimeout <= 0 {
		totalTimeout = defaultRequestTimeoutMS * time.Millisecond
	}

	if err := c.host.DoTimeout(freq, fresp, totalTimeout); err != nil {
		return nil, &IoError{Err: err}
	}

	resp := &Response{
		Status:  fresp.StatusCode(),
		Headers: make(map[string]string),
		Body:    append([]byte(nil), fresp.Body()...),
	}
	fresp.Header.VisitAll(func(k, v []byte) {
		resp.Headers[string(k)] = string(v)
	})
	if resp.Status >= 400 {
		return resp, &RemoteStatusError{Status: resp.Status}
	}
	return resp, nil
}

// Close releases the pooled connections held by c.
func (c *HTTP1Client) Close() {
	c.host.CloseIdleConnections()
}
