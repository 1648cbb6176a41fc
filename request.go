package http2

import "strings"

// Request is the engine's application-facing request contract (§6):
// deliberately independent of any particular HTTP library's request
// type, so the same shape serves the HTTP/2 core and the HTTP/1.1
// peripheral client in http1.go.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Header looks headers up case-insensitively, matching HTTP semantics.
func (r *Request) Header(name string) (string, bool) {
	return lookupHeader(r.Headers, name)
}

func lookupHeader(h map[string]string, name string) (string, bool) {
	if v, ok := h[name]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// pseudoHeaderFields builds the full wire header-field list for an
// outbound request: the mandatory pseudo-headers first (§4.2), then the
// ordinary headers in map order. authority carries host only, per §6 ("
// port not appended").
func (r *Request) pseudoHeaderFields(scheme, authority string) []HeaderField {
	path := r.URL
	if path == "" {
		path = "/"
	}
	fields := requestPseudoHeaders(r.Method, path, scheme, authority)
	for name, value := range r.Headers {
		if strings.HasPrefix(name, ":") {
			continue
		}
		fields = append(fields, HeaderField{Name: name, Value: value})
	}
	return fields
}

// requestFromFields assembles a Request out of the ordered fields
// decoded off the wire by HPACK.Inflate. :method and :path go into
// their own slots; every other field, including :scheme and
// :authority, is kept in Headers.
func requestFromFields(fields []HeaderField) *Request {
	req := &Request{Headers: make(map[string]string, len(fields))}
	for _, f := range fields {
		switch f.Name {
		case ":method":
			req.Method = f.Value
		case ":path":
			req.URL = f.Value
		default:
			req.Headers[f.Name] = f.Value
		}
	}
	return req
}
