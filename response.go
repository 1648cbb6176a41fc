package http2

import (
	"strconv"
	"strings"
)

// Response is the engine's application-facing response contract (§6).
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Header looks headers up case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	return lookupHeader(r.Headers, name)
}

// pseudoHeaderFields builds the full wire header-field list for an
// outbound response: :status first, then ordinary headers, filling in
// "server" if the application left it unset (§6).
func (r *Response) pseudoHeaderFields() []HeaderField {
	fields := responsePseudoHeaders(r.Status)
	sawServer := false
	for name, value := range r.Headers {
		if strings.HasPrefix(name, ":") {
			continue
		}
		if strings.EqualFold(name, "server") {
			sawServer = true
		}
		fields = append(fields, HeaderField{Name: name, Value: value})
	}
	if !sawServer {
		fields = append(fields, HeaderField{Name: "server", Value: "h2engine"})
	}
	return fields
}

// responseFromFields assembles a Response out of the ordered fields
// decoded off the wire.
func responseFromFields(fields []HeaderField) Response {
	resp := Response{Headers: make(map[string]string, len(fields))}
	for _, f := range fields {
		if f.Name == ":status" {
			resp.Status, _ = strconv.Atoi(f.Value)
			continue
		}
		resp.Headers[f.Name] = f.Value
	}
	return resp
}
