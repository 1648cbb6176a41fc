package http2

import (
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/http2/hpack"
)

// HeaderField is a single decoded or to-be-encoded name/value pair.
// Pseudo-header names start with ':' (":method", ":path", ":scheme",
// ":authority", ":status").
type HeaderField struct {
	Name  string
	Value string
}

// IsPseudo reports whether f is a pseudo-header.
func (f HeaderField) IsPseudo() bool { return len(f.Name) > 0 && f.Name[0] == ':' }

// HPACK is a per-direction-pair HPACK codec. It wraps
// golang.org/x/net/http2/hpack, treating it as the opaque black-box
// encoder/decoder collaborator named in §4.2: this engine never
// reimplements the static table or Huffman coding itself.
type HPACK struct {
	buf bytebufferpool.ByteBuffer
	enc *hpack.Encoder

	dec     *hpack.Decoder
	pending []HeaderField
}

// NewHPACK constructs a codec with both tables at DefaultHeaderTableSize.
func NewHPACK() *HPACK {
	h := &HPACK{}
	h.enc = hpack.NewEncoder(&h.buf)
	h.enc.SetMaxDynamicTableSize(DefaultHeaderTableSize)
	h.dec = hpack.NewDecoder(DefaultHeaderTableSize, h.onDecodedField)
	return h
}

func (h *HPACK) onDecodedField(f hpack.HeaderField) {
	h.pending = append(h.pending, HeaderField{Name: f.Name, Value: f.Value})
}

// SetMaxTableSize resizes both the encoder's and decoder's dynamic
// table, mirroring a SETTINGS_HEADER_TABLE_SIZE negotiation.
func (h *HPACK) SetMaxTableSize(n uint32) {
	h.enc.SetMaxDynamicTableSize(n)
	h.dec.SetMaxDynamicTableSize(n)
}

// Deflate encodes fields in the order given. Per §4.2 the caller is
// responsible for ordering pseudo-headers first; Deflate only lower-cases
// names (RFC 7541 requires lowercase header names on the wire).
func (h *HPACK) Deflate(fields []HeaderField) ([]byte, error) {
	h.buf.Reset()
	for _, f := range fields {
		err := h.enc.WriteField(hpack.HeaderField{Name: strings.ToLower(f.Name), Value: f.Value})
		if err != nil {
			return nil, &HeaderBlockError{Err: err}
		}
	}
	out := make([]byte, h.buf.Len())
	copy(out, h.buf.Bytes())
	return out, nil
}

// Inflate decodes block, a single HEADERS/CONTINUATION fragment, and
// invokes emit for every field it completes, in order. Call Inflate
// once per fragment of a logical header block; the underlying decoder
// carries partial-field state across calls until the block's final
// CONTINUATION, matching §4.2's "retains continuation state" contract.
func (h *HPACK) Inflate(block []byte, emit func(name, value string)) error {
	h.pending = h.pending[:0]
	if _, err := h.dec.Write(block); err != nil {
		return &HeaderBlockError{Err: err}
	}
	for _, f := range h.pending {
		emit(f.Name, f.Value)
	}
	return nil
}

// Close releases the decoder's resources. Safe to call once per HPACK
// lifetime, at session teardown.
func (h *HPACK) Close() error {
	return h.dec.Close()
}

// requestPseudoHeaders builds the mandatory pseudo-header set for an
// outbound request, in wire order, per §4.2 and §6.
func requestPseudoHeaders(method, path, scheme, authority string) []HeaderField {
	return []HeaderField{
		{Name: ":method", Value: method},
		{Name: ":path", Value: path},
		{Name: ":scheme", Value: scheme},
		{Name: ":authority", Value: authority},
	}
}

// responsePseudoHeaders builds the mandatory pseudo-header set for an
// outbound response.
func responsePseudoHeaders(status int) []HeaderField {
	return []HeaderField{{Name: ":status", Value: strconv.Itoa(status)}}
}
