package http2

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHeaderRoundtrip(t *testing.T) {
	h := Header{Length: 1234, Type: FrameHeaders, Flags: FlagEndHeaders | FlagEndStream, Stream: 17}
	buf := make([]byte, FrameHeaderSize)
	enc, err := EncodeHeader(buf, h)
	require.NoError(t, err)
	require.Len(t, enc, FrameHeaderSize)

	got, err := DecodeHeader(enc)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderMasksReservedBit(t *testing.T) {
	buf := make([]byte, FrameHeaderSize)
	enc, err := EncodeHeader(buf, Header{Stream: 5})
	require.NoError(t, err)
	enc[5] |= 0x80 // assert the reserved top bit

	got, err := DecodeHeader(enc)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.Stream)
}

func TestEncodeHeaderRejectsOversizedFields(t *testing.T) {
	buf := make([]byte, FrameHeaderSize)
	_, err := EncodeHeader(buf, Header{Length: maxPayloadLength + 1})
	assert.Error(t, err)

	_, err = EncodeHeader(buf, Header{Stream: maxStreamID + 1})
	assert.Error(t, err)
}

func TestWriteFrameThenReadFrame(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	payload := []byte("hello world")
	err := WriteFrame(w, Header{Type: FrameData, Flags: FlagEndStream, Stream: 1}, payload)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	r := bufio.NewReader(&out)
	h, got, err := ReadFrame(r, DefaultMaxFrameSize)
	require.NoError(t, err)
	assert.Equal(t, FrameData, h.Type)
	assert.True(t, h.Flags.Has(FlagEndStream))
	assert.Equal(t, uint32(1), h.Stream)
	assert.Equal(t, payload, got)
}

func TestWriteFrameZeroLengthPayload(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	require.NoError(t, WriteFrame(w, Header{Type: FrameSettings, Flags: FlagAck}, nil))
	require.NoError(t, w.Flush())
	assert.Equal(t, FrameHeaderSize, out.Len())
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	payload := make([]byte, 32)
	require.NoError(t, WriteFrame(w, Header{Type: FrameData, Stream: 1}, payload))
	require.NoError(t, w.Flush())

	r := bufio.NewReader(&out)
	_, _, err := ReadFrame(r, 16)
	assert.Error(t, err)
	var mf *MalformedFrame
	assert.ErrorAs(t, err, &mf)
}
