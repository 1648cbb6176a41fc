package http2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHPACKRoundtrip(t *testing.T) {
	enc := NewHPACK()
	fields := append(requestPseudoHeaders("GET", "/test", "http", "example.com"),
		HeaderField{Name: "user-agent", Value: "h2engine-test"},
		HeaderField{Name: "accept", Value: "*/*"},
	)

	block, err := enc.Deflate(fields)
	require.NoError(t, err)

	dec := NewHPACK()
	var got []HeaderField
	require.NoError(t, dec.Inflate(block, func(name, value string) {
		got = append(got, HeaderField{Name: name, Value: value})
	}))

	require.Len(t, got, len(fields))
	for i, f := range fields {
		assert.Equal(t, f.Name, got[i].Name)
		assert.Equal(t, f.Value, got[i].Value)
	}
	assert.True(t, got[0].IsPseudo())
}

func TestHPACKInflateAcrossContinuationFragments(t *testing.T) {
	enc := NewHPACK()
	fields := responsePseudoHeaders(200)
	fields = append(fields, HeaderField{Name: "content-length", Value: "4"})
	block, err := enc.Deflate(fields)
	require.NoError(t, err)
	require.Greater(t, len(block), 1)

	split := len(block) / 2
	dec := NewHPACK()
	var got []HeaderField
	emit := func(name, value string) { got = append(got, HeaderField{Name: name, Value: value}) }
	require.NoError(t, dec.Inflate(block[:split], emit))
	require.NoError(t, dec.Inflate(block[split:], emit))

	require.Len(t, got, len(fields))
	assert.Equal(t, ":status", got[0].Name)
	assert.Equal(t, "200", got[0].Value)
}

func TestHPACKMalformedBlockIsHeaderBlockError(t *testing.T) {
	dec := NewHPACK()
	// 0x80: indexed header field representation with index 0, which RFC
	// 7541 §6.1 forbids (index 0 is not assigned).
	err := dec.Inflate([]byte{0x80}, func(string, string) {})
	require.Error(t, err)
	var hbe *HeaderBlockError
	assert.ErrorAs(t, err, &hbe)
}
