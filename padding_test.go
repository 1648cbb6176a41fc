package http2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildepoint/h2engine/http2utils"
)

func TestStripPaddingMatchesAddPadding(t *testing.T) {
	block := []byte("pretend-header-block-bytes")
	padded := http2utils.AddPadding(append([]byte{}, block...))

	got, err := stripPaddingAndPriority(padded, FlagPadded)
	require.NoError(t, err)
	assert.Equal(t, block, got)
}

func TestCutPaddingMatchesStripPadding(t *testing.T) {
	block := []byte("another-block")
	padded := http2utils.AddPadding(append([]byte{}, block...))

	cut := http2utils.CutPadding(padded, len(padded))
	assert.Equal(t, block, cut)
}
