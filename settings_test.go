package http2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRoundtrip(t *testing.T) {
	st := Settings{
		HeaderTableSize:      8192,
		MaxConcurrentStreams: 50,
		InitialWindowSize:    32768,
		MaxFrameSize:         32768,
	}
	payload := EncodeSettings(st)
	got, err := DecodeSettings(payload)
	require.NoError(t, err)
	assert.Equal(t, st.HeaderTableSize, got.HeaderTableSize)
	assert.Equal(t, st.MaxConcurrentStreams, got.MaxConcurrentStreams)
	assert.Equal(t, st.InitialWindowSize, got.InitialWindowSize)
	assert.Equal(t, st.MaxFrameSize, got.MaxFrameSize)
}

func TestDecodeSettingsIgnoresUnknownID(t *testing.T) {
	payload := appendSetting(nil, settingID(0x99), 42)
	st, err := DecodeSettings(payload)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings().MaxConcurrentStreams, st.MaxConcurrentStreams)
}

func TestDecodeSettingsRejectsMisalignedPayload(t *testing.T) {
	_, err := DecodeSettings([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
	var mf *MalformedFrame
	assert.ErrorAs(t, err, &mf)
}

func TestDefaultSettingsMatchEngineDefaults(t *testing.T) {
	st := DefaultSettings()
	assert.EqualValues(t, DefaultHeaderTableSize, st.HeaderTableSize)
	assert.EqualValues(t, DefaultWindowSize, st.InitialWindowSize)
	assert.EqualValues(t, DefaultMaxFrameSize, st.MaxFrameSize)
	assert.False(t, st.EnablePush)
}
