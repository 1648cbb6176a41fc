package http2

import "github.com/tildepoint/h2engine/http2utils"

// Wire-level constants shared by C3/C4, matching §6 and §4.4 exactly.
const (
	DefaultWindowSize    = 65535
	DefaultMaxFrameSize  = 16384
	MaxStreamExclusive   = 131072
	MinFrameSize         = 4096
	DefaultHeaderTableSize = 4096

	// defaultConcurrentStreams is the conservative cap chosen per §9's
	// open question: the core does not enforce one, production should.
	defaultConcurrentStreams = 100

	defaultIdleTimeoutMS    = 10000
	defaultConnectTimeoutMS = 100
	defaultRequestTimeoutMS = 1000
)

type settingID uint16

const (
	settingHeaderTableSize      settingID = 0x1
	settingEnablePush           settingID = 0x2
	settingMaxConcurrentStreams settingID = 0x3
	settingInitialWindowSize    settingID = 0x4
	settingMaxFrameSize         settingID = 0x5
	settingMaxHeaderListSize    settingID = 0x6
)

// Settings is the SETTINGS frame payload, parsed for observability per
// §4.5: the engine never dynamically adapts its own frame size or
// window size mid-connection based on peer values.
type Settings struct {
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
}

// DefaultSettings returns the values this engine advertises in its own
// initial SETTINGS frame.
func DefaultSettings() Settings {
	return Settings{
		HeaderTableSize:      DefaultHeaderTableSize,
		EnablePush:           false,
		MaxConcurrentStreams: defaultConcurrentStreams,
		InitialWindowSize:    DefaultWindowSize,
		MaxFrameSize:         DefaultMaxFrameSize,
		MaxHeaderListSize:    0, // unset
	}
}

// DecodeSettings parses a SETTINGS payload, six bytes per entry. Unknown
// setting ids are ignored, matching RFC 7540 §6.5.2.
func DecodeSettings(payload []byte) (Settings, error) {
	if len(payload)%6 != 0 {
		return Settings{}, &MalformedFrame{Reason: "SETTINGS payload not a multiple of 6"}
	}
	st := DefaultSettings()
	for i := 0; i+6 <= len(payload); i += 6 {
		id := settingID(http2utils.BytesToUint32([]byte{0, 0, payload[i], payload[i+1]}))
		val := http2utils.BytesToUint32(payload[i+2 : i+6])
		switch id {
		case settingHeaderTableSize:
			st.HeaderTableSize = val
		case settingEnablePush:
			st.EnablePush = val != 0
		case settingMaxConcurrentStreams:
			st.MaxConcurrentStreams = val
		case settingInitialWindowSize:
			st.InitialWindowSize = val
		case settingMaxFrameSize:
			st.MaxFrameSize = val
		case settingMaxHeaderListSize:
			st.MaxHeaderListSize = val
		}
	}
	return st, nil
}

// EncodeSettings serializes the subset of st this engine ever actually
// advertises to a peer (header table size, max concurrent streams,
// initial window size, max frame size).
func EncodeSettings(st Settings) []byte {
	out := make([]byte, 0, 24)
	out = appendSetting(out, settingHeaderTableSize, st.HeaderTableSize)
	out = appendSetting(out, settingMaxConcurrentStreams, st.MaxConcurrentStreams)
	out = appendSetting(out, settingInitialWindowSize, st.InitialWindowSize)
	out = appendSetting(out, settingMaxFrameSize, st.MaxFrameSize)
	return out
}

func appendSetting(dst []byte, id settingID, val uint32) []byte {
	dst = append(dst, byte(id>>8), byte(id))
	dst = http2utils.AppendUint32Bytes(dst, val)
	return dst
}
