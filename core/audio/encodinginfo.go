// Package audio describes the PCM audio exchanged with the realtime
// transport.
package audio

const (
	DefaultSampleRate = 24000
	DefaultFormat     = EncodingLinear16
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat, Channels: 1}
}

type EncodingInfo struct {
	SampleRate int            `yaml:"sample_rate" json:"sample_rate" validate:"gt=0" jsonschema:"description=Sample rate of tutor audio in Hz"`
	Format     encodingFormat `yaml:"format" json:"format" validate:"oneof=linear16 mulaw alaw" jsonschema:"enum=linear16,enum=mulaw,enum=alaw"`
	Channels   int            `yaml:"channels" json:"channels" validate:"gt=0" jsonschema:"minimum=1"`
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// BytesPerFrame is the size of one sample across all channels.
func (e EncodingInfo) BytesPerFrame() int {
	channels := max(e.Channels, 1)
	return e.Format.ByteSize() * channels
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
