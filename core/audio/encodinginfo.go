package audio

const (
	DefaultSampleRate        = 16000
	DefaultCaptureSampleRate = 48000
	DefaultFrameSize         = 2048
	DefaultFormat            = "linear16"
)

// DefaultEncodingInfo describes the stream the recognizer connector expects:
// mono little-endian PCM16 at 16 kHz.
func DefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: EncodingLinear16, Channels: 1}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
	Channels   int
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// FrameBytes returns the size in bytes of a frame holding the given number
// of samples per channel.
func (e EncodingInfo) FrameBytes(samples int) int {
	channels := max(e.Channels, 1)
	return samples * channels * e.Format.ByteSize()
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingFloat32:
		return 4
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingLinear16 encodingFormat = "linear16"
	EncodingFloat32  encodingFormat = "float32"
)
