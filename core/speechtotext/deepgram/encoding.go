package deepgram

import (
	"fmt"

	"github.com/koscakluka/ema-duplex/core/audio"
)

type encodingInfo struct {
	SampleRate int
	Format     encodingFormat
	Channels   int
}

type encodingFormat string

func (e encodingFormat) Name() string { return string(e) }

const encodingLinear16 encodingFormat = "linear16"

func convertEncoding(encoding audio.EncodingInfo) (*encodingInfo, error) {
	deepgramEncoding := encodingInfo{Channels: 1}
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
		deepgramEncoding.SampleRate = encoding.SampleRate
	default:
		return nil, fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
		deepgramEncoding.Format = encodingLinear16
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding.Format.Name())
	}

	if encoding.Channels > 1 {
		return nil, fmt.Errorf("unsupported channel count %d", encoding.Channels)
	}

	return &deepgramEncoding, nil
}
