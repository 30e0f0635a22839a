package speechtotext

import (
	"errors"

	"github.com/koscakluka/ema-duplex/core/audio"
)

// ErrNotConnected is returned when audio is sent to a connector whose
// transport is not open.
var ErrNotConnected = errors.New("speech to text connection is not open")

type TranscriptionOptions struct {
	// InterimTranscriptCallback receives every non-final fragment verbatim.
	InterimTranscriptCallback func(transcript string)
	// ConfirmedTranscriptCallback receives the accumulated utterance once the
	// recognizer signals that speech has ended.
	ConfirmedTranscriptCallback func(transcript string, turnOrder int)
	// EagerEndOfTurnCallback receives the accumulated utterance every time a
	// final fragment lands. More speech may still follow.
	EagerEndOfTurnCallback func(transcript string, turnOrder int)

	SpeechStartedCallback func()

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithInterimTranscriptCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptCallback = callback
	}
}

func WithConfirmedTranscriptCallback(callback func(transcript string, turnOrder int)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ConfirmedTranscriptCallback = callback
	}
}

func WithEagerEndOfTurnCallback(callback func(transcript string, turnOrder int)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EagerEndOfTurnCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
