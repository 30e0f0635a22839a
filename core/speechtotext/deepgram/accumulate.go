package deepgram

import (
	"strings"

	"github.com/koscakluka/ema-duplex/core/speechtotext"
)

type callbacks struct {
	interimTranscript   func(transcript string)
	confirmedTranscript func(transcript string, turnOrder int)
	eagerEndOfTurn      func(transcript string, turnOrder int)
	speechStarted       func()
}

func newCallbacks(options speechtotext.TranscriptionOptions) callbacks {
	c := callbacks{
		interimTranscript:   func(string) {},
		confirmedTranscript: func(string, int) {},
		eagerEndOfTurn:      func(string, int) {},
		speechStarted:       func() {},
	}
	if options.InterimTranscriptCallback != nil {
		c.interimTranscript = options.InterimTranscriptCallback
	}
	if options.ConfirmedTranscriptCallback != nil {
		c.confirmedTranscript = options.ConfirmedTranscriptCallback
	}
	if options.EagerEndOfTurnCallback != nil {
		c.eagerEndOfTurn = options.EagerEndOfTurnCallback
	}
	if options.SpeechStartedCallback != nil {
		c.speechStarted = options.SpeechStartedCallback
	}
	return c
}

// utteranceAccumulator collects final fragments of the utterance in progress.
// It is only touched from the read loop.
type utteranceAccumulator struct {
	segments  []string
	turnOrder int
}

func (a *utteranceAccumulator) text() string {
	return strings.Join(a.segments, " ")
}

// onResult applies one Results message and fires the matching callbacks.
func (a *utteranceAccumulator) onResult(transcript string, isFinal, speechFinal bool, cb callbacks) {
	transcript = strings.TrimSpace(transcript)

	if !isFinal {
		if transcript != "" {
			cb.interimTranscript(transcript)
		}
		return
	}

	if transcript != "" {
		a.segments = append(a.segments, transcript)
		cb.eagerEndOfTurn(a.text(), a.turnOrder)
	}

	if speechFinal {
		a.confirm(cb)
	}
}

// confirm fires the confirmed transcript for a non-empty buffer and starts the
// next utterance.
func (a *utteranceAccumulator) confirm(cb callbacks) {
	if len(a.segments) == 0 {
		return
	}

	text, turnOrder := a.text(), a.turnOrder
	a.segments = nil
	a.turnOrder++
	cb.confirmedTranscript(text, turnOrder)
}
