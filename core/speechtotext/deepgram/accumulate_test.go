package deepgram

import (
	"testing"

	"github.com/koscakluka/ema-duplex/core/speechtotext"
)

type recordedCall struct {
	kind      string
	text      string
	turnOrder int
}

func recordingCallbacks(calls *[]recordedCall) callbacks {
	return newCallbacks(speechtotext.TranscriptionOptions{
		InterimTranscriptCallback: func(text string) {
			*calls = append(*calls, recordedCall{kind: "interim", text: text})
		},
		ConfirmedTranscriptCallback: func(text string, turnOrder int) {
			*calls = append(*calls, recordedCall{kind: "confirmed", text: text, turnOrder: turnOrder})
		},
		EagerEndOfTurnCallback: func(text string, turnOrder int) {
			*calls = append(*calls, recordedCall{kind: "eager", text: text, turnOrder: turnOrder})
		},
		SpeechStartedCallback: func() {
			*calls = append(*calls, recordedCall{kind: "speech_started"})
		},
	})
}

func TestNewCallbacksDefaultsToNoop(t *testing.T) {
	cb := newCallbacks(speechtotext.TranscriptionOptions{})

	cb.interimTranscript("interim")
	cb.confirmedTranscript("final", 0)
	cb.eagerEndOfTurn("eager", 0)
	cb.speechStarted()
}

func TestAccumulatorInterimFragmentsDoNotAccumulate(t *testing.T) {
	var calls []recordedCall
	cb := recordingCallbacks(&calls)
	var a utteranceAccumulator

	a.onResult("my na", false, false, cb)
	a.onResult("my name", false, false, cb)
	a.onResult("  ", false, false, cb)

	if len(calls) != 2 {
		t.Fatalf("expected 2 interim callbacks, got %d", len(calls))
	}
	if calls[1].kind != "interim" || calls[1].text != "my name" {
		t.Fatalf("expected verbatim interim, got %+v", calls[1])
	}
	if len(a.segments) != 0 {
		t.Fatalf("expected no accumulated segments, got %v", a.segments)
	}
}

func TestAccumulatorFiresEagerOnEveryFinalFragment(t *testing.T) {
	var calls []recordedCall
	cb := recordingCallbacks(&calls)
	var a utteranceAccumulator

	a.onResult("My name", true, false, cb)
	a.onResult("is John", true, false, cb)

	want := []recordedCall{
		{kind: "eager", text: "My name", turnOrder: 0},
		{kind: "eager", text: "My name is John", turnOrder: 0},
	}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %+v", len(want), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: expected %+v, got %+v", i, want[i], calls[i])
		}
	}
}

func TestAccumulatorConfirmsOnSpeechFinal(t *testing.T) {
	var calls []recordedCall
	cb := recordingCallbacks(&calls)
	var a utteranceAccumulator

	a.onResult("My name", true, false, cb)
	a.onResult("is John", true, true, cb)
	a.onResult("I am 70", true, true, cb)

	var confirmed []recordedCall
	for _, call := range calls {
		if call.kind == "confirmed" {
			confirmed = append(confirmed, call)
		}
	}

	if len(confirmed) != 2 {
		t.Fatalf("expected 2 confirmed transcripts, got %+v", confirmed)
	}
	if confirmed[0].text != "My name is John" || confirmed[0].turnOrder != 0 {
		t.Fatalf("unexpected first confirmed transcript: %+v", confirmed[0])
	}
	if confirmed[1].text != "I am 70" || confirmed[1].turnOrder != 1 {
		t.Fatalf("unexpected second confirmed transcript: %+v", confirmed[1])
	}
	if len(a.segments) != 0 {
		t.Fatalf("expected empty buffer after confirmation, got %v", a.segments)
	}
}

func TestAccumulatorSpeechFinalWithEmptyFragmentConfirmsBuffer(t *testing.T) {
	var calls []recordedCall
	cb := recordingCallbacks(&calls)
	var a utteranceAccumulator

	a.onResult("hello", true, false, cb)
	a.onResult("", true, true, cb)

	last := calls[len(calls)-1]
	if last.kind != "confirmed" || last.text != "hello" {
		t.Fatalf("expected confirmation of buffered text, got %+v", last)
	}
}

func TestAccumulatorConfirmWithEmptyBufferIsNoop(t *testing.T) {
	var calls []recordedCall
	cb := recordingCallbacks(&calls)
	var a utteranceAccumulator

	a.confirm(cb)
	a.onResult("", true, true, cb)

	if len(calls) != 0 {
		t.Fatalf("expected no callbacks, got %+v", calls)
	}
	if a.turnOrder != 0 {
		t.Fatalf("expected turn order to stay at 0, got %d", a.turnOrder)
	}
}
