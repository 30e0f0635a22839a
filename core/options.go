package orchestration

import (
	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/forms"
)

type SessionOption func(*Session)

func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

func WithSpeechToTextClient(client SpeechToText) SessionOption {
	return func(s *Session) {
		s.speechToText.set(client)
	}
}

// WithStreamingLLM sets the model that produces authoritative replies.
func WithStreamingLLM(client LLMWithStream) SessionOption {
	return func(s *Session) {
		s.replyLLM = client
	}
}

// WithPromptLLM sets a non-streaming model for authoritative replies. Each
// reply is then delivered as a single delta.
func WithPromptLLM(client LLMWithPrompt) SessionOption {
	return func(s *Session) {
		s.replyLLM = client
	}
}

// WithEagerLLM sets the cheaper model used for speculative replies. Without
// it no eager replies are prepared.
func WithEagerLLM(client LLMWithPrompt) SessionOption {
	return func(s *Session) {
		s.eagerLLM = client
	}
}

func WithTurnConfig(config TurnConfig) SessionOption {
	return func(s *Session) {
		s.turnConfig = config
	}
}

func WithReplyConfig(config ReplyConfig) SessionOption {
	return func(s *Session) {
		s.replyConfig = config
	}
}

func WithInitialForm(form forms.Form) SessionOption {
	return func(s *Session) {
		s.form = form
	}
}

// WithEncodingInfo sets the audio format the recognizer is opened with.
func WithEncodingInfo(encodingInfo audio.EncodingInfo) SessionOption {
	return func(s *Session) {
		if !encodingInfo.IsZero() {
			s.encodingInfo = encodingInfo
		}
	}
}

// WithEventHandler receives every outward event, in order. The handler runs
// on the session runtime and should not block.
func WithEventHandler(handler func(events.Event)) SessionOption {
	return func(s *Session) {
		s.handler = handler
	}
}

func WithInterimTranscriptCallback(callback func(transcript string)) SessionOption {
	return func(s *Session) {
		s.callbacks.onInterimTranscript = callback
	}
}

func WithUserTurnCallback(callback func(text string, turnOrder int)) SessionOption {
	return func(s *Session) {
		s.callbacks.onUserTurn = callback
	}
}

func WithTextDeltaCallback(callback func(text string, turnOrder int)) SessionOption {
	return func(s *Session) {
		s.callbacks.onTextDelta = callback
	}
}

func WithReplyCallback(callback func(text string, turnOrder int)) SessionOption {
	return func(s *Session) {
		s.callbacks.onReply = callback
	}
}

// WithBargeInCallback is called when the user interrupts a reply, with the
// estimated voiced prefix and the full reply text.
func WithBargeInCallback(callback func(heardPrefix, fullText string)) SessionOption {
	return func(s *Session) {
		s.callbacks.onBargeIn = callback
	}
}

func WithFieldUpdatedCallback(callback func(field, value string)) SessionOption {
	return func(s *Session) {
		s.callbacks.onFieldUpdated = callback
	}
}

func WithErrorCallback(callback func(message string)) SessionOption {
	return func(s *Session) {
		s.callbacks.onError = callback
	}
}

func withClock(clock clock) SessionOption {
	return func(s *Session) {
		s.clock = clock
	}
}
