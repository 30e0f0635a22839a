package orchestration

import "github.com/koscakluka/ema-duplex/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// SessionCallbacks are typed shortcuts over the event stream. They run on the
// session runtime and should not block.
type SessionCallbacks struct {
	onInterimTranscript func(string)
	onUserTurn          func(text string, turnOrder int)
	onTextDelta         func(text string, turnOrder int)
	onReply             func(text string, turnOrder int)
	onBargeIn           func(heardPrefix, fullText string)
	onFieldUpdated      func(field, value string)
	onError             func(message string)
}

func newCallbackEventEmitter(callbacks SessionCallbacks, handler func(events.Event)) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.InterimTranscript:
			if callbacks.onInterimTranscript != nil {
				callbacks.onInterimTranscript(typedEvent.Text)
			}
		case events.UserTurn:
			if callbacks.onUserTurn != nil {
				callbacks.onUserTurn(typedEvent.Text, typedEvent.TurnOrder)
			}
		case events.TextDelta:
			if callbacks.onTextDelta != nil && !typedEvent.IsEnd {
				callbacks.onTextDelta(typedEvent.Text, typedEvent.TurnOrder)
			}
		case events.AITurn:
			if callbacks.onReply != nil {
				callbacks.onReply(typedEvent.Text, typedEvent.TurnOrder)
			}
		case events.StartOfTurn:
			if callbacks.onBargeIn != nil && typedEvent.IsBargeIn() {
				callbacks.onBargeIn(*typedEvent.HeardPrefix, *typedEvent.FullText)
			}
		case events.FieldUpdated:
			if callbacks.onFieldUpdated != nil {
				callbacks.onFieldUpdated(typedEvent.Field, typedEvent.Value)
			}
		case events.Error:
			if callbacks.onError != nil {
				callbacks.onError(typedEvent.Message)
			}
		}

		if handler != nil {
			handler(event)
		}
	}
}
