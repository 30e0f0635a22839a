// Package controls decodes the inbound control messages a client sends over
// the session connection.
package controls

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

const (
	KindHello         Kind = "hello"
	KindGetState      Kind = "get_state"
	KindUpdateField   Kind = "update_field"
	KindResetForm     Kind = "reset_form"
	KindStopVoice     Kind = "stop_voice"
	KindPlaybackEnded Kind = "playback_ended"
)

// ModeVoice asks the session to start the voice pipeline.
const ModeVoice = "voice"

var (
	ErrMalformed   = errors.New("malformed control message")
	ErrUnknownKind = errors.New("unknown control message")
)

type Control interface {
	Kind() Kind

	sealed()
}

type control struct{}

func (control) sealed() {}

type Hello struct {
	control
	Mode string `json:"mode"`
}

func (Hello) Kind() Kind { return KindHello }

// WantsVoice reports whether the client asked for the voice pipeline.
func (h Hello) WantsVoice() bool { return h.Mode == ModeVoice }

type GetState struct{ control }

func (GetState) Kind() Kind { return KindGetState }

type UpdateField struct {
	control
	Field string `json:"field"`
	Value string `json:"value"`
}

func (UpdateField) Kind() Kind { return KindUpdateField }

type ResetForm struct{ control }

func (ResetForm) Kind() Kind { return KindResetForm }

type StopVoice struct{ control }

func (StopVoice) Kind() Kind { return KindStopVoice }

// PlaybackEnded is sent by the speech sink once it has finished voicing the
// current reply.
type PlaybackEnded struct{ control }

func (PlaybackEnded) Kind() Kind { return KindPlaybackEnded }

func Kinds() []Kind {
	return []Kind{KindHello, KindGetState, KindUpdateField, KindResetForm, KindStopVoice, KindPlaybackEnded}
}

// Parse decodes a control message. Malformed JSON and unknown types return an
// error, callers are expected to drop such messages.
func Parse(data []byte) (Control, error) {
	var envelope struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	switch envelope.Type {
	case KindHello:
		var msg Hello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return msg, nil
	case KindGetState:
		return GetState{}, nil
	case KindUpdateField:
		var msg UpdateField
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if msg.Field == "" {
			return nil, fmt.Errorf("%w: update_field without field", ErrMalformed)
		}
		return msg, nil
	case KindResetForm:
		return ResetForm{}, nil
	case KindStopVoice:
		return StopVoice{}, nil
	case KindPlaybackEnded:
		return PlaybackEnded{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, envelope.Type)
}
