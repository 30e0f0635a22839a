package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/speechtotext"
)

var errSpeechToTextMissing = errors.New("no speech-to-text client configured")

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
}

type speechToTextCallbacks struct {
	onInterimTranscript   func(transcript string)
	onConfirmedTranscript func(transcript string, turnOrder int)
	onEagerEndOfTurn      func(transcript string, turnOrder int)
	onSpeechStarted       func()
}

type speechToText struct {
	// client stores the configured recognizer connector.
	client SpeechToText
}

func (s *speechToText) set(client SpeechToText) {
	if s != nil {
		s.client = client
	}
}

func (s *speechToText) isConfigured() bool {
	return s != nil && s.client != nil
}

func (s *speechToText) Start(ctx context.Context, encodingInfo audio.EncodingInfo, callbacks speechToTextCallbacks) error {
	if !s.isConfigured() {
		return errSpeechToTextMissing
	}

	opts := []speechtotext.TranscriptionOption{speechtotext.WithEncodingInfo(encodingInfo)}
	if callbacks.onInterimTranscript != nil {
		opts = append(opts, speechtotext.WithInterimTranscriptCallback(callbacks.onInterimTranscript))
	}
	if callbacks.onConfirmedTranscript != nil {
		opts = append(opts, speechtotext.WithConfirmedTranscriptCallback(callbacks.onConfirmedTranscript))
	}
	if callbacks.onEagerEndOfTurn != nil {
		opts = append(opts, speechtotext.WithEagerEndOfTurnCallback(callbacks.onEagerEndOfTurn))
	}
	if callbacks.onSpeechStarted != nil {
		opts = append(opts, speechtotext.WithSpeechStartedCallback(callbacks.onSpeechStarted))
	}

	if err := s.client.Transcribe(ctx, opts...); err != nil {
		return fmt.Errorf("failed to start transcribing: %w", err)
	}
	return nil
}

// SendAudio forwards a frame. Frames the connector cannot take right now are
// dropped.
func (s *speechToText) SendAudio(audio []byte) error {
	if !s.isConfigured() {
		return nil
	}

	if err := s.client.SendAudio(audio); err != nil {
		if errors.Is(err, speechtotext.ErrNotConnected) {
			return nil
		}
		return err
	}
	return nil
}

func (s *speechToText) Close(ctx context.Context) error {
	if !s.isConfigured() {
		return nil
	}

	switch c := s.client.(type) {
	case interface{ Close(context.Context) error }:
		if err := c.Close(ctx); err != nil {
			return fmt.Errorf("failed to close speech-to-text client: %w", err)
		}
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close speech-to-text client: %w", err)
		}
	case interface{ Close() }:
		c.Close()
	}

	return nil
}
