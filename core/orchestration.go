package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/controls"
	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/forms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const closeTimeout = 5 * time.Second

const (
	missingKeysMessage      = "Missing API keys for voice pipeline"
	recognizerFailedMessage = "Failed to connect to speech recognizer"
)

var (
	ErrSessionClosed             = errors.New("session is closed")
	ErrVoicePipelineUnconfigured = errors.New("voice pipeline is missing a recognizer or a language model")
)

// Session is one user's conversation. It owns the turn coordinator, the
// reply engine, the recognizer connection and the form being filled in. All
// of that state is mutated on the session runtime only.
type Session struct {
	id string

	speechToText speechToText
	eagerLLM     LLM
	replyLLM     LLM
	turnConfig   TurnConfig
	replyConfig  ReplyConfig
	encodingInfo audio.EncodingInfo
	clock        clock
	handler      func(events.Event)
	callbacks    SessionCallbacks

	runtime     *actorRuntime
	engine      *ReplyEngine
	coordinator *turnCoordinator
	emit        eventEmitter

	// form is owned by the runtime.
	form forms.Form

	baseContext context.Context
	startOnce   sync.Once
	closeOnce   sync.Once
	cancelHook  chan struct{}

	voiceMu     sync.Mutex
	voiceActive atomic.Bool
}

func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		id:           uuid.NewString(),
		turnConfig:   DefaultTurnConfig(),
		replyConfig:  DefaultReplyConfig(),
		encodingInfo: audio.DefaultEncodingInfo(),
		clock:        realClock{},
		runtime:      newActorRuntime("session"),
		baseContext:  context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.emit = newCallbackEventEmitter(s.callbacks, s.handler)
	s.engine = NewReplyEngine(s.eagerLLM, s.replyLLM, s, s.replyConfig)
	s.coordinator = newTurnCoordinator(s.baseContext, s.turnConfig, s.engine, s.clock,
		s.runtime.post, s.emit, func() forms.Form { return s.form })

	return s
}

func (s *Session) ID() string { return s.id }

// Start runs the session runtime. ctx is the base context of every reply and
// cancelling it closes the session.
//
// Start must be called once, before any other method is used concurrently.
func (s *Session) Start(ctx context.Context) error {
	if s.runtime.isClosed() {
		return ErrSessionClosed
	}

	s.startOnce.Do(func() {
		s.baseContext = ctx
		s.coordinator.ctx = ctx
		if s.runtime.start() {
			s.cancelHook = withContextCancelHook(ctx, s.Close)
		}
	})
	return nil
}

// StartVoice connects the recognizer. On failure a single error event is
// emitted and the pipeline stays down until StartVoice is called again.
func (s *Session) StartVoice(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session.start_voice", trace.WithAttributes(attribute.String("session.id", s.id)))
	defer span.End()

	if s.runtime.isClosed() {
		return ErrSessionClosed
	}

	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()

	if s.voiceActive.Load() {
		return s.post(func() { s.emit(events.NewServicesReady(s.encodingInfo.SampleRate)) })
	}

	if !s.speechToText.isConfigured() || s.replyLLM == nil {
		span.RecordError(ErrVoicePipelineUnconfigured)
		span.SetStatus(codes.Error, ErrVoicePipelineUnconfigured.Error())
		_ = s.post(func() { s.emit(events.NewError(missingKeysMessage)) })
		return ErrVoicePipelineUnconfigured
	}

	err := s.speechToText.Start(ctx, s.encodingInfo, speechToTextCallbacks{
		onInterimTranscript: func(transcript string) {
			s.runtime.post(func() { s.coordinator.onInterimTranscript(transcript) })
		},
		onConfirmedTranscript: func(transcript string, turnOrder int) {
			s.runtime.post(func() { s.coordinator.onConfirmedTranscript(transcript, turnOrder) })
		},
		onEagerEndOfTurn: func(transcript string, turnOrder int) {
			s.runtime.post(func() { s.coordinator.onEagerEndOfTurn(transcript, turnOrder) })
		},
		onSpeechStarted: func() {
			s.runtime.post(s.coordinator.onSpeechStarted)
		},
	})
	if err != nil {
		err = fmt.Errorf("failed to start voice pipeline: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = s.post(func() { s.emit(events.NewError(recognizerFailedMessage)) })
		return err
	}

	s.voiceActive.Store(true)
	logger.Info("voice pipeline ready", "session", s.id, "sample_rate", s.encodingInfo.SampleRate)
	return s.post(func() { s.emit(events.NewServicesReady(s.encodingInfo.SampleRate)) })
}

// SendAudio forwards one PCM16 frame to the recognizer. Frames sent while the
// voice pipeline is down are dropped.
func (s *Session) SendAudio(frame []byte) error {
	if !s.voiceActive.Load() {
		return nil
	}
	return s.speechToText.SendAudio(frame)
}

// StopVoice disconnects the recognizer and drops the current turn. The form
// and the conversation history are kept.
func (s *Session) StopVoice() error {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()

	if !s.voiceActive.Swap(false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseContext), closeTimeout)
	defer cancel()

	var errs []error
	if err := s.speechToText.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.post(s.coordinator.reset); err != nil {
		errs = append(errs, err)
	}
	logger.Info("voice pipeline stopped", "session", s.id)
	return errors.Join(errs...)
}

// HandleControl applies an inbound control message.
func (s *Session) HandleControl(ctx context.Context, control controls.Control) error {
	switch control := control.(type) {
	case controls.Hello:
		if control.WantsVoice() {
			return s.StartVoice(ctx)
		}
		return nil
	case controls.GetState:
		return s.post(func() { s.emit(events.NewFormState(s.form)) })
	case controls.UpdateField:
		return s.UpdateField(ctx, control.Field, control.Value)
	case controls.ResetForm:
		return s.ResetForm(ctx)
	case controls.StopVoice:
		return s.StopVoice()
	case controls.PlaybackEnded:
		return s.post(s.coordinator.onPlaybackEnded)
	case nil:
		return fmt.Errorf("nil control")
	}
	return fmt.Errorf("unsupported control %q", control.Kind())
}

// UpdateField sets a form field and broadcasts the change.
func (s *Session) UpdateField(ctx context.Context, field, value string) error {
	return s.call(ctx, func() error {
		if err := s.form.Set(field, value); err != nil {
			return err
		}
		s.emit(events.NewFieldUpdated(field, value))
		return nil
	})
}

// CompleteOnboarding marks the form as complete when it has a full name. The
// returned text is handed back to the model.
func (s *Session) CompleteOnboarding(ctx context.Context) (string, error) {
	var result string
	err := s.call(ctx, func() error {
		if s.form.FullName == "" {
			result = "Cannot complete: full name is required"
			return nil
		}
		s.emit(events.NewOnboardingComplete(s.form))
		result = "Onboarding complete"
		return nil
	})
	return result, err
}

func (s *Session) ResetForm(ctx context.Context) error {
	return s.call(ctx, func() error {
		s.form = forms.Form{}
		s.emit(events.NewFormReset(s.form))
		return nil
	})
}

func (s *Session) Form(ctx context.Context) (forms.Form, error) {
	var form forms.Form
	err := s.call(ctx, func() error {
		form = s.form
		return nil
	})
	return form, err
}

// Close tears the session down: the recognizer is disconnected, timers and
// generations are cancelled and every goroutine has exited when it returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.voiceActive.Store(false)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseContext), closeTimeout)
		defer cancel()
		if err := s.speechToText.Close(ctx); err != nil {
			recordedErr := fmt.Errorf("failed to close speech-to-text client: %w", err)
			span := trace.SpanFromContext(s.baseContext)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
			logger.Warn("failed to close recognizer", "session", s.id, "error", err)
		}

		s.runtime.end()
		s.runtime.waitUntilEnded()

		// The runtime has stopped, so the coordinator can be torn down here.
		s.coordinator.reset()
		s.engine.Close()

		if s.cancelHook != nil {
			close(s.cancelHook)
		}
		logger.Info("session closed", "session", s.id)
	})
}

func (s *Session) post(task func()) error {
	if !s.runtime.post(task) {
		return ErrSessionClosed
	}
	return nil
}

// call runs task on the runtime and waits for its result.
func (s *Session) call(ctx context.Context, task func() error) error {
	result := make(chan error, 1)
	if err := s.post(func() { result <- task() }); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.runtime.closeCh:
		select {
		case err := <-result:
			return err
		default:
			return ErrSessionClosed
		}
	}
}
