package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-duplex/core/controls"
	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/forms"
	"github.com/koscakluka/ema-duplex/core/llms"
)

type sessionHarness struct {
	session  *Session
	stt      *stubSpeechToText
	llm      *scriptedLLM
	clock    *manualClock
	recorder *eventRecorder
}

func newSessionHarness(t *testing.T, steps []scriptedStep, opts ...SessionOption) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		stt:      newStubSpeechToText(),
		llm:      newScriptedLLM(steps...),
		clock:    newManualClock(),
		recorder: newEventRecorder(),
	}
	opts = append([]SessionOption{
		WithSpeechToTextClient(h.stt),
		WithStreamingLLM(h.llm),
		WithEventHandler(h.recorder.record),
		withClock(h.clock),
	}, opts...)

	h.session = NewSession(opts...)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	t.Cleanup(h.session.Close)
	return h
}

func (h *sessionHarness) startVoice(t *testing.T) {
	t.Helper()
	if err := h.session.StartVoice(context.Background()); err != nil {
		t.Fatalf("failed to start voice: %v", err)
	}
	h.recorder.waitFor(t, "services_ready", isKind(events.KindServicesReady))
}

func TestStartVoiceEmitsServicesReady(t *testing.T) {
	h := newSessionHarness(t, nil)
	h.startVoice(t)

	ready := h.recorder.all()[0].(events.ServicesReady)
	if !ready.STT || ready.SampleRate != 16000 {
		t.Fatalf("unexpected services_ready %+v", ready)
	}

	callbacks := h.stt.callbacks()
	if callbacks.ConfirmedTranscriptCallback == nil || callbacks.SpeechStartedCallback == nil ||
		callbacks.InterimTranscriptCallback == nil || callbacks.EagerEndOfTurnCallback == nil {
		t.Fatalf("expected every recognizer callback to be wired")
	}
	if callbacks.EncodingInfo.SampleRate != 16000 {
		t.Fatalf("expected recognizer to be opened at 16 kHz, got %d", callbacks.EncodingInfo.SampleRate)
	}
}

func TestStartVoiceWithoutRecognizerReportsMissingKeys(t *testing.T) {
	recorder := newEventRecorder()
	session := NewSession(WithStreamingLLM(newScriptedLLM()), WithEventHandler(recorder.record))
	session.Start(context.Background())
	defer session.Close()

	if err := session.StartVoice(context.Background()); !errors.Is(err, ErrVoicePipelineUnconfigured) {
		t.Fatalf("expected ErrVoicePipelineUnconfigured, got %v", err)
	}

	event := recorder.waitFor(t, "error", isKind(events.KindError)).(events.Error)
	if event.Message != "Missing API keys for voice pipeline" {
		t.Fatalf("unexpected error message %q", event.Message)
	}
}

func TestStartVoiceReportsRecognizerFailure(t *testing.T) {
	var messages []string
	var mu sync.Mutex
	h := newSessionHarness(t, nil, WithErrorCallback(func(message string) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, message)
	}))
	h.stt.err = errors.New("dial failed")

	if err := h.session.StartVoice(context.Background()); err == nil {
		t.Fatalf("expected StartVoice to fail")
	}
	event := h.recorder.waitFor(t, "error", isKind(events.KindError)).(events.Error)
	if event.Message != "Failed to connect to speech recognizer" {
		t.Fatalf("unexpected error message %q", event.Message)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(messages) != 1 || messages[0] != event.Message {
		t.Fatalf("expected error callback once, got %v", messages)
	}

	if err := h.session.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("expected frames to be dropped silently, got %v", err)
	}
	if len(h.stt.frames) != 0 {
		t.Fatalf("expected no frames to reach the recognizer")
	}
}

func TestSendAudioForwardsFramesWhileVoiceIsActive(t *testing.T) {
	h := newSessionHarness(t, nil)
	h.session.SendAudio([]byte{0})

	h.startVoice(t)
	h.session.SendAudio([]byte{1, 2})
	h.session.SendAudio([]byte{3, 4})

	h.stt.mu.Lock()
	frames := len(h.stt.frames)
	h.stt.mu.Unlock()
	if frames != 2 {
		t.Fatalf("expected 2 frames, got %d", frames)
	}
}

func TestConfirmedTranscriptProducesReply(t *testing.T) {
	h := newSessionHarness(t, []scriptedStep{{
		chunks:    []string{"Nice to meet you, John. ", "How old are you?"},
		toolCalls: []llms.ToolCall{{ID: "call-1", Name: "fill_field", Arguments: `{"field":"fullName","value":"John"}`}},
	}, {chunks: []string{""}}})
	h.startVoice(t)

	h.stt.callbacks().ConfirmedTranscriptCallback("My name is John", 0)

	aiTurn := h.recorder.waitFor(t, "ai_turn", isKind(events.KindAITurn)).(events.AITurn)
	if aiTurn.Text != "Nice to meet you, John. How old are you?" {
		t.Fatalf("unexpected reply %q", aiTurn.Text)
	}
	h.recorder.waitFor(t, "field_updated", isKind(events.KindFieldUpdated))

	var replyKinds []events.Kind
	for _, kind := range h.recorder.kinds() {
		if kind != events.KindServicesReady && kind != events.KindFieldUpdated {
			replyKinds = append(replyKinds, kind)
		}
	}
	expected := []events.Kind{events.KindUserTurn, events.KindAITurnStart, events.KindTextDelta, events.KindTextDelta, events.KindTextDelta, events.KindAITurn}
	if len(replyKinds) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, replyKinds)
	}
	for i := range expected {
		if replyKinds[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, replyKinds)
		}
	}

	form, err := h.session.Form(context.Background())
	if err != nil || form.FullName != "John" {
		t.Fatalf("expected name to be filled, got %+v %v", form, err)
	}
}

func TestSpeechDuringReplyIsBargeIn(t *testing.T) {
	var heard, full string
	bargedIn := make(chan struct{}, 1)
	h := newSessionHarness(t, []scriptedStep{{chunks: []string{"Hello there, John."}}},
		WithBargeInCallback(func(heardPrefix, fullText string) {
			heard, full = heardPrefix, fullText
			bargedIn <- struct{}{}
		}))
	h.startVoice(t)

	callbacks := h.stt.callbacks()
	callbacks.ConfirmedTranscriptCallback("hi", 0)
	h.recorder.waitFor(t, "ai_turn", isKind(events.KindAITurn))

	h.clock.Advance(400 * time.Millisecond)
	callbacks.SpeechStartedCallback()

	select {
	case <-bargedIn:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for barge-in")
	}
	if heard != "Hello" || full != "Hello there, John." {
		t.Fatalf("unexpected barge-in %q / %q", heard, full)
	}
	if active := h.clock.active(); len(active) != 0 {
		t.Fatalf("expected drain timer to be cancelled, got %d", len(active))
	}
}

func TestPlaybackEndedReleasesBufferedUtterance(t *testing.T) {
	h := newSessionHarness(t, []scriptedStep{{chunks: []string{"What is your name?"}}, {chunks: []string{"Thanks!"}}})
	h.startVoice(t)

	callbacks := h.stt.callbacks()
	callbacks.ConfirmedTranscriptCallback("hello", 0)
	h.recorder.waitFor(t, "ai_turn", isKind(events.KindAITurn))

	callbacks.ConfirmedTranscriptCallback("John", 1)
	if err := h.session.HandleControl(context.Background(), controls.PlaybackEnded{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	userTurn := h.recorder.waitFor(t, "second user_turn", func(event events.Event) bool {
		userTurn, ok := event.(events.UserTurn)
		return ok && userTurn.TurnOrder == 1
	}).(events.UserTurn)
	if userTurn.Text != "John" {
		t.Fatalf("unexpected user turn %+v", userTurn)
	}
}

func TestHandleControlManagesForm(t *testing.T) {
	h := newSessionHarness(t, nil, WithInitialForm(forms.Form{Email: "john@example.com"}))
	ctx := context.Background()

	if err := h.session.HandleControl(ctx, controls.UpdateField{Field: "age", Value: "70"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated := h.recorder.waitFor(t, "field_updated", isKind(events.KindFieldUpdated)).(events.FieldUpdated)
	if updated.Field != "age" || updated.Value != "70" {
		t.Fatalf("unexpected field update %+v", updated)
	}

	if err := h.session.HandleControl(ctx, controls.UpdateField{Field: "shoeSize", Value: "9"}); err == nil {
		t.Fatalf("expected unknown field to fail")
	}

	h.session.HandleControl(ctx, controls.GetState{})
	state := h.recorder.waitFor(t, "form_state", isKind(events.KindFormState)).(events.FormState)
	if state.Form.Age != "70" || state.Form.Email != "john@example.com" {
		t.Fatalf("unexpected form state %+v", state.Form)
	}

	h.session.HandleControl(ctx, controls.ResetForm{})
	reset := h.recorder.waitFor(t, "form_reset", isKind(events.KindFormReset)).(events.FormReset)
	if reset.Form != (forms.Form{}) {
		t.Fatalf("expected empty form, got %+v", reset.Form)
	}
	if form, _ := h.session.Form(ctx); form != (forms.Form{}) {
		t.Fatalf("expected form to be cleared, got %+v", form)
	}
}

func TestHelloStartsVoice(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.HandleControl(context.Background(), controls.Hello{Mode: "text"})
	if h.session.voiceActive.Load() {
		t.Fatalf("expected text mode to leave voice off")
	}

	h.session.HandleControl(context.Background(), controls.Hello{Mode: controls.ModeVoice})
	h.recorder.waitFor(t, "services_ready", isKind(events.KindServicesReady))
}

func TestStopVoiceClosesRecognizerAndKeepsForm(t *testing.T) {
	h := newSessionHarness(t, []scriptedStep{{chunks: []string{"Tell me more."}}}, WithInitialForm(forms.Form{FullName: "John"}))
	h.startVoice(t)

	h.stt.callbacks().ConfirmedTranscriptCallback("hello", 0)
	h.recorder.waitFor(t, "ai_turn", isKind(events.KindAITurn))

	if err := h.session.HandleControl(context.Background(), controls.StopVoice{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.stt.closed != 1 {
		t.Fatalf("expected recognizer to be closed once, got %d", h.stt.closed)
	}
	if form, _ := h.session.Form(context.Background()); form.FullName != "John" {
		t.Fatalf("expected form to survive stop_voice, got %+v", form)
	}
	if active := h.clock.active(); len(active) != 0 {
		t.Fatalf("expected drain timer to be cancelled")
	}
	if len(h.session.engine.History()) != 2 {
		t.Fatalf("expected history to survive stop_voice")
	}

	h.session.SendAudio([]byte{1})
	if len(h.stt.frames) != 0 {
		t.Fatalf("expected audio to be dropped after stop_voice")
	}
}

func TestCompleteOnboardingRequiresFullName(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()

	result, err := h.session.CompleteOnboarding(ctx)
	if err != nil || result != "Cannot complete: full name is required" {
		t.Fatalf("unexpected result %q %v", result, err)
	}

	h.session.UpdateField(ctx, "fullName", "John Smith")
	result, _ = h.session.CompleteOnboarding(ctx)
	if result != "Onboarding complete" {
		t.Fatalf("unexpected result %q", result)
	}
	complete := h.recorder.waitFor(t, "onboarding_complete", isKind(events.KindOnboardingComplete)).(events.OnboardingComplete)
	if complete.Form.FullName != "John Smith" {
		t.Fatalf("unexpected completed form %+v", complete.Form)
	}
}

func TestSessionCallbacksReceiveTypedEvents(t *testing.T) {
	var mu sync.Mutex
	var interim []string
	var userTurns, deltas, replies []string
	replied := make(chan struct{}, 1)

	h := newSessionHarness(t, []scriptedStep{{chunks: []string{"Hi ", "there."}}},
		WithInterimTranscriptCallback(func(text string) {
			mu.Lock()
			defer mu.Unlock()
			interim = append(interim, text)
		}),
		WithUserTurnCallback(func(text string, _ int) {
			mu.Lock()
			defer mu.Unlock()
			userTurns = append(userTurns, text)
		}),
		WithTextDeltaCallback(func(text string, _ int) {
			mu.Lock()
			defer mu.Unlock()
			deltas = append(deltas, text)
		}),
		WithReplyCallback(func(text string, _ int) {
			mu.Lock()
			replies = append(replies, text)
			mu.Unlock()
			replied <- struct{}{}
		}),
	)
	h.startVoice(t)

	callbacks := h.stt.callbacks()
	callbacks.InterimTranscriptCallback("hel")
	callbacks.ConfirmedTranscriptCallback("hello", 0)

	select {
	case <-replied:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(interim) != 1 || interim[0] != "hel" {
		t.Fatalf("unexpected interim transcripts %v", interim)
	}
	if len(userTurns) != 1 || userTurns[0] != "hello" {
		t.Fatalf("unexpected user turns %v", userTurns)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected end delta to be skipped, got %v", deltas)
	}
	if len(replies) != 1 || replies[0] != "Hi there." {
		t.Fatalf("unexpected replies %v", replies)
	}
}

func TestCloseStopsSession(t *testing.T) {
	h := newSessionHarness(t, nil)
	h.startVoice(t)

	h.session.Close()
	h.session.Close()

	if h.stt.closed != 1 {
		t.Fatalf("expected recognizer to be closed once, got %d", h.stt.closed)
	}
	if err := h.session.UpdateField(context.Background(), "age", "70"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := h.session.StartVoice(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestCancellingStartContextClosesSession(t *testing.T) {
	stt := newStubSpeechToText()
	session := NewSession(WithSpeechToTextClient(stt), WithStreamingLLM(newScriptedLLM()))
	ctx, cancel := context.WithCancel(context.Background())
	session.Start(ctx)
	session.StartVoice(context.Background())

	cancel()

	select {
	case <-session.runtime.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for session to close")
	}
}
