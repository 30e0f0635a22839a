package orchestration

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/forms"
	"github.com/koscakluka/ema-duplex/core/llms"
	"github.com/koscakluka/ema-duplex/core/speechtotext"
)

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock    *manualClock
	at       time.Time
	duration time.Duration
	f        func()
	done     bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTimer{clock: c, at: c.now.Add(d), duration: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires every timer that became due.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.done && !t.at.After(c.now) {
			t.done = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *manualClock) active() []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var active []*manualTimer
	for _, t := range c.timers {
		if !t.done {
			active = append(active, t)
		}
	}
	return active
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	return true
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
	notify chan events.Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{notify: make(chan events.Event, 256)}
}

func (r *eventRecorder) record(event events.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()

	select {
	case r.notify <- event:
	default:
	}
}

func (r *eventRecorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *eventRecorder) kinds() []events.Kind {
	var kinds []events.Kind
	for _, event := range r.all() {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// waitFor blocks until an event matching match was recorded.
func (r *eventRecorder) waitFor(t *testing.T, description string, match func(events.Event) bool) events.Event {
	t.Helper()

	for _, event := range r.all() {
		if match(event) {
			return event
		}
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case event := <-r.notify:
			if match(event) {
				return event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, got %v", description, r.kinds())
			return nil
		}
	}
}

func isKind(kind events.Kind) func(events.Event) bool {
	return func(event events.Event) bool { return event.Kind() == kind }
}

type fakeReply struct {
	transcript string
	turnOrder  int
	form       forms.Form
	emit       func(events.Event)
}

type fakeReplyEngine struct {
	mu             sync.Mutex
	eager          []string
	replies        []fakeReply
	aborts         int
	abortedThrough int
	running        *fakeReply
}

func (e *fakeReplyEngine) PrepareEagerReply(transcript string, _ forms.Form) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eager = append(e.eager, transcript)
}

func (e *fakeReplyEngine) GenerateReply(_ context.Context, transcript string, turnOrder int, form forms.Form, emit func(events.Event)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replies = append(e.replies, fakeReply{transcript: transcript, turnOrder: turnOrder, form: form, emit: emit})
	e.running = &e.replies[len(e.replies)-1]
	return nil
}

func (e *fakeReplyEngine) AbortCurrent() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.aborts++
	if e.running == nil {
		return 0, false
	}
	turnOrder := e.running.turnOrder
	e.running = nil
	return turnOrder, true
}

func (e *fakeReplyEngine) AbortThrough(turnOrder int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.abortedThrough = max(e.abortedThrough, turnOrder)
	if e.running != nil && e.running.turnOrder <= turnOrder {
		e.running = nil
	}
}

func (e *fakeReplyEngine) dispatched() []fakeReply {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]fakeReply(nil), e.replies...)
}

// scriptedStep is one scripted model answer.
type scriptedStep struct {
	chunks    []string
	toolCalls []llms.ToolCall
	err       error
	// release, when set, holds the answer after the first chunk until it is
	// closed or the call is cancelled.
	release chan struct{}
}

type scriptedCall struct {
	ctx     context.Context
	options llms.PromptOptions
}

type scriptedLLM struct {
	mu    sync.Mutex
	steps []scriptedStep
	calls []scriptedCall
	// called receives every call as it starts.
	called chan scriptedCall
}

func newScriptedLLM(steps ...scriptedStep) *scriptedLLM {
	return &scriptedLLM{steps: steps, called: make(chan scriptedCall, 32)}
}

func (l *scriptedLLM) next(ctx context.Context, opts []llms.PromptOption) scriptedStep {
	call := scriptedCall{ctx: ctx, options: llms.NewPromptOptions(opts...)}

	l.mu.Lock()
	l.calls = append(l.calls, call)
	step := scriptedStep{chunks: []string{"ok"}}
	if len(l.steps) > 0 {
		step = l.steps[0]
		if len(l.steps) > 1 {
			l.steps = l.steps[1:]
		}
	}
	l.mu.Unlock()

	select {
	case l.called <- call:
	default:
	}
	return step
}

func (l *scriptedLLM) recordedCalls() []scriptedCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]scriptedCall(nil), l.calls...)
}

func (l *scriptedLLM) PromptWithStream(ctx context.Context, opts ...llms.PromptOption) llms.Stream {
	step := l.next(ctx, opts)
	return llms.StreamFunc(func(ctx context.Context, yield func(llms.StreamChunk, error) bool) {
		for i, chunk := range step.chunks {
			if !yield(llms.ContentChunk{Text: chunk}, nil) {
				return
			}
			if i == 0 && step.release != nil {
				select {
				case <-step.release:
				case <-ctx.Done():
					yield(nil, ctx.Err())
					return
				}
			}
		}
		if step.err != nil {
			yield(nil, step.err)
			return
		}
		for _, toolCall := range step.toolCalls {
			if !yield(llms.ToolCallChunk{Call: toolCall}, nil) {
				return
			}
		}
	})
}

func (l *scriptedLLM) Prompt(ctx context.Context, opts ...llms.PromptOption) (*llms.Response, error) {
	step := l.next(ctx, opts)
	if step.release != nil {
		select {
		case <-step.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.err != nil {
		return nil, step.err
	}
	return &llms.Response{Content: strings.Join(step.chunks, ""), ToolCalls: step.toolCalls}, nil
}

type recordingToolContext struct {
	mu      sync.Mutex
	updates map[string]string
	updated chan string
	result  string
	// err fails every tool side effect when set.
	err error
	// block, when set, holds UpdateField until it is closed.
	block chan struct{}
}

func newRecordingToolContext() *recordingToolContext {
	return &recordingToolContext{updates: map[string]string{}, updated: make(chan string, 8), result: "Onboarding complete"}
}

func (c *recordingToolContext) UpdateField(_ context.Context, field, value string) error {
	if c.block != nil {
		<-c.block
	}
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	c.updates[field] = value
	c.mu.Unlock()
	c.updated <- field
	return nil
}

func (c *recordingToolContext) CompleteOnboarding(context.Context) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.result, nil
}

type stubSpeechToText struct {
	mu          sync.Mutex
	options     speechtotext.TranscriptionOptions
	err         error
	connected   bool
	frames      [][]byte
	closed      int
	transcribed chan struct{}
}

func newStubSpeechToText() *stubSpeechToText {
	return &stubSpeechToText{transcribed: make(chan struct{}, 1)}
}

func (s *stubSpeechToText) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	for _, opt := range opts {
		opt(&s.options)
	}
	s.connected = true
	select {
	case s.transcribed <- struct{}{}:
	default:
	}
	return nil
}

func (s *stubSpeechToText) SendAudio(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return speechtotext.ErrNotConnected
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *stubSpeechToText) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.closed++
	return nil
}

func (s *stubSpeechToText) callbacks() speechtotext.TranscriptionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}
