package orchestration

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/forms"
	"go.opentelemetry.io/otel/metric"
)

type TurnConfig struct {
	// MinimumDrain is the shortest time a finished reply is assumed to keep
	// playing.
	MinimumDrain time.Duration
	// PerCharacter is the estimated speaking time of one reply character.
	PerCharacter time.Duration
	// CarryOverWait is how long utterances buffered before a barge-in wait
	// for the interrupting transcript before they are answered alone.
	CarryOverWait time.Duration
}

func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		MinimumDrain:  500 * time.Millisecond,
		PerCharacter:  80 * time.Millisecond,
		CarryOverWait: 2 * time.Second,
	}
}

func (c TurnConfig) withDefaults() TurnConfig {
	defaults := DefaultTurnConfig()
	if c.MinimumDrain <= 0 {
		c.MinimumDrain = defaults.MinimumDrain
	}
	if c.PerCharacter <= 0 {
		c.PerCharacter = defaults.PerCharacter
	}
	if c.CarryOverWait <= 0 {
		c.CarryOverWait = defaults.CarryOverWait
	}
	return c
}

// drainDuration estimates how long text takes to be spoken.
func (c TurnConfig) drainDuration(text string) time.Duration {
	return max(c.MinimumDrain, time.Duration(utf8.RuneCountInString(text))*c.PerCharacter)
}

// heardPrefix estimates the part of fullText voiced after elapsed.
func (c TurnConfig) heardPrefix(fullText string, elapsed time.Duration) string {
	if elapsed <= 0 || c.PerCharacter <= 0 {
		return ""
	}

	runes := []rune(fullText)
	heard := min(int(elapsed/c.PerCharacter), len(runes))
	return string(runes[:heard])
}

type turnState int

const (
	stateIdle turnState = iota
	stateAgentSpeaking
)

func (s turnState) String() string {
	if s == stateAgentSpeaking {
		return "agent_speaking"
	}
	return "idle"
}

type replyEngine interface {
	PrepareEagerReply(transcript string, form forms.Form)
	GenerateReply(ctx context.Context, transcript string, turnOrder int, form forms.Form, emit func(events.Event)) error
	AbortCurrent() (int, bool)
	AbortThrough(turnOrder int)
}

type speechEstimate struct {
	fullText  strings.Builder
	startedAt time.Time
}

type pendingUtterance struct {
	text      string
	turnOrder int
}

// turnCoordinator decides whose turn it is. It is not safe for concurrent
// use: every method runs on the session runtime, and post hands work back to
// that runtime.
type turnCoordinator struct {
	ctx    context.Context
	config TurnConfig
	engine replyEngine
	clock  clock
	post   func(func()) bool
	emit   eventEmitter
	form   func() forms.Form

	state         turnState
	lastTurnOrder int
	speakingOrder int
	// staleThrough is the highest turn order whose reply was cut off; late
	// events of those replies are dropped.
	staleThrough int

	estimate *speechEstimate
	pending  []pendingUtterance
	// carryOver holds utterances buffered when a barge-in ended the agent's
	// turn; they lead the next confirmed transcript.
	carryOver string

	drainTimer timer
	drainSeq   uint64

	carryOverTimer timer
	carryOverSeq   uint64

	bargeIns metric.Int64Counter
}

func newTurnCoordinator(ctx context.Context, config TurnConfig, engine replyEngine, clock clock, post func(func()) bool, emit eventEmitter, form func() forms.Form) *turnCoordinator {
	coordinator := &turnCoordinator{
		ctx:           ctx,
		config:        config.withDefaults(),
		engine:        engine,
		clock:         clock,
		post:          post,
		emit:          emit,
		form:          form,
		lastTurnOrder: -1,
		speakingOrder: -1,
		staleThrough:  -1,
	}

	var err error
	if coordinator.bargeIns, err = meter.Int64Counter("turn.barge_ins",
		metric.WithDescription("Agent turns cut off by the user")); err != nil {
		logger.Warn("failed to create barge-in counter", "error", err)
	}

	return coordinator
}

func (c *turnCoordinator) onInterimTranscript(text string) {
	c.emit(events.NewInterimTranscript(text))
}

func (c *turnCoordinator) onEagerEndOfTurn(text string, _ int) {
	if c.state != stateIdle {
		return
	}
	c.engine.PrepareEagerReply(c.withCarryOver(text), c.form())
}

func (c *turnCoordinator) onConfirmedTranscript(text string, turnOrder int) {
	switch c.state {
	case stateIdle:
		text = c.withCarryOver(text)
		c.carryOver = ""
		c.cancelCarryOver()
		c.dispatch(text, max(turnOrder, c.lastTurnOrder+1))
	case stateAgentSpeaking:
		c.pending = append(c.pending, pendingUtterance{text: text, turnOrder: turnOrder})
		logger.Debug("buffered user utterance while agent speaks", "pending", len(c.pending))
	}
}

func (c *turnCoordinator) onSpeechStarted() {
	if c.state != stateAgentSpeaking || c.estimate == nil {
		c.emit(events.NewStartOfTurn())
		if c.carryOver != "" {
			c.scheduleCarryOver()
		}
		return
	}

	abortedOrder, wasRunning := c.engine.AbortCurrent()
	c.staleThrough = max(c.staleThrough, c.speakingOrder)
	if wasRunning {
		c.staleThrough = max(c.staleThrough, abortedOrder)
	}
	c.cancelDrain()

	fullText := c.estimate.fullText.String()
	heard := c.config.heardPrefix(fullText, c.clock.Now().Sub(c.estimate.startedAt))
	c.emit(events.NewBargeIn(heard, fullText))
	if c.bargeIns != nil {
		c.bargeIns.Add(c.ctx, 1)
	}
	logger.Info("user barged in", "turn_order", c.speakingOrder, "heard", utf8.RuneCountInString(heard), "total", utf8.RuneCountInString(fullText))

	if len(c.pending) > 0 {
		c.carryOver = c.withCarryOver(joinPending(c.pending))
		c.pending = nil
	}
	if c.carryOver != "" {
		c.scheduleCarryOver()
	}
	c.estimate = nil
	c.state = stateIdle
}

// onReplyEvent handles an event emitted by the reply engine.
func (c *turnCoordinator) onReplyEvent(event events.Event) {
	switch event := event.(type) {
	case events.AITurnStart:
		if event.TurnOrder <= c.staleThrough {
			return
		}
		c.cancelDrain()
		c.state = stateAgentSpeaking
		c.speakingOrder = event.TurnOrder
		c.estimate = &speechEstimate{startedAt: c.clock.Now()}
		c.emit(event)

	case events.TextDelta:
		if event.TurnOrder <= c.staleThrough {
			return
		}
		if c.estimate != nil && event.TurnOrder == c.speakingOrder {
			c.estimate.fullText.WriteString(event.Text)
		}
		c.emit(event)

	case events.AITurn:
		if event.TurnOrder <= c.staleThrough {
			return
		}
		c.emit(event)
		if c.state != stateAgentSpeaking || c.estimate == nil || event.TurnOrder != c.speakingOrder {
			return
		}

		if !event.Failed() {
			c.estimate.fullText.Reset()
			c.estimate.fullText.WriteString(event.Text)
		}
		c.scheduleDrain(c.estimate.fullText.String())

	default:
		c.emit(event)
	}
}

// onPlaybackEnded ends draining early when the speech sink reports that it
// finished voicing the reply.
func (c *turnCoordinator) onPlaybackEnded() {
	if c.state != stateAgentSpeaking || c.drainTimer == nil {
		return
	}
	c.cancelDrain()
	c.finishSpeaking()
}

func (c *turnCoordinator) scheduleDrain(text string) {
	c.cancelDrain()

	c.drainSeq++
	seq := c.drainSeq
	duration := c.config.drainDuration(text)
	c.drainTimer = c.clock.AfterFunc(duration, func() {
		c.post(func() { c.onDrainTimer(seq) })
	})
	logger.Debug("drain scheduled", "turn_order", c.speakingOrder, "duration", duration)
}

func (c *turnCoordinator) onDrainTimer(seq uint64) {
	if c.drainTimer == nil || seq != c.drainSeq {
		return
	}
	c.drainTimer = nil
	c.finishSpeaking()
}

func (c *turnCoordinator) cancelDrain() {
	if c.drainTimer != nil {
		c.drainTimer.Stop()
		c.drainTimer = nil
	}
	c.drainSeq++
}

// scheduleCarryOver (re)starts the timer that answers the carry-over on its
// own when no confirmed transcript picks it up.
func (c *turnCoordinator) scheduleCarryOver() {
	c.cancelCarryOver()

	c.carryOverSeq++
	seq := c.carryOverSeq
	c.carryOverTimer = c.clock.AfterFunc(c.config.CarryOverWait, func() {
		c.post(func() { c.onCarryOverTimer(seq) })
	})
}

func (c *turnCoordinator) onCarryOverTimer(seq uint64) {
	if c.carryOverTimer == nil || seq != c.carryOverSeq {
		return
	}
	c.carryOverTimer = nil
	if c.carryOver == "" {
		return
	}

	text := c.carryOver
	c.carryOver = ""
	if c.state == stateAgentSpeaking {
		c.pending = append([]pendingUtterance{{text: text, turnOrder: c.lastTurnOrder + 1}}, c.pending...)
		return
	}
	logger.Debug("answering carried over utterance", "length", utf8.RuneCountInString(text))
	c.dispatch(text, c.lastTurnOrder+1)
}

func (c *turnCoordinator) cancelCarryOver() {
	if c.carryOverTimer != nil {
		c.carryOverTimer.Stop()
		c.carryOverTimer = nil
	}
	c.carryOverSeq++
}

// finishSpeaking ends the agent's turn and dispatches whatever the user said
// in the meantime as one utterance.
func (c *turnCoordinator) finishSpeaking() {
	c.state = stateIdle
	c.estimate = nil
	if len(c.pending) == 0 {
		return
	}

	combined := joinPending(c.pending)
	turnOrder := max(c.lastTurnOrder+1, c.pending[0].turnOrder)
	c.pending = nil
	c.dispatch(combined, turnOrder)
}

func (c *turnCoordinator) dispatch(text string, turnOrder int) {
	c.lastTurnOrder = turnOrder
	c.emit(events.NewUserTurn(text, turnOrder))

	emit := func(event events.Event) {
		c.post(func() { c.onReplyEvent(event) })
	}
	if err := c.engine.GenerateReply(c.ctx, text, turnOrder, c.form(), emit); err != nil {
		logger.Warn("failed to dispatch reply", "turn_order", turnOrder, "error", err)
	}
}

// reset drops the current turn without a barge-in notification. Replies
// dispatched so far are aborted, queued ones included.
func (c *turnCoordinator) reset() {
	c.cancelDrain()
	c.cancelCarryOver()
	c.staleThrough = max(c.staleThrough, c.lastTurnOrder)
	c.engine.AbortThrough(c.staleThrough)
	c.pending = nil
	c.estimate = nil
	c.carryOver = ""
	c.state = stateIdle
}

func (c *turnCoordinator) withCarryOver(text string) string {
	if c.carryOver == "" {
		return text
	}
	if text == "" {
		return c.carryOver
	}
	return c.carryOver + " " + text
}

func joinPending(pending []pendingUtterance) string {
	texts := make([]string, 0, len(pending))
	for _, utterance := range pending {
		texts = append(texts, utterance.text)
	}
	return strings.Join(texts, " ")
}
