package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/forms"
	"github.com/koscakluka/ema-duplex/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var ErrReplyEngineClosed = errors.New("reply engine is closed")

type ReplyConfig struct {
	// EagerWait bounds how long a confirmed transcript waits for an eager
	// reply that is still being generated for the same text.
	EagerWait time.Duration
	// ToolPassTimeout bounds the background tool pass run after an eager
	// reply was used.
	ToolPassTimeout     time.Duration
	HistoryLimit        int
	Temperature         float32
	ToolPassTemperature float32
	MaxToolSteps        int
}

func DefaultReplyConfig() ReplyConfig {
	return ReplyConfig{
		EagerWait:           3 * time.Second,
		ToolPassTimeout:     20 * time.Second,
		HistoryLimit:        defaultHistoryLimit,
		Temperature:         0.6,
		ToolPassTemperature: 0.3,
		MaxToolSteps:        5,
	}
}

func (c ReplyConfig) withDefaults() ReplyConfig {
	defaults := DefaultReplyConfig()
	if c.EagerWait <= 0 {
		c.EagerWait = defaults.EagerWait
	}
	if c.ToolPassTimeout <= 0 {
		c.ToolPassTimeout = defaults.ToolPassTimeout
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaults.HistoryLimit
	}
	if c.MaxToolSteps <= 0 {
		c.MaxToolSteps = defaults.MaxToolSteps
	}
	return c
}

type eagerTask struct {
	*asyncTask
	target string
}

type eagerReply struct {
	target string
	text   string
}

type replyRequest struct {
	ctx    context.Context
	cancel context.CancelFunc

	transcript string
	turnOrder  int
	form       forms.Form
	emit       func(events.Event)

	// started is only touched by the engine runtime.
	started bool
}

// ReplyEngine turns confirmed transcripts into replies. Full generations run
// one at a time in dispatch order; a speculative eager reply, computed by a
// cheaper model before the transcript was confirmed, is used instead when it
// was computed for exactly the same text.
type ReplyEngine struct {
	eagerClient LLM
	replyClient LLM
	tools       []llms.Tool
	config      ReplyConfig
	history     *conversationHistory

	ctx        context.Context
	cancel     context.CancelFunc
	runtime    *actorRuntime
	background sync.WaitGroup

	// mu guards running and abortedThrough, and serialises emission against
	// AbortCurrent.
	mu      sync.Mutex
	running *replyRequest
	// abortedThrough is the highest turn order whose queued requests are
	// skipped.
	abortedThrough int

	eagerMu sync.Mutex
	eager   *eagerTask
	cached  *eagerReply

	eagerHits   metric.Int64Counter
	eagerMisses metric.Int64Counter
}

// NewReplyEngine creates an engine. A nil eagerClient disables eager replies.
func NewReplyEngine(eagerClient, replyClient LLM, toolContext ToolContext, config ReplyConfig) *ReplyEngine {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	engine := &ReplyEngine{
		eagerClient:    eagerClient,
		replyClient:    replyClient,
		config:         config,
		history:        newConversationHistory(config.HistoryLimit),
		ctx:            ctx,
		cancel:         cancel,
		runtime:        newActorRuntime("reply engine"),
		abortedThrough: -1,
	}
	engine.tools = onboardingTools(toolContext, engine.spawn)

	var err error
	if engine.eagerHits, err = meter.Int64Counter("reply.eager.hits",
		metric.WithDescription("Replies served from an eager generation")); err != nil {
		logger.Warn("failed to create eager hits counter", "error", err)
	}
	if engine.eagerMisses, err = meter.Int64Counter("reply.eager.misses",
		metric.WithDescription("Replies that needed a full generation")); err != nil {
		logger.Warn("failed to create eager misses counter", "error", err)
	}

	return engine
}

// History returns a snapshot of the conversation the engine keeps.
func (e *ReplyEngine) History() []llms.Message {
	return e.history.Snapshot()
}

// PrepareEagerReply starts a speculative generation for transcript,
// cancelling any earlier one. The result is kept only while transcript is
// still the latest eager target.
func (e *ReplyEngine) PrepareEagerReply(transcript string, form forms.Form) {
	if e.eagerClient == nil {
		return
	}

	ctx, cancel := context.WithCancel(e.ctx)
	task := &eagerTask{asyncTask: newAsyncTask(cancel), target: transcript}

	e.eagerMu.Lock()
	if e.runtime.isClosed() {
		e.eagerMu.Unlock()
		cancel()
		return
	}
	if e.eager != nil {
		e.eager.cancel()
	}
	e.eager, e.cached = task, nil
	e.background.Add(1)
	e.eagerMu.Unlock()

	go func() {
		defer e.background.Done()
		defer cancel()

		result := aborted()
		runWorker(ctx, "eager reply", func(ctx context.Context) error {
			result = e.generateEager(ctx, transcript, form)
			return nil
		})

		e.eagerMu.Lock()
		if result.status == generationCompleted && e.eager == task {
			e.cached = &eagerReply{target: transcript, text: result.text}
		}
		e.eagerMu.Unlock()
		task.finish(result)
	}()
}

func (e *ReplyEngine) generateEager(ctx context.Context, transcript string, form forms.Form) generationResult {
	ctx, span := tracer.Start(ctx, "reply.eager")
	defer span.End()

	messages := append(e.history.Snapshot(), llms.UserMessage(transcript))
	turn, err := runModel(ctx, e.eagerClient, false, nil,
		llms.WithSystemPrompt(buildSystemPrompt(form)),
		llms.WithMessages(messages...),
		llms.WithTemperature(e.config.Temperature),
	)
	if err != nil {
		result := resultFromError(ctx, err)
		if result.status == generationFailed {
			err = fmt.Errorf("eager generation failed: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("eager generation failed", "error", err)
		}
		return result
	}
	if ctx.Err() != nil {
		return aborted()
	}

	return completed(turn.content)
}

// GenerateReply queues a reply for a confirmed transcript. emit receives
// ai_turn_start, text_delta and ai_turn events for turnOrder; it is called
// from the engine's goroutine and must not block.
func (e *ReplyEngine) GenerateReply(ctx context.Context, transcript string, turnOrder int, form forms.Form, emit func(events.Event)) error {
	if emit == nil {
		emit = noopEventEmitter
	}

	request := &replyRequest{ctx: ctx, transcript: transcript, turnOrder: turnOrder, form: form, emit: emit}
	e.runtime.start()
	if !e.runtime.post(func() { e.process(request) }) {
		return ErrReplyEngineClosed
	}
	return nil
}

// AbortCurrent cancels the full generation that is running, if any, and
// reports its turn order. No event of an aborted generation is emitted after
// AbortCurrent returns. The eager generation is left alone.
func (e *ReplyEngine) AbortCurrent() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running == nil {
		return 0, false
	}
	e.running.cancel()
	return e.running.turnOrder, true
}

// AbortThrough aborts the running generation and every queued one whose turn
// order is at most turnOrder. Skipped requests never reach the model or the
// history.
func (e *ReplyEngine) AbortThrough(turnOrder int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.abortedThrough = max(e.abortedThrough, turnOrder)
	if e.running != nil && e.running.turnOrder <= turnOrder {
		e.running.cancel()
	}
}

// spawn runs task in a goroutine Close waits for. The task outlives the
// cancellation of ctx.
func (e *ReplyEngine) spawn(ctx context.Context, name string, task func(ctx context.Context) error) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		runWorker(context.WithoutCancel(ctx), name, task)
	}()
}

// Close aborts every generation and waits for the engine's goroutines.
func (e *ReplyEngine) Close() {
	e.runtime.end()
	e.cancel()
	e.AbortCurrent()
	e.discardEager()

	e.runtime.waitUntilEnded()
	e.background.Wait()
}

func (e *ReplyEngine) discardEager() {
	e.eagerMu.Lock()
	defer e.eagerMu.Unlock()

	if e.eager != nil {
		e.eager.cancel()
	}
	e.eager, e.cached = nil, nil
}

func (e *ReplyEngine) process(request *replyRequest) {
	ctx, cancel := context.WithCancel(request.ctx)
	defer cancel()
	ctx, span := tracer.Start(ctx, "reply.generate",
		trace.WithAttributes(attribute.Int("turn.order", request.turnOrder)))
	defer span.End()

	e.mu.Lock()
	if e.runtime.isClosed() {
		e.mu.Unlock()
		return
	}
	if request.turnOrder <= e.abortedThrough {
		e.mu.Unlock()
		logger.Debug("skipped aborted reply", "turn_order", request.turnOrder)
		return
	}
	request.ctx, request.cancel = ctx, cancel
	e.running = request
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.running == request {
			e.running = nil
		}
		e.mu.Unlock()
	}()

	e.history.Append(llms.UserMessage(request.transcript))

	text, ok := e.takeEagerReply(ctx, request.transcript)
	if ctx.Err() != nil {
		return
	}
	span.SetAttributes(attribute.Bool("reply.eager_hit", ok))
	if ok {
		e.count(ctx, e.eagerHits)
		e.emitDelta(request, text)
		e.emitEnd(request)
		if ctx.Err() != nil {
			return
		}
		e.history.Append(llms.AssistantMessage(text))
		e.emit(request, events.NewAITurn(request.turnOrder, text))
		e.startToolPass(request.transcript, request.form)
		return
	}
	e.count(ctx, e.eagerMisses)

	result := e.streamFullReply(ctx, request)
	switch result.status {
	case generationCompleted:
		e.emitEnd(request)
		if result.text != "" {
			e.history.Append(llms.AssistantMessage(result.text))
		}
		e.emit(request, events.NewAITurn(request.turnOrder, result.text))
		logger.Info("reply complete", "turn_order", request.turnOrder, "length", len(result.text))

	case generationAborted:
		logger.Debug("reply aborted", "turn_order", request.turnOrder)

	case generationFailed:
		span.RecordError(result.err)
		span.SetStatus(codes.Error, result.err.Error())
		logger.Error("reply failed", "turn_order", request.turnOrder, "error", result.err)
		e.emit(request, events.NewAITurnFailed(request.turnOrder, result.err))
	}
}

// takeEagerReply consumes the eager state for transcript. It waits a bounded
// time for an eager generation of the same text and discards anything else.
func (e *ReplyEngine) takeEagerReply(ctx context.Context, transcript string) (string, bool) {
	e.eagerMu.Lock()
	task := e.eager
	e.eagerMu.Unlock()

	if task != nil && task.target == transcript && !task.isDone() {
		_, outcome := awaitTask(ctx, task.asyncTask, e.config.EagerWait)
		logger.Debug("waited for eager reply", "outcome", outcome.String())
	}

	e.eagerMu.Lock()
	defer e.eagerMu.Unlock()

	cached := e.cached
	if e.eager != nil {
		e.eager.cancel()
	}
	e.eager, e.cached = nil, nil

	if cached == nil || cached.target != transcript || cached.text == "" {
		return "", false
	}
	return cached.text, true
}

func (e *ReplyEngine) streamFullReply(ctx context.Context, request *replyRequest) generationResult {
	reply, err := runToolLoop(ctx, e.replyClient, e.history.Snapshot(), e.tools, e.config.MaxToolSteps, true,
		func(chunk string) { e.emitDelta(request, chunk) },
		llms.WithSystemPrompt(buildSystemPrompt(request.form)),
		llms.WithTemperature(e.config.Temperature),
	)
	if err != nil {
		return resultFromError(ctx, err)
	}
	if ctx.Err() != nil {
		return aborted()
	}
	return completed(reply)
}

func (e *ReplyEngine) startToolPass(transcript string, form forms.Form) {
	if e.replyClient == nil {
		return
	}

	messages := append(e.history.Snapshot(), llms.UserMessage(toolPassPrompt(transcript)))
	e.background.Add(1)
	go func() {
		defer e.background.Done()

		ctx, cancel := context.WithTimeout(e.ctx, e.config.ToolPassTimeout)
		defer cancel()

		runWorker(ctx, "tool pass", func(ctx context.Context) error {
			ctx, span := tracer.Start(ctx, "reply.tool_pass")
			defer span.End()

			// The text of this pass is never spoken.
			if _, err := runToolLoop(ctx, e.replyClient, messages, e.tools, e.config.MaxToolSteps, false, nil,
				llms.WithSystemPrompt(buildSystemPrompt(form)),
				llms.WithTemperature(e.config.ToolPassTemperature),
			); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("tool pass for %q: %w", transcript, err)
			}
			return nil
		})
	}()
}

func (e *ReplyEngine) emitDelta(request *replyRequest, text string) {
	if text == "" {
		return
	}
	e.ensureStarted(request)
	e.emit(request, events.NewTextDelta(text, request.turnOrder))
}

func (e *ReplyEngine) emitEnd(request *replyRequest) {
	e.ensureStarted(request)
	e.emit(request, events.NewTextDeltaEnd(request.turnOrder))
}

func (e *ReplyEngine) ensureStarted(request *replyRequest) {
	if request.started {
		return
	}
	request.started = true
	e.emit(request, events.NewAITurnStart(request.turnOrder))
}

func (e *ReplyEngine) emit(request *replyRequest, event events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if request.ctx.Err() != nil {
		return
	}
	request.emit(event)
}

func (e *ReplyEngine) count(ctx context.Context, counter metric.Int64Counter) {
	if counter != nil {
		counter.Add(ctx, 1)
	}
}
