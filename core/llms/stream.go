package llms

import "context"

type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamToolCallChunk interface {
	StreamChunk
	ToolCall() ToolCall
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ContentChunk is a plain text delta.
type ContentChunk struct {
	Text   string
	Finish *string
}

func (c ContentChunk) Content() string { return c.Text }
func (c ContentChunk) FinishReason() *string { return c.Finish }

// ToolCallChunk carries one fully assembled tool call.
type ToolCallChunk struct {
	Call   ToolCall
	Finish *string
}

func (c ToolCallChunk) ToolCall() ToolCall { return c.Call }
func (c ToolCallChunk) FinishReason() *string { return c.Finish }

type UsageChunk struct {
	Tokens Usage
}

func (c UsageChunk) Usage() Usage { return c.Tokens }
func (c UsageChunk) FinishReason() *string { return nil }

// StreamFunc adapts a function to the Stream interface.
type StreamFunc func(ctx context.Context, yield func(StreamChunk, error) bool)

func (f StreamFunc) Chunks(ctx context.Context) func(func(StreamChunk, error) bool) {
	return func(yield func(StreamChunk, error) bool) {
		f(ctx, yield)
	}
}

// ErrorStream is a stream that yields a single error.
func ErrorStream(err error) Stream {
	return StreamFunc(func(_ context.Context, yield func(StreamChunk, error) bool) {
		yield(nil, err)
	})
}
