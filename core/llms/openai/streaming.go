package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/koscakluka/ema-duplex/core/llms"
	goopenai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func (c *Client) PromptWithStream(_ context.Context, opts ...llms.PromptOption) llms.Stream {
	return &Stream{client: c, options: llms.NewPromptOptions(opts...)}
}

type Stream struct {
	client  *Client
	options llms.PromptOptions
}

// Chunks yields text deltas as they arrive. Tool calls are streamed by the
// API in fragments keyed by index and are yielded whole once the stream ends.
func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.client.model))

		requestStarted := time.Now()
		stream, err := s.client.client.CreateChatCompletionStream(ctx, toChatRequest(s.client.model, s.options, true))
		if err != nil {
			err = fmt.Errorf("openai chat completion stream: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
			return
		}
		defer stream.Close()

		var calls []goopenai.ToolCall
		var usage *llms.Usage
		var finishReason *string
		firstChunk := true
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			} else if err != nil {
				err = fmt.Errorf("openai stream: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield(nil, err)
				return
			}
			if firstChunk {
				firstChunk = false
				span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestStarted).Seconds()))
				span.AddEvent("received first chunk")
			}

			if resp.Usage != nil {
				usage = &llms.Usage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
					TotalTokens:  resp.Usage.TotalTokens,
				}
			}
			if len(resp.Choices) == 0 {
				continue
			}

			choice := resp.Choices[0]
			if choice.FinishReason != "" {
				reason := string(choice.FinishReason)
				finishReason = &reason
			}
			for _, delta := range choice.Delta.ToolCalls {
				calls = mergeToolCallDelta(calls, delta)
			}
			if choice.Delta.Content != "" {
				if !yield(llms.ContentChunk{Text: choice.Delta.Content}, nil) {
					return
				}
			}
		}

		for _, call := range fromToolCalls(calls) {
			if !yield(llms.ToolCallChunk{Call: call, Finish: finishReason}, nil) {
				return
			}
		}
		if usage != nil {
			yield(llms.UsageChunk{Tokens: *usage}, nil)
		}
	}
}

func mergeToolCallDelta(calls []goopenai.ToolCall, delta goopenai.ToolCall) []goopenai.ToolCall {
	index := len(calls)
	if delta.Index != nil {
		index = *delta.Index
	}
	for len(calls) <= index {
		calls = append(calls, goopenai.ToolCall{Type: goopenai.ToolTypeFunction})
	}

	call := &calls[index]
	if delta.ID != "" {
		call.ID = delta.ID
	}
	if delta.Function.Name != "" {
		call.Function.Name = delta.Function.Name
	}
	call.Function.Arguments += delta.Function.Arguments
	return calls
}
