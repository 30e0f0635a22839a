package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/koscakluka/ema-duplex/core/llms"
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

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.client.model))
		var toolNames []string
		for _, tool := range s.options.Tools {
			toolNames = append(toolNames, tool.Function.Name)
		}
		span.SetAttributes(attribute.StringSlice("request.available_tools", toolNames))

		requestStarted := time.Now()
		firstChunk := true
		var usage *llms.Usage
		responses := s.client.client.Models.GenerateContentStream(ctx, s.client.model,
			toContents(s.options.Messages), toGenerateContentConfig(s.options))
		for resp, err := range responses {
			if err != nil {
				err = fmt.Errorf("gemini stream: %w", err)
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
			if resp.UsageMetadata != nil {
				usage = fromUsage(resp.UsageMetadata)
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}

			candidate := resp.Candidates[0]
			var finishReason *string
			if candidate.FinishReason != "" {
				reason := string(candidate.FinishReason)
				finishReason = &reason
			}

			for _, part := range candidate.Content.Parts {
				var chunk llms.StreamChunk
				switch {
				case part.FunctionCall != nil:
					chunk = llms.ToolCallChunk{Call: fromFunctionCall(part.FunctionCall), Finish: finishReason}
				case part.Text != "" && !part.Thought:
					chunk = llms.ContentChunk{Text: part.Text, Finish: finishReason}
				default:
					continue
				}
				if !yield(chunk, nil) {
					return
				}
			}
		}

		if usage != nil {
			span.SetAttributes(attribute.Int("response.output_tokens", usage.OutputTokens))
			yield(llms.UsageChunk{Tokens: *usage}, nil)
		}
	}
}
