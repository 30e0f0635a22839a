package openai

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-duplex/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func (c *Client) Prompt(ctx context.Context, opts ...llms.PromptOption) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	options := llms.NewPromptOptions(opts...)
	resp, err := c.client.CreateChatCompletion(ctx, toChatRequest(c.model, options, false))
	if err != nil {
		err = fmt.Errorf("openai chat completion: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(resp.Choices) == 0 {
		span.RecordError(llms.ErrNoCandidates)
		return nil, llms.ErrNoCandidates
	}

	message := resp.Choices[0].Message
	return &llms.Response{
		Content:   message.Content,
		ToolCalls: fromToolCalls(message.ToolCalls),
		Usage: &llms.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}
