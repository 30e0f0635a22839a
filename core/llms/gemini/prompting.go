package gemini

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
	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		toContents(options.Messages), toGenerateContentConfig(options))
	if err != nil {
		err = fmt.Errorf("gemini generate content: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		span.RecordError(llms.ErrNoCandidates)
		return nil, llms.ErrNoCandidates
	}

	response := &llms.Response{Usage: fromUsage(resp.UsageMetadata)}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			response.ToolCalls = append(response.ToolCalls, fromFunctionCall(part.FunctionCall))
		case part.Text != "" && !part.Thought:
			response.Content += part.Text
		}
	}
	span.SetAttributes(attribute.Int("response.tool_calls", len(response.ToolCalls)))

	return response, nil
}
