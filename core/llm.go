package orchestration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/koscakluka/ema-duplex/core/llms"
)

var errNoLLM = errors.New("no language model configured")

// LLM is a model client. It must implement LLMWithStream, LLMWithPrompt or
// both.
type LLM any

type LLMWithStream interface {
	PromptWithStream(ctx context.Context, opts ...llms.PromptOption) llms.Stream
}

type LLMWithPrompt interface {
	Prompt(ctx context.Context, opts ...llms.PromptOption) (*llms.Response, error)
}

type modelTurn struct {
	content   string
	toolCalls []llms.ToolCall
}

// runModel makes one model call. Streaming clients are preferred when stream
// is set, prompt clients otherwise; either falls back to the other.
func runModel(ctx context.Context, client LLM, stream bool, onChunk func(string), opts ...llms.PromptOption) (modelTurn, error) {
	streamingClient, canStream := client.(LLMWithStream)
	promptClient, canPrompt := client.(LLMWithPrompt)

	switch {
	case client == nil:
		return modelTurn{}, errNoLLM
	case canStream && (stream || !canPrompt):
		return processStreaming(ctx, streamingClient, onChunk, opts...)
	case canPrompt:
		return processPrompt(ctx, promptClient, onChunk, opts...)
	default:
		return modelTurn{}, fmt.Errorf("unknown LLM type %T", client)
	}
}

func processPrompt(ctx context.Context, client LLMWithPrompt, onChunk func(string), opts ...llms.PromptOption) (modelTurn, error) {
	response, err := client.Prompt(ctx, opts...)
	if err != nil {
		return modelTurn{}, fmt.Errorf("failed to prompt llm: %w", err)
	}
	if response == nil {
		return modelTurn{}, nil
	}

	if onChunk != nil && response.Content != "" {
		onChunk(response.Content)
	}
	return modelTurn{content: response.Content, toolCalls: response.ToolCalls}, nil
}

func processStreaming(ctx context.Context, client LLMWithStream, onChunk func(string), opts ...llms.PromptOption) (modelTurn, error) {
	var message strings.Builder
	var toolCalls []llms.ToolCall
	for chunk, err := range client.PromptWithStream(ctx, opts...).Chunks(ctx) {
		if err != nil {
			return modelTurn{content: message.String()}, fmt.Errorf("failed to stream llm response: %w", err)
		}
		if ctx.Err() != nil {
			return modelTurn{content: message.String()}, ctx.Err()
		}

		switch chunk := chunk.(type) {
		case llms.StreamContentChunk:
			if chunk.Content() == "" {
				continue
			}
			message.WriteString(chunk.Content())
			if onChunk != nil {
				onChunk(chunk.Content())
			}
		case llms.StreamToolCallChunk:
			toolCalls = append(toolCalls, chunk.ToolCall())
		}
	}

	return modelTurn{content: message.String(), toolCalls: toolCalls}, nil
}

// runToolLoop calls the model until it answers without tool calls or
// maxSteps calls were made, executing requested tools in between. The text of
// every step is concatenated into the returned reply.
func runToolLoop(
	ctx context.Context,
	client LLM,
	messages []llms.Message,
	tools []llms.Tool,
	maxSteps int,
	stream bool,
	onChunk func(string),
	opts ...llms.PromptOption,
) (string, error) {
	var reply strings.Builder
	collect := func(chunk string) {
		reply.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	for range max(maxSteps, 1) {
		stepOpts := append(slices.Clone(opts), llms.WithMessages(messages...), llms.WithTools(tools...))
		turn, err := runModel(ctx, client, stream, collect, stepOpts...)
		if err != nil {
			return reply.String(), err
		}
		if len(turn.toolCalls) == 0 {
			break
		}

		answered := make([]llms.ToolCall, 0, len(turn.toolCalls))
		for _, toolCall := range turn.toolCalls {
			answered = append(answered, callTool(ctx, tools, toolCall))
		}
		messages = append(slices.Clone(messages), llms.ToolCallMessages(turn.content, answered)...)
	}

	return reply.String(), nil
}
