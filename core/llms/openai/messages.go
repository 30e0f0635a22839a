package openai

import (
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-duplex/core/llms"
	goopenai "github.com/sashabaranov/go-openai"
)

func toChatRequest(model string, options llms.PromptOptions, stream bool) goopenai.ChatCompletionRequest {
	request := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: toChatMessages(options.SystemPrompt, options.Messages),
		Tools:    toTools(options.Tools),
		Stream:   stream,
	}
	if options.Temperature != nil {
		request.Temperature = *options.Temperature
	}
	if stream {
		request.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}
	}
	return request
}

func toChatMessages(systemPrompt string, messages []llms.Message) []goopenai.ChatCompletionMessage {
	chatMessages := []goopenai.ChatCompletionMessage{}
	if systemPrompt != "" {
		chatMessages = append(chatMessages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, message := range messages {
		switch message.Role {
		case llms.MessageRoleSystem:
			chatMessages = append(chatMessages, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: message.Content,
			})
		case llms.MessageRoleUser:
			chatMessages = append(chatMessages, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleUser,
				Content: message.Content,
			})
		case llms.MessageRoleAssistant:
			chatMessage := goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleAssistant,
				Content: message.Content,
			}
			for _, call := range message.ToolCalls {
				chatMessage.ToolCalls = append(chatMessage.ToolCalls, goopenai.ToolCall{
					ID:   call.ID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			chatMessages = append(chatMessages, chatMessage)
		case llms.MessageRoleTool:
			chatMessages = append(chatMessages, goopenai.ChatCompletionMessage{
				Role:       goopenai.ChatMessageRoleTool,
				Content:    message.Content,
				ToolCallID: message.ToolCallID,
				Name:       message.ToolName,
			})
		}
	}
	return chatMessages
}

func toTools(tools []llms.Tool) []goopenai.Tool {
	if len(tools) == 0 {
		return nil
	}

	openAITools := make([]goopenai.Tool, 0, len(tools))
	for _, tool := range tools {
		var definition goopenai.FunctionDefinition
		if err := copier.Copy(&definition, &tool.Function); err != nil {
			logger.Warn("failed to copy tool definition", "tool", tool.Function.Name, "error", err)
			continue
		}
		openAITools = append(openAITools, goopenai.Tool{
			Type:     goopenai.ToolTypeFunction,
			Function: &definition,
		})
	}
	return openAITools
}

func fromToolCalls(calls []goopenai.ToolCall) []llms.ToolCall {
	var toolCalls []llms.ToolCall
	for _, call := range calls {
		toolCalls = append(toolCalls, llms.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return toolCalls
}
