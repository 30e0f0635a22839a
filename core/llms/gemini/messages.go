package gemini

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-duplex/core/llms"
	"github.com/koscakluka/ema-duplex/internal/utils"
	"google.golang.org/genai"
)

func toGenerateContentConfig(options llms.PromptOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	instructions := []string{}
	if options.SystemPrompt != "" {
		instructions = append(instructions, options.SystemPrompt)
	}
	for _, message := range options.Messages {
		if message.Role == llms.MessageRoleSystem && message.Content != "" {
			instructions = append(instructions, message.Content)
		}
	}
	if len(instructions) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(instructions, "\n\n"), genai.RoleUser)
	}

	if options.Temperature != nil {
		config.Temperature = utils.Ptr(*options.Temperature)
	}

	if len(options.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(options.Tools))
		for _, tool := range options.Tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:                 tool.Function.Name,
				Description:          tool.Function.Description,
				ParametersJsonSchema: tool.Function.Parameters,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	return config
}

func toContents(messages []llms.Message) []*genai.Content {
	contents := []*genai.Content{}
	for _, message := range messages {
		switch message.Role {
		case llms.MessageRoleUser:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleUser))

		case llms.MessageRoleAssistant:
			content := &genai.Content{Role: string(genai.RoleModel)}
			if message.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: message.Content})
			}
			for _, call := range message.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: decodeArguments(call.Arguments),
				}})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}

		case llms.MessageRoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       message.ToolCallID,
				Name:     message.ToolName,
				Response: map[string]any{"output": message.Content},
			}}
			// Responses to the same model turn travel in one content.
			if last := lastContent(contents); last != nil && isFunctionResponseContent(last) {
				last.Parts = append(last.Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{part}})
		}
	}
	return contents
}

func lastContent(contents []*genai.Content) *genai.Content {
	if len(contents) == 0 {
		return nil
	}
	return contents[len(contents)-1]
}

func isFunctionResponseContent(content *genai.Content) bool {
	return len(content.Parts) > 0 && content.Parts[0].FunctionResponse != nil
}

func decodeArguments(arguments string) map[string]any {
	args := map[string]any{}
	if arguments == "" {
		return args
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		logger.Warn("dropping undecodable tool call arguments", "error", err)
	}
	return args
}

func fromFunctionCall(call *genai.FunctionCall) llms.ToolCall {
	id := call.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}

	arguments := "{}"
	if len(call.Args) > 0 {
		if encoded, err := json.Marshal(call.Args); err == nil {
			arguments = string(encoded)
		}
	}

	return llms.ToolCall{ID: id, Name: call.Name, Arguments: arguments}
}

func fromUsage(usage *genai.GenerateContentResponseUsageMetadata) *llms.Usage {
	if usage == nil {
		return nil
	}
	return &llms.Usage{
		InputTokens:  int(usage.PromptTokenCount),
		OutputTokens: int(usage.CandidatesTokenCount),
		TotalTokens:  int(usage.TotalTokenCount),
	}
}
