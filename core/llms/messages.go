package llms

// Message is a single entry of the conversation sent to a model.
type Message struct {
	Role    MessageRole
	Content string

	// ToolCalls are the calls requested by the assistant in this message.
	ToolCalls []ToolCall

	// ToolCallID and ToolName identify the call a tool message responds to.
	ToolCallID string
	ToolName   string
}

// Response is a complete, non-streamed model response.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *Usage
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Response  string
}

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

func UserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: MessageRoleAssistant, Content: content}
}

// ToolCallMessages returns the assistant message requesting calls followed by
// one tool message per answered call, in call order.
func ToolCallMessages(content string, calls []ToolCall) []Message {
	messages := []Message{{Role: MessageRoleAssistant, Content: content, ToolCalls: calls}}
	for _, call := range calls {
		messages = append(messages, Message{
			Role:       MessageRoleTool,
			Content:    call.Response,
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
	}
	return messages
}
