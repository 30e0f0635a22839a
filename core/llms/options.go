package llms

type PromptOptions struct {
	SystemPrompt string
	Messages     []Message
	Tools        []Tool
	Temperature  *float32
}

type PromptOption func(*PromptOptions)

func WithSystemPrompt(prompt string) PromptOption {
	return func(o *PromptOptions) {
		o.SystemPrompt = prompt
	}
}

func WithMessages(messages ...Message) PromptOption {
	return func(o *PromptOptions) {
		o.Messages = append(o.Messages, messages...)
	}
}

func WithTools(tools ...Tool) PromptOption {
	return func(o *PromptOptions) {
		o.Tools = append(o.Tools, tools...)
	}
}

func WithTemperature(temperature float32) PromptOption {
	return func(o *PromptOptions) {
		o.Temperature = &temperature
	}
}

func NewPromptOptions(opts ...PromptOption) PromptOptions {
	var options PromptOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
