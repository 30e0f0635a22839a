package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-duplex/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ToolContext carries the side effects the onboarding tools may cause.
type ToolContext interface {
	UpdateField(ctx context.Context, field, value string) error
	CompleteOnboarding(ctx context.Context) (string, error)
}

type fillFieldArguments struct {
	Field string `json:"field" jsonschema:"enum=fullName,enum=email,enum=phone,enum=age,enum=physical,enum=mental" jsonschema_description:"The form field to fill. Must be one of: fullName, email, phone, age, physical, mental"`
	Value string `json:"value" jsonschema_description:"The value to set"`
}

type completeOnboardingArguments struct {
	Confirm string `json:"confirm" jsonschema_description:"Set to \"yes\" to confirm completion"`
}

// onboardingTools builds the tools the model may call. spawn runs work that
// must not hold up the reply text.
func onboardingTools(toolContext ToolContext, spawn func(ctx context.Context, name string, task func(ctx context.Context) error)) []llms.Tool {
	return []llms.Tool{
		llms.NewTool("fill_field",
			"Fill a form field with information from the patient. ALWAYS include a spoken text response alongside tool calls. Valid fields: fullName, email, phone, age, physical, mental.",
			func(ctx context.Context, arguments fillFieldArguments) (string, error) {
				logger.Info("fill field requested", "field", arguments.Field)
				if toolContext == nil {
					return "Done.", nil
				}

				spawn(ctx, "fill field", func(ctx context.Context) error {
					return toolContext.UpdateField(ctx, arguments.Field, arguments.Value)
				})
				return "Done.", nil
			}),
		llms.NewTool("complete_onboarding",
			"Mark onboarding as complete when all required fields are filled",
			func(ctx context.Context, _ completeOnboardingArguments) (string, error) {
				logger.Info("complete onboarding requested")
				if toolContext == nil {
					return "Onboarding complete", nil
				}
				return toolContext.CompleteOnboarding(ctx)
			}),
	}
}

// callTool executes toolCall. A failing or unknown tool is reported back to
// the model in the call's response instead of failing the generation.
func callTool(ctx context.Context, tools []llms.Tool, toolCall llms.ToolCall) llms.ToolCall {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", toolCall.Name))

	answered := toolCall
	tool, ok := llms.FindTool(tools, toolCall.Name)
	if !ok {
		err := fmt.Errorf("tool not found: %s", toolCall.Name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("model called unknown tool", "tool", toolCall.Name)
		answered.Response = "Error: " + err.Error()
		return answered
	}

	response, err := tool.Execute(ctx, toolCall.Arguments)
	if err != nil {
		err = fmt.Errorf("failed to execute tool %q: %w", toolCall.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("tool execution failed", "tool", toolCall.Name, "error", err)
		answered.Response = "Error: " + err.Error()
		return answered
	}

	answered.Response = response
	return answered
}
