package llms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

var ErrNoCandidates = errors.New("model returned no candidates")

type Tool struct {
	Function ToolFunction
	Execute  func(ctx context.Context, arguments string) (string, error)
}

// ToolFunction describes a tool to the model. Parameters holds a JSON schema
// object.
type ToolFunction struct {
	Name        string
	Description string
	Parameters  any
}

// NewTool builds a tool whose parameters are reflected from T. Arguments are
// decoded into a T before execute is called.
func NewTool[T any](name, description string, execute func(ctx context.Context, args T) (string, error)) Tool {
	return Tool{
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  SchemaFor[T](),
		},
		Execute: func(ctx context.Context, arguments string) (string, error) {
			var args T
			if arguments != "" {
				if err := json.Unmarshal([]byte(arguments), &args); err != nil {
					return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
				}
			}
			return execute(ctx, args)
		},
	}
}

func SchemaFor[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(T))
	schema.Version = ""
	schema.ID = ""
	return schema
}

// FindTool returns the tool registered under name.
func FindTool(tools []Tool, name string) (Tool, bool) {
	for _, tool := range tools {
		if tool.Function.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}
