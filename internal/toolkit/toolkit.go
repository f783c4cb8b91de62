// Package toolkit registers the server's built-in demonstration
// capabilities: a couple of tools, a templated resource, and a prompt,
// in the small-handler style used for demo tool sets elsewhere in the
// MCP server ecosystem.
package toolkit

import (
	"context"
	"fmt"

	"github.com/mcprt/server/internal/coerce"
	"github.com/mcprt/server/internal/registry"
	"github.com/mcprt/server/internal/schema"
)

// RegisterBuiltins wires the demonstration capabilities into reg. A
// deployment embedding this runtime as a library would typically replace
// or extend this with its own domain-specific registrations instead.
func RegisterBuiltins(reg *registry.Registry) {
	registerAddTool(reg)
	registerEchoTool(reg)
	registerGreetingResource(reg)
	registerGreetingPrompt(reg)
}

func registerAddTool(reg *registry.Registry) {
	params := []coerce.ParameterDescriptor{
		{Name: "a", Schema: schema.Number("first addend"), Required: true},
		{Name: "b", Schema: schema.Number("second addend"), Required: true},
	}
	inputSchema := schema.Object([]schema.Property{
		{Name: "a", Schema: schema.Number("first addend")},
		{Name: "b", Schema: schema.Number("second addend")},
	}, []string{"a", "b"})

	_ = reg.RegisterTool(&registry.ToolDescriptor{
		Name:        "add",
		Description: "Add two numbers",
		Parameters:  params,
		InputSchema: inputSchema,
		Invoke: func(ctx context.Context, args map[string]any) (registry.ToolResult, error) {
			a, err := coerce.CoerceInt("a", args["a"])
			if err != nil {
				return registry.ToolResult{}, err
			}
			b, err := coerce.CoerceInt("b", args["b"])
			if err != nil {
				return registry.ToolResult{}, err
			}
			return registry.ToolResult{
				Content: []registry.ContentBlock{{Type: "text", Text: fmt.Sprintf("%d", a+b)}},
			}, nil
		},
	})
}

func registerEchoTool(reg *registry.Registry) {
	params := []coerce.ParameterDescriptor{
		{Name: "message", Schema: schema.String("text to echo back"), Required: true},
	}
	inputSchema := schema.Object([]schema.Property{
		{Name: "message", Schema: schema.String("text to echo back")},
	}, []string{"message"})

	_ = reg.RegisterTool(&registry.ToolDescriptor{
		Name:        "echo",
		Description: "Echo the given message back",
		Parameters:  params,
		InputSchema: inputSchema,
		Invoke: func(ctx context.Context, args map[string]any) (registry.ToolResult, error) {
			msg, err := coerce.Extract[string](args, coerce.ParameterDescriptor{Name: "message", Schema: schema.String(""), Required: true})
			if err != nil {
				return registry.ToolResult{}, err
			}
			return registry.ToolResult{
				Content: []registry.ContentBlock{{Type: "text", Text: msg}},
			}, nil
		},
	})
}

func registerGreetingResource(reg *registry.Registry) {
	_ = reg.RegisterResource(&registry.ResourceDescriptor{
		Name:         "greeting",
		URITemplates: []string{"/greeting/{name}"},
		Description:  "A personalized greeting",
		MimeType:     "text/plain",
		Invoke: func(ctx context.Context, uri string, vars map[string]string) ([]registry.ContentBlock, error) {
			name := vars["name"]
			if name == "" {
				name = "world"
			}
			return []registry.ContentBlock{{
				Type:     "resource",
				URI:      uri,
				MimeType: "text/plain",
				Text:     fmt.Sprintf("Hello, %s!", name),
			}}, nil
		},
	})
}

func registerGreetingPrompt(reg *registry.Registry) {
	params := []coerce.ParameterDescriptor{
		{Name: "name", Schema: schema.String("who to greet"), Required: false, HasDefault: true, Default: "world"},
	}
	_ = reg.RegisterPrompt(&registry.PromptDescriptor{
		Name:        "greet",
		Description: "Render a greeting prompt",
		Parameters:  params,
		Invoke: func(ctx context.Context, args map[string]any) ([]registry.PromptMessage, error) {
			name, _ := args["name"].(string)
			return []registry.PromptMessage{{
				Role:    "user",
				Content: registry.ContentBlock{Type: "text", Text: fmt.Sprintf("Say hello to %s.", name)},
			}}, nil
		},
	})
}
