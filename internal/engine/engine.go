// Package engine implements the MCP business logic — tools/call,
// resources/read, resources/list, prompts, and completion — on top of the
// capability registry, argument coercion, and URI-template matching.
// It performs no blocking I/O itself; all I/O happens at the transport
// boundary, per the concurrency model.
package engine

import (
	"context"
	"sort"

	domainerrors "github.com/mcprt/server/internal/errors"
	"github.com/mcprt/server/internal/coerce"
	"github.com/mcprt/server/internal/registry"
	"github.com/mcprt/server/internal/schema"
	"github.com/mcprt/server/internal/session"
)

const domainName = "engine"

// Sentinel kinds surfaced as application-level results rather than
// JSON-RPC errors, per the error taxonomy.
var (
	ErrUnknownTool      = domainerrors.ErrNotFound
	ErrResourceNotFound = domainerrors.ErrNotFound
	ErrUnknownPrompt    = domainerrors.ErrNotFound
)

// CompletionHook lets a host override completion/complete for a specific
// parameter name instead of the default enum-prefix ranking.
type CompletionHook func(ctx context.Context, paramName, prefix string) []string

// Engine wraps the registry into the business-logic object the method
// router calls into, keeping protocol plumbing (the router) separate from
// capability invocation.
type Engine struct {
	Registry        *registry.Registry
	CompletionHooks map[string]CompletionHook
}

// New builds an Engine over reg.
func New(reg *registry.Registry) *Engine {
	return &Engine{Registry: reg, CompletionHooks: map[string]CompletionHook{}}
}

// ToolSummary is the tools/list projection of a ToolDescriptor.
type ToolSummary struct {
	Name          string
	Description   string
	InputSchema   schema.Schema
	OutputSchema  *schema.Schema
	Consequential bool
	Annotations   map[string]any
}

// ListTools returns every registered tool sorted by name, matching the
// testable property that tools/list contains exactly one entry per
// registered tool.
func (e *Engine) ListTools() []ToolSummary {
	tools := e.Registry.Tools()
	out := make([]ToolSummary, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolSummary{
			Name:          t.Name,
			Description:   t.Description,
			InputSchema:   t.InputSchema,
			OutputSchema:  t.OutputSchema,
			Consequential: t.Consequential,
			Annotations:   t.Annotations,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CallToolResult is the outcome of invoking a tool, ready to be wrapped
// into the tools/call JSON-RPC result envelope.
type CallToolResult struct {
	Content           []registry.ContentBlock
	StructuredContent any
	HasStructured     bool
	IsError           bool
	ErrorText         string
}

// CallTool runs the tools/call sequence: lookup, enrich+coerce, bind
// CurrentSession, invoke, and project the outcome into the response
// envelope. Thunk failures become IsError results, not JSON-RPC errors;
// argument-coercion failures are returned as a Go error so the router can
// surface them as InvalidParams.
func (e *Engine) CallTool(ctx context.Context, sess *session.Session, name string, rawArgs map[string]any) (CallToolResult, error) {
	desc, ok := e.Registry.Tool(name)
	if !ok {
		return CallToolResult{}, domainerrors.New(domainName, "CallTool", ErrUnknownTool, nil).WithContext("name", name)
	}

	enriched := coerce.Enrich(rawArgs, desc.Parameters)
	for _, p := range desc.Parameters {
		v, err := coerce.Extract[any](enriched, p)
		if err != nil {
			return CallToolResult{}, err
		}
		if _, present := enriched[p.Name]; present {
			enriched[p.Name] = v
		}
	}

	ctx = session.Bind(ctx, sess)
	result, err := desc.Invoke(ctx, enriched)
	if err != nil {
		return CallToolResult{
			IsError: true,
			Content: []registry.ContentBlock{{Type: "text", Text: err.Error()}},
		}, nil
	}

	if len(result.Content) == 0 && !result.HasStructured {
		result.Content = []registry.ContentBlock{{Type: "text", Text: ""}}
	}
	return CallToolResult{
		Content:           result.Content,
		StructuredContent: result.StructuredContent,
		HasStructured:     result.HasStructured,
	}, nil
}

// ResourceSummary is the resources/list projection of a ResourceDescriptor.
type ResourceSummary struct {
	URI         string
	Name        string
	MimeType    string
	Description string
	IsTemplate  bool
}

// ListResources returns every registered resource, static and templated.
func (e *Engine) ListResources() []ResourceSummary {
	descs := e.Registry.Resources()
	out := make([]ResourceSummary, 0, len(descs))
	for _, d := range descs {
		out = append(out, ResourceSummary{
			URI:         d.URI,
			Name:        d.Name,
			MimeType:    d.MimeType,
			Description: d.Description,
			IsTemplate:  len(d.URITemplates) > 0,
		})
	}
	return out
}

// ListResourceTemplates returns only the template-bearing resources, per
// resources/templates/list.
func (e *Engine) ListResourceTemplates() []ResourceSummary {
	var out []ResourceSummary
	for _, s := range e.ListResources() {
		if s.IsTemplate {
			out = append(out, s)
		}
	}
	return out
}

// ReadResource runs the resources/read sequence: collect matching
// (descriptor, template) pairs across every resource, pick the one with
// the largest extracted variable set (ties broken by declaration order),
// and invoke it. If nothing matches, falls back to a static resource whose
// URI matches exactly; otherwise returns ErrResourceNotFound.
func (e *Engine) ReadResource(ctx context.Context, sess *session.Session, uri string) ([]registry.ContentBlock, error) {
	descs := e.Registry.Resources()

	type candidate struct {
		desc     *registry.ResourceDescriptor
		bindings map[string]string
		order    int
	}
	var candidates []candidate
	for i, d := range descs {
		for _, tmpl := range d.CompiledTemplates() {
			if bindings, ok := tmpl.Match(uri); ok {
				candidates = append(candidates, candidate{desc: d, bindings: bindings, order: i})
			}
		}
	}

	if len(candidates) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			if len(candidates[i].bindings) != len(candidates[j].bindings) {
				return len(candidates[i].bindings) > len(candidates[j].bindings)
			}
			return candidates[i].order < candidates[j].order
		})
		best := candidates[0]

		enriched := coerce.Enrich(stringMapToAny(best.bindings), best.desc.Parameters)
		vars := make(map[string]string, len(enriched))
		for k, v := range enriched {
			if s, ok := v.(string); ok {
				vars[k] = s
			}
		}

		ctx = session.Bind(ctx, sess)
		return best.desc.Invoke(ctx, uri, vars)
	}

	for _, d := range descs {
		if len(d.URITemplates) == 0 && d.URI == uri {
			ctx = session.Bind(ctx, sess)
			return d.Invoke(ctx, uri, nil)
		}
	}

	return nil, domainerrors.New(domainName, "ReadResource", ErrResourceNotFound, nil).WithContext("uri", uri)
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PromptSummary is the prompts/list projection of a PromptDescriptor.
type PromptSummary struct {
	Name        string
	Description string
	Parameters  []coerce.ParameterDescriptor
}

// ListPrompts returns every registered prompt.
func (e *Engine) ListPrompts() []PromptSummary {
	descs := e.Registry.Prompts()
	out := make([]PromptSummary, 0, len(descs))
	for _, d := range descs {
		out = append(out, PromptSummary{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return out
}

// GetPrompt renders a named prompt with the given arguments.
func (e *Engine) GetPrompt(ctx context.Context, sess *session.Session, name string, rawArgs map[string]any) ([]registry.PromptMessage, error) {
	desc, ok := e.Registry.Prompt(name)
	if !ok {
		return nil, domainerrors.New(domainName, "GetPrompt", ErrUnknownPrompt, nil).WithContext("name", name)
	}
	enriched := coerce.Enrich(rawArgs, desc.Parameters)
	ctx = session.Bind(ctx, sess)
	return desc.Invoke(ctx, enriched)
}

// Complete implements completion/complete: if a CompletionHook is
// registered for the parameter, defer to it; otherwise, if the parameter
// has a declared finite enum domain, rank its labels by common-prefix
// length against the typed prefix (stable on ties, i.e. insertion order);
// otherwise return no suggestions.
func (e *Engine) Complete(ctx context.Context, paramName string, enumValues []string, prefix string) []string {
	if hook, ok := e.CompletionHooks[paramName]; ok {
		return hook(ctx, paramName, prefix)
	}
	if len(enumValues) == 0 {
		return nil
	}

	type scored struct {
		value string
		score int
		order int
	}
	scoredValues := make([]scored, len(enumValues))
	for i, v := range enumValues {
		scoredValues[i] = scored{value: v, score: commonPrefixLen(prefix, v), order: i}
	}
	sort.SliceStable(scoredValues, func(i, j int) bool {
		return scoredValues[i].score > scoredValues[j].score
	})

	out := make([]string, len(scoredValues))
	for i, s := range scoredValues {
		out[i] = s.value
	}
	return out
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
