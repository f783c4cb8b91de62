// Package registry holds the three capability maps — tools, resources, and
// prompts — that a server exposes, keyed by external name.
package registry

import (
	"context"
	"sync"

	domainerrors "github.com/mcprt/server/internal/errors"
	"github.com/mcprt/server/internal/coerce"
	"github.com/mcprt/server/internal/schema"
	"github.com/mcprt/server/internal/uritemplate"
)

const domainName = "registry"

// ContentBlock is one element of a tools/call or resources/read content
// array: exactly one of Text/Blob is set per the wire contract.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is what a tool invoke-thunk returns, before envelope assembly.
type ToolResult struct {
	Content           []ContentBlock
	StructuredContent any
	HasStructured      bool
}

// ToolThunk invokes a tool with enriched arguments, each declared parameter
// already coerced to the Go value of its schema kind.
type ToolThunk func(ctx context.Context, args map[string]any) (ToolResult, error)

// ResourceThunk invokes a resource (static or template-matched) with
// extracted URI variables, returning its content blocks.
type ResourceThunk func(ctx context.Context, uri string, vars map[string]string) ([]ContentBlock, error)

// PromptMessage is one role-tagged message of a rendered prompt.
type PromptMessage struct {
	Role    string       `json:"role"`
	Content ContentBlock `json:"content"`
}

// PromptThunk renders a prompt given its arguments.
type PromptThunk func(ctx context.Context, args map[string]any) ([]PromptMessage, error)

// ToolDescriptor is a registered tool's metadata plus its invoke-thunk.
type ToolDescriptor struct {
	Name            string
	Description     string
	Parameters      []coerce.ParameterDescriptor
	InputSchema     schema.Schema
	OutputSchema    *schema.Schema
	Consequential   bool
	Annotations     map[string]any
	Invoke          ToolThunk
}

// ResourceDescriptor is a registered resource's metadata plus its thunks. A
// descriptor may declare multiple URI templates resolving to the same
// handler; URITemplates is empty for a static (non-templated) resource.
type ResourceDescriptor struct {
	Name        string
	URI         string // for static resources
	URITemplates []string
	Description string
	MimeType    string
	Parameters  []coerce.ParameterDescriptor
	Invoke      ResourceThunk

	compiled []*uritemplate.Template
}

// PromptDescriptor is a registered prompt's metadata plus its thunk.
type PromptDescriptor struct {
	Name        string
	Description string
	Parameters  []coerce.ParameterDescriptor
	Invoke      PromptThunk
}

// Registry is the thread-safe capability store. Reads are lock-free after
// construction is not literally true in Go without atomic snapshots, so
// this uses sync.RWMutex to keep concurrent reads cheap while writes
// (registration) are rare and happen before traffic starts.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*ToolDescriptor
	resources map[string]*ResourceDescriptor
	prompts   map[string]*PromptDescriptor
	// resourceOrder preserves declaration order for the tie-break rule in
	// resources/read longest-match selection.
	resourceOrder []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		tools:     make(map[string]*ToolDescriptor),
		resources: make(map[string]*ResourceDescriptor),
		prompts:   make(map[string]*PromptDescriptor),
	}
}

func failFast(op, name string, reason error) error {
	return domainerrors.New(domainName, op, domainerrors.ErrBadRequest, reason).WithContext("name", name)
}

// RegisterTool fails fast on empty name, nil thunk, or a duplicate name.
func (r *Registry) RegisterTool(d *ToolDescriptor) error {
	if d.Name == "" {
		return failFast("RegisterTool", d.Name, errEmptyName)
	}
	if d.Invoke == nil {
		return failFast("RegisterTool", d.Name, errNilThunk)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return failFast("RegisterTool", d.Name, errDuplicate)
	}
	r.tools[d.Name] = d
	return nil
}

// RegisterResource compiles and validates every declared URI template, then
// fails fast on empty name, nil thunk, or duplicate name.
func (r *Registry) RegisterResource(d *ResourceDescriptor) error {
	if d.Name == "" {
		return failFast("RegisterResource", d.Name, errEmptyName)
	}
	if d.Invoke == nil {
		return failFast("RegisterResource", d.Name, errNilThunk)
	}
	for _, tmplStr := range d.URITemplates {
		tmpl, err := uritemplate.Parse(tmplStr)
		if err != nil {
			return domainerrors.New(domainName, "RegisterResource", domainerrors.ErrBadRequest, err).
				WithContext("name", d.Name).WithContext("template", tmplStr)
		}
		d.compiled = append(d.compiled, tmpl)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[d.Name]; exists {
		return failFast("RegisterResource", d.Name, errDuplicate)
	}
	r.resources[d.Name] = d
	r.resourceOrder = append(r.resourceOrder, d.Name)
	return nil
}

// RegisterPrompt fails fast on empty name, nil thunk, or duplicate name.
func (r *Registry) RegisterPrompt(d *PromptDescriptor) error {
	if d.Name == "" {
		return failFast("RegisterPrompt", d.Name, errEmptyName)
	}
	if d.Invoke == nil {
		return failFast("RegisterPrompt", d.Name, errNilThunk)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.prompts[d.Name]; exists {
		return failFast("RegisterPrompt", d.Name, errDuplicate)
	}
	r.prompts[d.Name] = d
	return nil
}

// Tool looks up a tool descriptor by name.
func (r *Registry) Tool(name string) (*ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Prompt looks up a prompt descriptor by name.
func (r *Registry) Prompt(name string) (*PromptDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.prompts[name]
	return d, ok
}

// Tools returns every registered tool, in map-iteration order (callers that
// need a stable order, e.g. tools/list, should sort by name).
func (r *Registry) Tools() []*ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolDescriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}

// Resources returns every registered resource descriptor, in declaration
// order.
func (r *Registry) Resources() []*ResourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ResourceDescriptor, 0, len(r.resourceOrder))
	for _, name := range r.resourceOrder {
		out = append(out, r.resources[name])
	}
	return out
}

// Prompts returns every registered prompt descriptor.
func (r *Registry) Prompts() []*PromptDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PromptDescriptor, 0, len(r.prompts))
	for _, d := range r.prompts {
		out = append(out, d)
	}
	return out
}

// CompiledTemplates exposes a resource descriptor's parsed templates for
// matching by the engine.
func (d *ResourceDescriptor) CompiledTemplates() []*uritemplate.Template {
	return d.compiled
}

var (
	errEmptyName = domainError("empty name")
	errNilThunk  = domainError("nil invoke thunk")
	errDuplicate = domainError("duplicate registration")
)

func domainError(msg string) error { return &simpleErr{msg} }

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }
