// Package mcp routes JSON-RPC requests over the MCP method namespace to
// engine calls, gating access by session state.
package mcp

import (
	"context"
	"encoding/json"

	domainerrors "github.com/mcprt/server/internal/errors"
	"github.com/mcprt/server/internal/engine"
	"github.com/mcprt/server/internal/jsonrpc"
	"github.com/mcprt/server/internal/session"
)

const domainName = "mcp"

// ProtocolVersions is the set of protocol versions this server supports,
// newest first. initialize negotiates against this list.
var ProtocolVersions = []string{"2024-11-05", "2024-10-07"}

// ServerInfo identifies this server implementation in the initialize
// response.
type ServerInfo struct {
	Name    string
	Version string
}

// Router dispatches JSON-RPC requests to an Engine, gated by session state.
type Router struct {
	Engine     *engine.Engine
	ServerInfo ServerInfo
}

// New builds a Router over eng.
func New(eng *engine.Engine, info ServerInfo) *Router {
	return &Router{Engine: eng, ServerInfo: info}
}

func isAlwaysAllowed(method string) bool {
	switch method {
	case "initialize", "ping":
		return true
	}
	return len(method) >= len("notifications/") && method[:len("notifications/")] == "notifications/"
}

// Handle dispatches one already-decoded request and returns the response to
// send, or nil if req is a notification that produces no reply.
func (r *Router) Handle(ctx context.Context, sess *session.Session, req jsonrpc.Request) *jsonrpc.Response {
	if !sess.IsReady() && !isAlwaysAllowed(req.Method) {
		if req.IsNotification() {
			return nil
		}
		resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeNotInitialized, "Server not initialized", nil))
		return &resp
	}

	result, rpcErr := r.dispatch(ctx, sess, req)
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		resp := jsonrpc.NewErrorResponse(req.ID, rpcErr)
		return &resp
	}
	resp, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		errResp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, "Internal error", nil))
		return &errResp
	}
	return &resp
}

func (r *Router) dispatch(ctx context.Context, sess *session.Session, req jsonrpc.Request) (any, *jsonrpc.ErrorObject) {
	switch req.Method {
	case "initialize":
		return r.handleInitialize(sess, req.Params)
	case "notifications/initialized":
		return nil, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return r.handleToolsList()
	case "tools/call":
		return r.handleToolsCall(ctx, sess, req.Params)
	case "resources/list":
		return r.handleResourcesList()
	case "resources/templates/list":
		return r.handleResourceTemplatesList()
	case "resources/read":
		return r.handleResourcesRead(ctx, sess, req.Params)
	case "prompts/list":
		return r.handlePromptsList()
	case "prompts/get":
		return r.handlePromptsGet(ctx, sess, req.Params)
	case "completion/complete":
		return r.handleCompletionComplete(ctx, req.Params)
	case "logging/setLevel":
		return r.handleLoggingSetLevel(sess, req.Params)
	default:
		return nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "Method not found", req.Method)
	}
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ClientInfo      map[string]any `json:"clientInfo"`
	Capabilities    map[string]any `json:"capabilities"`
}

func (r *Router) handleInitialize(sess *session.Session, raw json.RawMessage) (any, *jsonrpc.ErrorObject) {
	var params initializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "Invalid params", err.Error())
		}
	}

	if err := sess.BeginInitialize(); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "Invalid Request", "initialize already attempted")
	}

	negotiated := negotiateVersion(params.ProtocolVersion)

	capabilities := map[string]any{}
	if len(r.Engine.Registry.Tools()) > 0 {
		capabilities["tools"] = map[string]any{}
	}
	if len(r.Engine.Registry.Resources()) > 0 {
		capabilities["resources"] = map[string]any{}
	}
	if len(r.Engine.Registry.Prompts()) > 0 {
		capabilities["prompts"] = map[string]any{}
	}
	capabilities["completion"] = map[string]any{}
	capabilities["logging"] = map[string]any{}

	if err := sess.CompleteInitialize(negotiated, params.ClientInfo); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "Internal error", err.Error())
	}

	return map[string]any{
		"protocolVersion": negotiated,
		"capabilities":    capabilities,
		"serverInfo": map[string]any{
			"name":    r.ServerInfo.Name,
			"version": r.ServerInfo.Version,
		},
	}, nil
}

// negotiateVersion returns proposed if it is supported, otherwise this
// server's newest supported version.
func negotiateVersion(proposed string) string {
	for _, v := range ProtocolVersions {
		if v == proposed {
			return proposed
		}
	}
	return ProtocolVersions[0]
}

func (r *Router) handleToolsList() (any, *jsonrpc.ErrorObject) {
	tools := r.Engine.ListTools()
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		entry := map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		}
		if t.OutputSchema != nil {
			entry["outputSchema"] = *t.OutputSchema
		}
		if t.Consequential {
			entry["annotations"] = mergeAnnotations(t.Annotations, map[string]any{"destructiveHint": true})
		} else if t.Annotations != nil {
			entry["annotations"] = t.Annotations
		}
		out = append(out, entry)
	}
	return map[string]any{"tools": out}, nil
}

func mergeAnnotations(base map[string]any, extra map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (r *Router) handleToolsCall(ctx context.Context, sess *session.Session, raw json.RawMessage) (any, *jsonrpc.ErrorObject) {
	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "Invalid params", err.Error())
	}

	result, err := r.Engine.CallTool(ctx, sess, params.Name, params.Arguments)
	if err != nil {
		var de *domainerrors.DomainError
		if ok := asDomainError(err, &de); ok {
			switch {
			case de.Is(engine.ErrUnknownTool):
				return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "Unknown tool", de.Context["name"])
			default:
				return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error(), de.Context)
			}
		}
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error(), nil)
	}

	envelope := map[string]any{"content": result.Content}
	if result.IsError {
		envelope["isError"] = true
	}
	if result.HasStructured {
		envelope["structuredContent"] = result.StructuredContent
	}
	return envelope, nil
}

func asDomainError(err error, target **domainerrors.DomainError) bool {
	de, ok := err.(*domainerrors.DomainError)
	if ok {
		*target = de
	}
	return ok
}

func (r *Router) handleResourcesList() (any, *jsonrpc.ErrorObject) {
	resources := r.Engine.ListResources()
	out := make([]map[string]any, 0, len(resources))
	for _, res := range resources {
		out = append(out, map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"mimeType":    res.MimeType,
			"description": res.Description,
		})
	}
	return map[string]any{"resources": out}, nil
}

func (r *Router) handleResourceTemplatesList() (any, *jsonrpc.ErrorObject) {
	templates := r.Engine.ListResourceTemplates()
	out := make([]map[string]any, 0, len(templates))
	for _, res := range templates {
		out = append(out, map[string]any{
			"uriTemplate": res.URI,
			"name":        res.Name,
			"mimeType":    res.MimeType,
			"description": res.Description,
		})
	}
	return map[string]any{"resourceTemplates": out}, nil
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

func (r *Router) handleResourcesRead(ctx context.Context, sess *session.Session, raw json.RawMessage) (any, *jsonrpc.ErrorObject) {
	var params resourceReadParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "Invalid params", err.Error())
	}
	content, err := r.Engine.ReadResource(ctx, sess, params.URI)
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "Resource not found", params.URI)
	}
	return map[string]any{"contents": content}, nil
}

func (r *Router) handlePromptsList() (any, *jsonrpc.ErrorObject) {
	prompts := r.Engine.ListPrompts()
	out := make([]map[string]any, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, map[string]any{
			"name":        p.Name,
			"description": p.Description,
		})
	}
	return map[string]any{"prompts": out}, nil
}

type promptGetParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (r *Router) handlePromptsGet(ctx context.Context, sess *session.Session, raw json.RawMessage) (any, *jsonrpc.ErrorObject) {
	var params promptGetParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "Invalid params", err.Error())
	}
	messages, err := r.Engine.GetPrompt(ctx, sess, params.Name, params.Arguments)
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "Unknown prompt", params.Name)
	}
	return map[string]any{"messages": messages}, nil
}

type completeRef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type completeArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type completionCompleteParams struct {
	Ref      completeRef      `json:"ref"`
	Argument completeArgument `json:"argument"`
}

func (r *Router) handleCompletionComplete(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.ErrorObject) {
	var params completionCompleteParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "Invalid params", err.Error())
	}

	var enumValues []string
	if desc, ok := r.Engine.Registry.Tool(params.Ref.Name); ok {
		for _, p := range desc.Parameters {
			if p.Name == params.Argument.Name {
				enumValues = p.Schema.EnumValues
			}
		}
	}

	suggestions := r.Engine.Complete(ctx, params.Argument.Name, enumValues, params.Argument.Value)
	return map[string]any{
		"completion": map[string]any{
			"values":  suggestions,
			"total":   len(suggestions),
			"hasMore": false,
		},
	}, nil
}

type loggingSetLevelParams struct {
	Level string `json:"level"`
}

func (r *Router) handleLoggingSetLevel(sess *session.Session, raw json.RawMessage) (any, *jsonrpc.ErrorObject) {
	var params loggingSetLevelParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "Invalid params", err.Error())
	}
	sess.SetLogLevel(session.LogLevel(params.Level))
	return map[string]any{}, nil
}

// HandlePayload decodes a raw JSON-RPC payload (single or batch), runs every
// request through Handle, and re-encodes the responses, skipping
// notifications per the batching rule.
func HandlePayload(ctx context.Context, r *Router, sess *session.Session, payload []byte) ([]byte, error) {
	batch, errObj := jsonrpc.Decode(payload)
	if errObj != nil {
		resp := jsonrpc.NewErrorResponse(jsonrpc.NullID(), errObj)
		return json.Marshal(resp)
	}

	responses := make([]jsonrpc.Response, 0, len(batch.Requests))
	for _, req := range batch.Requests {
		if resp := r.Handle(ctx, sess, req); resp != nil {
			responses = append(responses, *resp)
		}
	}

	data, err := jsonrpc.EncodeResponses(responses, batch.IsBatch)
	if err != nil {
		return nil, domainerrors.New(domainName, "HandlePayload", domainerrors.ErrInternal, err)
	}
	return data, nil
}
