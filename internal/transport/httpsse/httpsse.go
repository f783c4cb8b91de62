// Package httpsse implements the HTTP + Server-Sent-Events transport: a
// long-lived GET /sse channel per session, correlated POST delivery, and
// optional bearer-token authorization and OpenAPI projection.
package httpsse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	domainerrors "github.com/mcprt/server/internal/errors"
	"github.com/mcprt/server/internal/jsonrpc"
	"github.com/mcprt/server/internal/mcp"
	"github.com/mcprt/server/internal/oauth"
	"github.com/mcprt/server/internal/session"
	"github.com/mcprt/server/internal/transport/middleware"
)

const keepAliveInterval = 30 * time.Second

// AuthPredicate evaluates a bearer token (empty string if absent) and
// returns nil if authorized, or an error describing why not.
type AuthPredicate func(ctx context.Context, bearerToken string) error

// NewOAuthPredicate adapts an oauth.TokenValidator into an AuthPredicate via
// oauth.NewAuthorizer, wrapping failures as a domain unauthorized error so
// transport logging reports a consistent error kind.
func NewOAuthPredicate(validator oauth.TokenValidator) AuthPredicate {
	authorize := oauth.NewAuthorizer(validator)
	return func(ctx context.Context, bearerToken string) error {
		if err := authorize(ctx, bearerToken); err != nil {
			return domainerrors.New("httpsse", "Authorize", domainerrors.ErrUnauthorized, err)
		}
		return nil
	}
}

// Options configures a Transport.
type Options struct {
	Router        *mcp.Router
	Logger        *slog.Logger
	Auth          AuthPredicate // nil disables authorization
	EnableOpenAPI bool
	ServerName    string
	Metadata      oauth.MetadataService // nil disables the RFC 9728 endpoint
}

// Transport serves the HTTP+SSE transport over chi.
type Transport struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*sseSession
}

// sseSession is one open GET /sse connection: its Session state machine,
// the HTTP flusher, and a buffered, non-blocking push channel.
type sseSession struct {
	sess    *session.Session
	flusher http.Flusher
	w       http.ResponseWriter
	events  chan []byte
	done    chan struct{}
}

// New builds an httpsse Transport.
func New(opts Options) *Transport {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Transport{opts: opts, sessions: make(map[string]*sseSession)}
}

// Handler returns the chi router implementing every httpsse endpoint.
func (t *Transport) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/sse", t.handleSSE)
	r.Post("/message/{sessionID}", t.handleMessage)
	if t.opts.EnableOpenAPI {
		r.Get("/openapi.json", t.handleOpenAPI)
		r.Get("/.well-known/ai-plugin.json", t.handleAIPlugin)
	}
	if t.opts.Metadata != nil {
		r.Get("/.well-known/oauth-protected-resource", t.handleProtectedResourceMetadata)
	}

	var handler http.Handler = r
	handler = middleware.Logging(t.opts.Logger)(handler)
	handler = middleware.Recovery(t.opts.Logger)(handler)
	return handler
}

func (t *Transport) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := t.opts.Metadata.GetMetadata(r.Context())
	if err != nil {
		http.Error(w, "failed to build metadata", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

func bearerFromRequest(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func (t *Transport) authorize(w http.ResponseWriter, r *http.Request) bool {
	if t.opts.Auth == nil {
		return true
	}
	if err := t.opts.Auth(r.Context(), bearerFromRequest(r)); err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (t *Transport) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !t.authorize(w, r) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sse := &sseSession{
		w:       w,
		flusher: flusher,
		events:  make(chan []byte, 64),
		done:    make(chan struct{}),
	}
	sse.sess = session.New(sessionID, sse.pushFunc)

	t.mu.Lock()
	t.sessions[sessionID] = sse
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.sessions, sessionID)
		t.mu.Unlock()
		sse.sess.Close()
		close(sse.done)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Mcp-Session-Id", sessionID)
	w.WriteHeader(http.StatusOK)

	endpoint := fmt.Sprintf("/message/%s", sessionID)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case data := <-sse.events:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// pushFunc implements session.PushFunc: non-blocking, drops the
// notification if the channel is full or the connection has closed.
func (sse *sseSession) pushFunc(n session.Notification) {
	data, err := json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{JSONRPC: jsonrpc.Version, Method: n.Method, Params: n.Params})
	if err != nil {
		return
	}
	select {
	case sse.events <- data:
	case <-sse.done:
	default:
	}
}

func (t *Transport) handleMessage(w http.ResponseWriter, r *http.Request) {
	if !t.authorize(w, r) {
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	t.mu.Lock()
	sse, ok := t.sessions[sessionID]
	t.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	data, err := mcp.HandlePayload(r.Context(), t.opts.Router, sse.sess, body)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleOpenAPI projects the tool registry as an OpenAPI document: one POST
// operation per tool at /<server-name>/<tool-name>.
func (t *Transport) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	paths := map[string]any{}
	for _, tool := range t.opts.Router.Engine.ListTools() {
		path := fmt.Sprintf("/%s/%s", t.opts.ServerName, tool.Name)
		op := map[string]any{
			"summary": tool.Description,
			"requestBody": map[string]any{
				"content": map[string]any{
					"application/json": map[string]any{"schema": tool.InputSchema},
				},
			},
			"responses": map[string]any{
				"200": map[string]any{"description": "Tool result"},
			},
		}
		paths[path] = map[string]any{"post": op}
	}
	doc := map[string]any{
		"openapi": "3.0.3",
		"info":    map[string]any{"title": t.opts.ServerName, "version": "1.0.0"},
		"paths":   paths,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (t *Transport) handleAIPlugin(w http.ResponseWriter, r *http.Request) {
	doc := map[string]any{
		"schema_version": "v1",
		"name_for_model": t.opts.ServerName,
		"api": map[string]any{
			"type": "openapi",
			"url":  "/openapi.json",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
