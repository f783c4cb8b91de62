package httpsse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mcprt/server/internal/coerce"
	"github.com/mcprt/server/internal/engine"
	"github.com/mcprt/server/internal/mcp"
	"github.com/mcprt/server/internal/registry"
	"github.com/mcprt/server/internal/schema"
	"github.com/mcprt/server/internal/session"
)

func newTestRouter(t *testing.T) *mcp.Router {
	t.Helper()
	reg := registry.New()
	err := reg.RegisterTool(&registry.ToolDescriptor{
		Name: "add",
		Parameters: []coerce.ParameterDescriptor{
			{Name: "a", Schema: schema.Number(""), Required: true},
			{Name: "b", Schema: schema.Number(""), Required: true},
		},
		Invoke: func(ctx context.Context, args map[string]any) (registry.ToolResult, error) {
			return registry.ToolResult{Content: []registry.ContentBlock{{Type: "text", Text: "5"}}}, nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}
	eng := engine.New(reg)
	return mcp.New(eng, mcp.ServerInfo{Name: "test-server", Version: "0.0.1"})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))
}

// openSSE opens a GET /sse connection against srv and returns the session
// ID parsed out of the initial "event: endpoint" message, plus a reader the
// caller can keep draining for pushed notifications.
func openSSE(t *testing.T, ctx context.Context, srv *httptest.Server) (sessionID string, body io.ReadCloser) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /sse status = %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading SSE stream: %v", err)
		}
		if strings.HasPrefix(line, "data: /message/") {
			sessionID = strings.TrimSpace(strings.TrimPrefix(line, "data: /message/"))
			break
		}
	}
	return sessionID, resp.Body
}

// TestHandleMessage_WritesResultDirectlyToResponseBody is the regression
// test for the response-routing bug: a normal tools/call POST must receive
// its JSON-RPC result in the HTTP response body, not via the SSE channel.
func TestHandleMessage_WritesResultDirectlyToResponseBody(t *testing.T) {
	tr := New(Options{Router: newTestRouter(t), Logger: discardLogger()})
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sessionID, sseBody := openSSE(t, ctx, srv)
	defer sseBody.Close()

	reqBody := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`
	resp, err := http.Post(srv.URL+"/message/"+sessionID, "application/json", strings.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST initialize: %v", err)
	}
	initData, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	var initResp map[string]any
	if err := json.Unmarshal(initData, &initResp); err != nil {
		t.Fatalf("unmarshal initialize response: %v, body=%q", err, initData)
	}
	if initResp["error"] != nil {
		t.Fatalf("initialize returned an error: %+v", initResp["error"])
	}

	callBody := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add","arguments":{"a":2,"b":3}}}`
	resp, err = http.Post(srv.URL+"/message/"+sessionID, "application/json", strings.NewReader(callBody))
	if err != nil {
		t.Fatalf("POST tools/call: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tools/call status = %d, want 200", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var callResp map[string]any
	if err := json.Unmarshal(data, &callResp); err != nil {
		t.Fatalf("unmarshal tools/call response: %v, body=%q", err, data)
	}
	result, ok := callResp["result"].(map[string]any)
	if !ok {
		t.Fatalf("response has no result (was it pushed over SSE instead?): %+v", callResp)
	}
	content := result["content"].([]any)
	first := content[0].(map[string]any)
	if first["text"] != "5" {
		t.Errorf("content[0].text = %v, want \"5\"", first["text"])
	}
}

// TestHandleMessage_NotificationReturns202Empty confirms a notification
// (no id) gets a bare 202 with an empty body.
func TestHandleMessage_NotificationReturns202Empty(t *testing.T) {
	tr := New(Options{Router: newTestRouter(t), Logger: discardLogger()})
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sessionID, sseBody := openSSE(t, ctx, srv)
	defer sseBody.Close()

	resp, err := http.Post(srv.URL+"/message/"+sessionID, "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if err != nil {
		t.Fatalf("POST notification: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if len(data) != 0 {
		t.Errorf("expected empty body, got %q", data)
	}
}

// TestHandleMessage_UnknownSessionReturns404 confirms posting to an
// unregistered session ID fails instead of silently succeeding.
func TestHandleMessage_UnknownSessionReturns404(t *testing.T) {
	tr := New(Options{Router: newTestRouter(t), Logger: discardLogger()})
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/message/does-not-exist", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

// TestHandleSSE_PushesSessionNotification confirms a notification raised
// against the bound session (session.Notify) is delivered over the open
// SSE channel as an "event: message" frame.
func TestHandleSSE_PushesSessionNotification(t *testing.T) {
	tr := New(Options{Router: newTestRouter(t), Logger: discardLogger()})
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sessionID, sseBody := openSSE(t, ctx, srv)
	defer sseBody.Close()

	tr.mu.Lock()
	sse, ok := tr.sessions[sessionID]
	tr.mu.Unlock()
	if !ok {
		t.Fatalf("session %s not tracked by transport", sessionID)
	}
	sse.sess.Notify(session.Notification{Method: "test/event"})

	reader := bufio.NewReader(sseBody)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading SSE stream: %v", err)
		}
		if strings.HasPrefix(line, "event: message") {
			return
		}
	}
	t.Fatal("did not observe a pushed notification on the SSE stream")
}
