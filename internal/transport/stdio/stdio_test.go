package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mcprt/server/internal/coerce"
	"github.com/mcprt/server/internal/engine"
	"github.com/mcprt/server/internal/mcp"
	"github.com/mcprt/server/internal/registry"
	"github.com/mcprt/server/internal/schema"
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
			a, err := coerce.CoerceInt("a", args["a"])
			if err != nil {
				return registry.ToolResult{}, err
			}
			b, err := coerce.CoerceInt("b", args["b"])
			if err != nil {
				return registry.ToolResult{}, err
			}
			return registry.ToolResult{Content: []registry.ContentBlock{{Type: "text", Text: strconv.FormatInt(a+b, 10)}}}, nil
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

// TestRun_InitializeThenToolCall feeds two newline-delimited requests
// through stdin and asserts both responses appear, one per line, on stdout.
func TestRun_InitializeThenToolCall(t *testing.T) {
	router := newTestRouter(t)
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add","arguments":{"a":2,"b":3}}}` + "\n",
	)
	var out bytes.Buffer
	tr := New(router, discardLogger())
	tr.In = in
	tr.Out = &out

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stdin EOF")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d response lines, want 2: %q", len(lines), out.String())
	}

	var initResp map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &initResp); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if initResp["error"] != nil {
		t.Fatalf("initialize returned an error: %+v", initResp["error"])
	}

	var callResp map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &callResp); err != nil {
		t.Fatalf("unmarshal second line: %v", err)
	}
	result, ok := callResp["result"].(map[string]any)
	if !ok {
		t.Fatalf("second response has no result: %+v", callResp)
	}
	content := result["content"].([]any)
	first := content[0].(map[string]any)
	if first["text"] != "5" {
		t.Errorf("content[0].text = %v, want \"5\"", first["text"])
	}
}

// TestRun_NotificationProducesNoOutput confirms a notification (no id)
// never writes a line to stdout.
func TestRun_NotificationProducesNoOutput(t *testing.T) {
	router := newTestRouter(t)
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	var out bytes.Buffer
	tr := New(router, discardLogger())
	tr.In = in
	tr.Out = &out

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output for a notification, got %q", out.String())
	}
}

// TestRun_StopsOnContextCancel confirms Run returns once ctx is cancelled,
// even with no EOF on stdin.
func TestRun_StopsOnContextCancel(t *testing.T) {
	router := newTestRouter(t)
	pr, pw := io.Pipe()
	defer pw.Close()
	var out bytes.Buffer
	tr := New(router, discardLogger())
	tr.In = pr
	tr.Out = &out

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not observe context cancellation")
	}
}
