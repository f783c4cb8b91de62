// Package stdio implements the standard-streams transport: one JSON value
// per line on stdin, responses one JSON value per line on stdout,
// diagnostics strictly to stderr. Exactly one session for the process
// lifetime.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/mcprt/server/internal/jsonrpc"
	"github.com/mcprt/server/internal/mcp"
	"github.com/mcprt/server/internal/session"
)

// Transport drives one stdio session for the process lifetime. The input
// scanner runs in its own goroutine so a blocking Scan() never prevents
// ctx cancellation from being observed.
//
// In and Out default to os.Stdin/os.Stdout; tests inject pipes instead so
// the read/write loop can be exercised without touching real standard
// streams.
type Transport struct {
	Router *mcp.Router
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer

	writeMu sync.Mutex
}

// New builds a stdio Transport.
func New(router *mcp.Router, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{Router: router, Logger: logger, In: os.Stdin, Out: os.Stdout}
}

// Run blocks until ctx is cancelled or the input reaches EOF, which is
// treated as a graceful close.
func (t *Transport) Run(ctx context.Context) error {
	in, out := t.In, t.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	sess := session.New(uuid.NewString(), t.pushNotification(out))
	defer sess.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case lines <- scanner.Text():
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- err
		}
		close(errs)
	}()

	writer := bufio.NewWriter(out)
	defer writer.Flush()

	for {
		select {
		case <-ctx.Done():
			t.Logger.Info("stdio transport shutting down")
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				t.Logger.Error("stdio read error", "error", err)
				return err
			}
		case line, ok := <-lines:
			if !ok {
				t.Logger.Info("stdin closed, exiting")
				return nil
			}
			if line == "" {
				continue
			}
			t.handleLine(ctx, sess, writer, line)
		}
	}
}

func (t *Transport) handleLine(ctx context.Context, sess *session.Session, writer *bufio.Writer, line string) {
	data, err := mcp.HandlePayload(ctx, t.Router, sess, []byte(line))
	if err != nil {
		t.Logger.Error("failed to handle message", "error", err)
		return
	}
	if len(data) == 0 {
		return // notification, no response expected
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	fmt.Fprintln(writer, string(data))
	writer.Flush()
}

// pushNotification returns a session.PushFunc that writes a notification
// line directly to out, guarded by the same mutex as handleLine so the two
// never interleave a partial line.
func (t *Transport) pushNotification(out io.Writer) session.PushFunc {
	return func(n session.Notification) {
		data, err := json.Marshal(struct {
			JSONRPC string `json:"jsonrpc"`
			Method  string `json:"method"`
			Params  any    `json:"params,omitempty"`
		}{JSONRPC: jsonrpc.Version, Method: n.Method, Params: n.Params})
		if err != nil {
			t.Logger.Warn("dropping notification: encode failed", "error", err)
			return
		}
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		fmt.Fprintln(out, string(data))
	}
}
