// Package tcp implements the raw-TCP transport: line-delimited framing
// identical to the stdio transport over accepted sockets, each its own
// session, advertised on the local network via mDNS service discovery.
package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"

	domainerrors "github.com/mcprt/server/internal/errors"
	"github.com/mcprt/server/internal/jsonrpc"
	"github.com/mcprt/server/internal/mcp"
	"github.com/mcprt/server/internal/session"
)

const serviceType = "_mcp._tcp"

// Options configures a Transport.
type Options struct {
	Router      *mcp.Router
	Logger      *slog.Logger
	Port        int
	ServiceName string // human-readable mDNS instance name
}

// Transport accepts raw TCP connections, one session per socket.
type Transport struct {
	opts Options

	mu    sync.Mutex
	conns map[string]net.Conn
}

// New builds a tcp Transport.
func New(opts Options) *Transport {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "mcp-server"
	}
	return &Transport{opts: opts, conns: make(map[string]net.Conn)}
}

// Run listens on opts.Port, advertises the service via mDNS, and accepts
// connections until ctx is cancelled.
func (t *Transport) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", t.opts.Port))
	if err != nil {
		return domainerrors.New("tcp", "Run", domainerrors.ErrInternal, err)
	}
	defer listener.Close()

	actualPort := listener.Addr().(*net.TCPAddr).Port

	server, err := zeroconf.Register(t.opts.ServiceName, serviceType, "local.", actualPort, nil, nil)
	if err != nil {
		t.opts.Logger.Warn("mDNS advertisement failed, continuing without discovery", "error", err)
	} else {
		defer server.Shutdown()
	}

	t.opts.Logger.Info("tcp transport listening", "port", actualPort, "service", t.opts.ServiceName)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return domainerrors.New("tcp", "Run", domainerrors.ErrInternal, err)
			}
		}
		go t.handleConn(ctx, conn)
	}
}

func (t *Transport) handleConn(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	t.mu.Lock()
	t.conns[id] = conn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.conns, id)
		t.mu.Unlock()
		conn.Close()
	}()

	writeMu := &sync.Mutex{}
	sess := session.New(id, func(n session.Notification) {
		data, err := json.Marshal(struct {
			JSONRPC string `json:"jsonrpc"`
			Method  string `json:"method"`
			Params  any    `json:"params,omitempty"`
		}{JSONRPC: jsonrpc.Version, Method: n.Method, Params: n.Params})
		if err != nil {
			return
		}
		writeMu.Lock()
		fmt.Fprintf(conn, "%s\n", data)
		writeMu.Unlock()
	})
	defer sess.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		data, err := mcp.HandlePayload(ctx, t.opts.Router, sess, []byte(line))
		if err != nil {
			t.opts.Logger.Error("failed to handle message", "error", err)
			continue
		}
		if len(data) == 0 {
			continue
		}
		writeMu.Lock()
		fmt.Fprintf(conn, "%s\n", data)
		writeMu.Unlock()
	}
}
