// Package session implements the MCP session state machine
// (Uninitialized -> Initializing -> Ready, any -> Closed) and the
// context-scoped CurrentSession ambient that thunks use to emit log and
// progress notifications.
package session

import (
	"context"
	"sync"

	"github.com/looplab/fsm"

	domainerrors "github.com/mcprt/server/internal/errors"
)

const domainName = "session"

// State names for the session lifecycle state machine.
const (
	StateUninitialized = "uninitialized"
	StateInitializing  = "initializing"
	StateReady         = "ready"
	StateClosed        = "closed"
)

// Transition event names.
const (
	EventInitialize = "initialize"
	EventReady      = "ready"
	EventClose      = "close"
)

// LogLevel mirrors the RFC 5424-derived severities MCP's logging/setLevel
// accepts.
type LogLevel string

const (
	LogDebug     LogLevel = "debug"
	LogInfo      LogLevel = "info"
	LogNotice    LogLevel = "notice"
	LogWarning   LogLevel = "warning"
	LogError     LogLevel = "error"
	LogCritical  LogLevel = "critical"
	LogAlert     LogLevel = "alert"
	LogEmergency LogLevel = "emergency"
)

// Notification is a server-initiated push: a log message or a progress
// update, delivered through the transport-provided push channel.
type Notification struct {
	Method string
	Params any
}

// PushFunc delivers a Notification to the session's transport. It must be
// non-blocking: a full or closed channel drops the notification rather than
// blocking or failing the calling thunk.
type PushFunc func(Notification)

// Session is one client connection's state: its FSM, negotiated protocol
// version, capabilities, minimum log level, and push channel.
type Session struct {
	ID string

	mu              sync.Mutex
	machine         *fsm.FSM
	protocolVersion string
	clientInfo      map[string]any
	minLogLevel     LogLevel
	push            PushFunc
}

// New creates a session in the Uninitialized state.
func New(id string, push PushFunc) *Session {
	s := &Session{ID: id, minLogLevel: LogInfo, push: push}
	s.machine = fsm.NewFSM(
		StateUninitialized,
		fsm.Events{
			{Name: EventInitialize, Src: []string{StateUninitialized}, Dst: StateInitializing},
			{Name: EventReady, Src: []string{StateInitializing}, Dst: StateReady},
			{Name: EventClose, Src: []string{StateUninitialized, StateInitializing, StateReady, StateClosed}, Dst: StateClosed},
		},
		fsm.Callbacks{},
	)
	return s
}

// State returns the session's current FSM state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// BeginInitialize transitions Uninitialized -> Initializing. It returns an
// error if initialize has already been attempted: initialize is
// non-idempotent, so a second attempt is a protocol violation rather than
// a silent no-op.
func (s *Session) BeginInitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Event(context.Background(), EventInitialize); err != nil {
		return domainerrors.New(domainName, "BeginInitialize", domainerrors.ErrBadRequest, err).
			WithContext("state", s.machine.Current())
	}
	return nil
}

// CompleteInitialize transitions Initializing -> Ready, recording the
// negotiated protocol version and client info. Called just before the
// initialize response is sent.
func (s *Session) CompleteInitialize(protocolVersion string, clientInfo map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Event(context.Background(), EventReady); err != nil {
		return domainerrors.New(domainName, "CompleteInitialize", domainerrors.ErrBadRequest, err).
			WithContext("state", s.machine.Current())
	}
	s.protocolVersion = protocolVersion
	s.clientInfo = clientInfo
	return nil
}

// Close transitions to Closed from any state; it is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Current() == StateClosed {
		return
	}
	_ = s.machine.Event(context.Background(), EventClose)
}

// IsReady reports whether the session has completed initialization and can
// accept any method.
func (s *Session) IsReady() bool { return s.State() == StateReady }

// SetLogLevel updates the session's minimum log level, per logging/setLevel.
func (s *Session) SetLogLevel(level LogLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minLogLevel = level
}

// LogLevel returns the session's current minimum log level.
func (s *Session) LogLevel() LogLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minLogLevel
}

// ProtocolVersion returns the negotiated protocol version, empty before
// initialization completes.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// Notify pushes a notification through the transport's push channel. It
// never blocks and never returns an error: a dropped notification is not a
// thunk failure, per the concurrency model.
func (s *Session) Notify(n Notification) {
	if s.push == nil {
		return
	}
	s.push(n)
}

// contextKey is an unexported type so CurrentSession can never collide with
// another package's context key.
type contextKey struct{}

var currentSessionKey = contextKey{}

// Bind returns a context carrying sess as the ambient CurrentSession. It is
// applied immediately before a thunk executes and must not leak beyond that
// invocation's context tree.
func Bind(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, currentSessionKey, sess)
}

// CurrentSession retrieves the session bound by Bind, if any.
func CurrentSession(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(currentSessionKey).(*Session)
	return sess, ok
}
