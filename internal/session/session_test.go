package session

import (
	"context"
	"testing"
)

func TestLifecycle(t *testing.T) {
	s := New("sess-1", nil)
	if s.State() != StateUninitialized {
		t.Fatalf("initial state = %q", s.State())
	}
	if err := s.BeginInitialize(); err != nil {
		t.Fatalf("BeginInitialize: %v", err)
	}
	if s.State() != StateInitializing {
		t.Fatalf("state after BeginInitialize = %q", s.State())
	}
	if err := s.CompleteInitialize("2024-11-05", nil); err != nil {
		t.Fatalf("CompleteInitialize: %v", err)
	}
	if !s.IsReady() {
		t.Fatal("IsReady() = false after CompleteInitialize")
	}
}

func TestInitialize_NonIdempotent(t *testing.T) {
	s := New("sess-1", nil)
	if err := s.BeginInitialize(); err != nil {
		t.Fatalf("first BeginInitialize: %v", err)
	}
	if err := s.BeginInitialize(); err == nil {
		t.Fatal("second BeginInitialize should fail: initialize is not idempotent")
	}
}

func TestClose_IdempotentFromAnyState(t *testing.T) {
	s := New("sess-1", nil)
	s.Close()
	if s.State() != StateClosed {
		t.Fatalf("state = %q, want closed", s.State())
	}
	s.Close()
	if s.State() != StateClosed {
		t.Fatalf("second Close changed state to %q", s.State())
	}
}

func TestCurrentSession_ContextScoped(t *testing.T) {
	s := New("sess-1", nil)
	ctx := Bind(context.Background(), s)
	got, ok := CurrentSession(ctx)
	if !ok || got != s {
		t.Fatal("CurrentSession did not retrieve bound session")
	}

	if _, ok := CurrentSession(context.Background()); ok {
		t.Fatal("CurrentSession found a session in an unbound context")
	}
}

func TestNotify_NilPushDoesNotPanic(t *testing.T) {
	s := New("sess-1", nil)
	s.Notify(Notification{Method: "notifications/message"})
}

func TestSetLogLevel(t *testing.T) {
	s := New("sess-1", nil)
	s.SetLogLevel(LogDebug)
	if s.LogLevel() != LogDebug {
		t.Fatalf("LogLevel() = %v, want debug", s.LogLevel())
	}
}
