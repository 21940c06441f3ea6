package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type closingHandler struct {
	spyHandler
	closed   int
	closeErr error
}

func (c *closingHandler) Close() error {
	c.closed++
	return c.closeErr
}

func TestProvideDuplicate(t *testing.T) {
	a := NewFactoryActivator()
	if err := a.Provide("echo", func() Handler { return &spyHandler{} }); err != nil {
		t.Fatalf("first provide: %v", err)
	}
	if err := a.Provide("echo", func() Handler { return &spyHandler{} }); err == nil {
		t.Error("expected error for duplicate handler")
	}
}

func TestProvideNilFactory(t *testing.T) {
	if err := NewFactoryActivator().Provide("x", nil); err == nil {
		t.Error("expected error for nil factory")
	}
}

func TestActivateBuildsFreshInstances(t *testing.T) {
	a := NewFactoryActivator()
	a.Provide("spy", func() Handler { return &spyHandler{} })

	h1, err := a.Activate("spy")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	h2, _ := a.Activate("spy")
	if h1 == h2 {
		t.Error("expected a new instance per activation")
	}
}

func TestActivateUnknown(t *testing.T) {
	_, err := NewFactoryActivator().Activate("missing")
	if err == nil || !strings.Contains(err.Error(), "not provided") {
		t.Errorf("err = %v, want not provided", err)
	}
}

func TestActivateNilInstance(t *testing.T) {
	a := NewFactoryActivator()
	a.Provide("nil", func() Handler { return nil })
	if _, err := a.Activate("nil"); err == nil {
		t.Error("expected error for nil instance")
	}
}

func TestScopeClosesResolvedClosers(t *testing.T) {
	h := &closingHandler{closeErr: errors.New("pool drained")}
	a := NewFactoryActivator()
	a.Provide("closer", func() Handler { return h })
	a.Provide("plain", func() Handler { return &spyHandler{} })

	scope := a.BeginScope()
	if _, err := scope.Resolve("closer"); err != nil {
		t.Fatalf("resolve closer: %v", err)
	}
	if _, err := scope.Resolve("plain"); err != nil {
		t.Fatalf("resolve plain: %v", err)
	}

	err := scope.Close()
	if err == nil || !strings.Contains(err.Error(), "pool drained") {
		t.Errorf("close err = %v, want pool drained", err)
	}
	if err := scope.Close(); err != nil {
		t.Errorf("second close err = %v, want nil", err)
	}
	if h.closed != 1 {
		t.Errorf("handler closed %d times, want 1", h.closed)
	}
	if _, err := scope.Resolve("plain"); err == nil {
		t.Error("expected resolve on closed scope to fail")
	}
}

func TestHandlerFuncsDefaults(t *testing.T) {
	var h HandlerFuncs
	ok, err := h.CanHandle(context.Background(), Update{})
	if !ok || err != nil {
		t.Errorf("CanHandle = %v, %v; want true, nil", ok, err)
	}
	if err := h.Handle(context.Background(), Update{}, nil); err != nil {
		t.Errorf("Handle = %v, want nil", err)
	}
}
