package core

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Activator creates handler scopes. Each dispatch step acquires one scope and
// closes it when the step ends, whatever the outcome.
type Activator interface {
	BeginScope() Scope
}

// Scope resolves handler instances for a single dispatch step.
type Scope interface {
	Resolve(id HandlerID) (Handler, error)
	Close() error
}

// FactoryActivator resolves handlers from registered factories, building a
// fresh instance on every Resolve.
type FactoryActivator struct {
	mu        sync.RWMutex
	factories map[HandlerID]HandlerFactory
}

// NewFactoryActivator creates an activator with no factories.
func NewFactoryActivator() *FactoryActivator {
	return &FactoryActivator{
		factories: make(map[HandlerID]HandlerFactory),
	}
}

// Provide registers the factory for id.
func (a *FactoryActivator) Provide(id HandlerID, factory HandlerFactory) error {
	if factory == nil {
		return fmt.Errorf("handler %q: nil factory", id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.factories[id]; exists {
		return fmt.Errorf("handler %q already provided", id)
	}
	a.factories[id] = factory
	return nil
}

// Activate builds a new instance of the handler registered as id.
func (a *FactoryActivator) Activate(id HandlerID) (Handler, error) {
	a.mu.RLock()
	factory, ok := a.factories[id]
	a.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("handler %q not provided", id)
	}
	h := factory()
	if h == nil {
		return nil, fmt.Errorf("handler %q: factory returned nil", id)
	}
	return h, nil
}

// BeginScope returns a scope that closes every resolved handler implementing
// io.Closer when it is closed.
func (a *FactoryActivator) BeginScope() Scope {
	return &factoryScope{activator: a}
}

type factoryScope struct {
	activator *FactoryActivator

	mu       sync.Mutex
	closed   bool
	resolved []Handler
}

func (s *factoryScope) Resolve(id HandlerID) (Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("scope closed")
	}

	h, err := s.activator.Activate(id)
	if err != nil {
		return nil, err
	}
	s.resolved = append(s.resolved, h)
	return h, nil
}

func (s *factoryScope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var result *multierror.Error
	for _, h := range s.resolved {
		if c, ok := h.(io.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	s.resolved = nil
	return result.ErrorOrNil()
}
