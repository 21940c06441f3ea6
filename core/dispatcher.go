package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// Dispatcher queues updates and runs each through the registered handler
// chain on its own goroutine. The first handler that claims an update wins.
type Dispatcher struct {
	client    Client
	activator Activator
	observer  Observer
	logger    *slog.Logger

	handlerTimeout time.Duration
	sem            *semaphore.Weighted

	mu       sync.RWMutex
	handlers []HandlerID

	queue     *updateQueue
	closeOnce sync.Once
	consumed  chan struct{}
	inflight  sync.WaitGroup
	drainOnce sync.Once
	drained   chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithActivator sets how handler instances are resolved. Defaults to an empty
// FactoryActivator.
func WithActivator(a Activator) DispatcherOption {
	return func(d *Dispatcher) { d.activator = a }
}

// WithObserver sets the dispatch outcome observer. Defaults to a LogObserver.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// WithHandlerTimeout gives each handler step (resolve, CanHandle, Handle) its
// own deadline, so a handler that runs out of time does not starve the ones
// after it. Zero means none.
func WithHandlerTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.handlerTimeout = timeout }
}

// WithMaxInFlight caps the number of concurrently running dispatches. Zero or
// negative leaves it unbounded.
func WithMaxInFlight(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(int64(n))
		} else {
			d.sem = nil
		}
	}
}

// NewDispatcher creates a Dispatcher and starts its consumer goroutine.
func NewDispatcher(client Client, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		client:   client,
		logger:   logger,
		queue:    newUpdateQueue(),
		consumed: make(chan struct{}),
		drained:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.activator == nil {
		d.activator = NewFactoryActivator()
	}
	if d.observer == nil {
		d.observer = LogObserver{Logger: logger}
	}

	go d.consume()
	return d
}

// AddHandler appends id to the handler chain. Handlers are tried in the order
// they were added. Updates already dequeued keep the chain they started with.
func (d *Dispatcher) AddHandler(id HandlerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, id)
}

// Handlers returns a copy of the handler chain.
func (d *Dispatcher) Handlers() []HandlerID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]HandlerID, len(d.handlers))
	copy(out, d.handlers)
	return out
}

// Enqueue queues u for dispatch. It never blocks. After Close the update is
// dropped.
func (d *Dispatcher) Enqueue(u Update) {
	if !d.queue.push(u) {
		d.logger.Debug("dispatcher closed, dropping update", "update_id", u.ID)
	}
}

// Len reports the number of queued updates not yet picked up.
func (d *Dispatcher) Len() int {
	return d.queue.len()
}

// Close stops accepting updates. Queued updates are still dispatched and the
// consumer exits once the queue is empty. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(d.queue.close)
}

// Wait blocks until the consumer has exited and every dispatch it started has
// finished, or ctx is done. Repeated calls share one watcher goroutine.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.drainOnce.Do(func() {
		go func() {
			<-d.consumed
			d.inflight.Wait()
			close(d.drained)
		}()
	})

	select {
	case <-d.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for dispatches: %w", ctx.Err())
	}
}

// Shutdown closes the dispatcher and waits for in-flight dispatches.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.Close()
	return d.Wait(ctx)
}

func (d *Dispatcher) consume() {
	defer close(d.consumed)

	for {
		u, ok := d.queue.pop()
		if !ok {
			return
		}

		if d.sem != nil {
			// Acquire cannot fail with a background context.
			_ = d.sem.Acquire(context.Background(), 1)
		}

		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			if d.sem != nil {
				defer d.sem.Release(1)
			}
			d.dispatch(u)
		}()
	}
}

// Dispatch runs u through the handler chain on the calling goroutine and
// returns the outcome. The observer is notified as well.
func (d *Dispatcher) Dispatch(ctx context.Context, u Update) DispatchResult {
	start := time.Now()
	result := DispatchResult{UnitID: uuid.NewString(), Update: u}

	var failures *multierror.Error
	for _, id := range d.Handlers() {
		claimed, err := d.try(ctx, id, u)
		if err != nil {
			failures = multierror.Append(failures, fmt.Errorf("handler %s: %w", id, err))
			continue
		}
		if claimed {
			result.HandledBy = id
			break
		}
	}

	result.Err = failures.ErrorOrNil()
	result.Duration = time.Since(start)
	d.observer.ObserveDispatch(result)
	return result
}

func (d *Dispatcher) dispatch(u Update) {
	d.Dispatch(context.Background(), u)
}

// try evaluates a single handler inside its own scope and, when configured,
// its own deadline. It reports whether the handler claimed and handled the
// update. Panics are converted to errors.
func (d *Dispatcher) try(ctx context.Context, id HandlerID, u Update) (claimed bool, err error) {
	if d.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.handlerTimeout)
		defer cancel()
	}

	scope := d.activator.BeginScope()
	defer func() {
		if r := recover(); r != nil {
			claimed = false
			err = fmt.Errorf("panic: %v", r)
		}
		if cerr := scope.Close(); cerr != nil {
			d.logger.Warn("close handler scope", "handler", id, "error", cerr)
		}
	}()

	h, err := scope.Resolve(id)
	if err != nil {
		return false, fmt.Errorf("resolve: %w", err)
	}

	ok, err := h.CanHandle(ctx, u)
	if err != nil {
		return false, fmt.Errorf("can handle: %w", err)
	}
	if !ok {
		return false, nil
	}

	if err := h.Handle(ctx, u, d.client); err != nil {
		return false, fmt.Errorf("handle: %w", err)
	}
	return true, nil
}
