package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultPollTimeout = 30 * time.Second

// ErrAlreadyReceiving is returned by Start while the poll loop is running.
var ErrAlreadyReceiving = errors.New("poller already receiving")

// StartOptions selects where and how the poll loop starts.
type StartOptions struct {
	// Offset resets the cursor when non-zero. Zero resumes from the last
	// cursor value.
	Offset int64
	// Limit caps the batch size. Zero lets the server choose.
	Limit int
	// AllowedUpdates restricts the update kinds the server returns. Nil keeps
	// the server's current setting.
	AllowedUpdates []UpdateKind
}

// Poller long-polls a Fetcher and feeds every update into a Sink, advancing
// its offset past each update before handing it on.
type Poller struct {
	fetcher Fetcher
	sink    Sink
	logger  *slog.Logger

	timeout        time.Duration
	newBackOff     func() backoff.BackOff
	onRequestError func(*RequestError)
	onGeneralError func(error)
	onBatch        func(n int)

	offset    atomic.Int64
	receiving atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithTimeout sets the long-poll timeout passed to the fetcher. It is sent in
// whole seconds.
func WithTimeout(timeout time.Duration) PollerOption {
	return func(p *Poller) { p.timeout = timeout }
}

// WithBackOff sets the policy used to pause after a failed fetch. The factory
// is called once per Start since BackOff values are stateful.
func WithBackOff(newBackOff func() backoff.BackOff) PollerOption {
	return func(p *Poller) { p.newBackOff = newBackOff }
}

// WithRequestErrorHandler is called when the remote API rejects a fetch.
func WithRequestErrorHandler(fn func(*RequestError)) PollerOption {
	return func(p *Poller) { p.onRequestError = fn }
}

// WithGeneralErrorHandler is called for any other fetch failure.
func WithGeneralErrorHandler(fn func(error)) PollerOption {
	return func(p *Poller) { p.onGeneralError = fn }
}

// WithBatchObserver is called with the size of every successful fetch.
func WithBatchObserver(fn func(n int)) PollerOption {
	return func(p *Poller) { p.onBatch = fn }
}

// NewPoller creates an idle Poller.
func NewPoller(fetcher Fetcher, sink Sink, logger *slog.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:    fetcher,
		sink:       sink,
		logger:     logger,
		timeout:    defaultPollTimeout,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.onRequestError == nil {
		p.onRequestError = func(err *RequestError) {
			p.logger.Error("getUpdates rejected", "code", err.Code, "description", err.Description, "unauthorized", err.Unauthorized())
		}
	}
	if p.onGeneralError == nil {
		p.onGeneralError = func(err error) {
			p.logger.Error("getUpdates failed", "error", err)
		}
	}
	return p
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}

// IsReceiving reports whether the poll loop is running.
func (p *Poller) IsReceiving() bool {
	return p.receiving.Load()
}

// Offset returns the next update id the poller will ask for.
func (p *Poller) Offset() int64 {
	return p.offset.Load()
}

// Start launches the poll loop and returns immediately. The loop runs until
// Stop is called or ctx is cancelled.
func (p *Poller) Start(ctx context.Context, opts StartOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.receiving.Load() {
		return ErrAlreadyReceiving
	}
	if opts.Offset != 0 {
		p.offset.Store(opts.Offset)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.receiving.Store(true)

	go func() {
		defer close(done)
		defer cancel()
		defer p.receiving.Store(false)
		p.receive(loopCtx, opts)
	}()
	return nil
}

// Stop asks the poll loop to exit. Updates already handed to the sink are not
// affected.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
}

// Done returns a channel closed when the current poll loop exits. Before the
// first Start it returns a closed channel.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.done
}

// Wait blocks until the poll loop exits or ctx is done.
func (p *Poller) Wait(ctx context.Context) error {
	select {
	case <-p.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for poller: %w", ctx.Err())
	}
}

func (p *Poller) receive(ctx context.Context, opts StartOptions) {
	p.logger.Info("poller started", "offset", p.Offset(), "limit", opts.Limit)
	defer p.logger.Info("poller stopped", "offset", p.Offset())

	bo := p.newBackOff()
	timeout := int(p.timeout / time.Second)

	for ctx.Err() == nil {
		updates, err := p.fetcher.GetUpdates(ctx, GetUpdatesRequest{
			Offset:         p.Offset(),
			Limit:          opts.Limit,
			Timeout:        timeout,
			AllowedUpdates: opts.AllowedUpdates,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !p.pause(ctx, bo.NextBackOff(), p.report(err)) {
				return
			}
			continue
		}
		bo.Reset()

		if p.onBatch != nil {
			p.onBatch(len(updates))
		}
		for _, u := range updates {
			p.offset.Store(u.ID + 1)
			p.sink.Enqueue(u)
		}
	}
}

// report routes err to the matching callback and returns the server-requested
// delay, if any.
func (p *Poller) report(err error) time.Duration {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		p.onRequestError(reqErr)
		return time.Duration(reqErr.RetryAfter) * time.Second
	}
	p.onGeneralError(err)
	return 0
}

// pause sleeps for the longer of the two delays. It returns false if ctx was
// cancelled first.
func (p *Poller) pause(ctx context.Context, next, retryAfter time.Duration) bool {
	if next == backoff.Stop {
		next = 0
	}
	delay := max(next, retryAfter)
	if delay <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
