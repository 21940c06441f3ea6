package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// scriptedFetcher answers the n-th GetUpdates call with script[n]. Once the
// script is exhausted it blocks until the context is cancelled, like a long
// poll with nothing pending.
type scriptedFetcher struct {
	mu     sync.Mutex
	reqs   []GetUpdatesRequest
	script []func() ([]Update, error)
}

func (f *scriptedFetcher) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	n := len(f.reqs) - 1
	f.mu.Unlock()

	if n < len(f.script) {
		return f.script[n]()
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *scriptedFetcher) requests() []GetUpdatesRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]GetUpdatesRequest, len(f.reqs))
	copy(out, f.reqs)
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	updates []Update
}

func (s *recordingSink) Enqueue(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *recordingSink) ids() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, len(s.updates))
	for i, u := range s.updates {
		ids[i] = u.ID
	}
	return ids
}

// spyHandler records calls and answers with fixed results.
type spyHandler struct {
	mu         sync.Mutex
	claim      bool
	matchErr   error
	handleErr  error
	panicMatch bool
	matched    []int64
	handled    []int64
}

func (h *spyHandler) CanHandle(_ context.Context, u Update) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.matched = append(h.matched, u.ID)
	if h.panicMatch {
		panic("boom")
	}
	return h.claim, h.matchErr
}

func (h *spyHandler) Handle(_ context.Context, u Update, _ Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, u.ID)
	return h.handleErr
}

func (h *spyHandler) counts() (matched, handled int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.matched), len(h.handled)
}

// resultSink collects dispatch results from the observer.
type resultSink struct {
	ch chan DispatchResult
}

func newResultSink() *resultSink {
	return &resultSink{ch: make(chan DispatchResult, 64)}
}

func (r *resultSink) ObserveDispatch(res DispatchResult) {
	r.ch <- res
}

func (r *resultSink) next(t *testing.T) DispatchResult {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no dispatch result")
		return DispatchResult{}
	}
}

func textUpdate(id int64, text string) Update {
	return Update{
		ID: id,
		Message: &Message{
			MessageID: id,
			Chat:      Chat{ID: 100},
			Date:      time.Now().Unix(),
			Text:      text,
		},
	}
}
