package core

import "context"

// HandlerID names a handler in the dispatch chain.
type HandlerID string

// Handler may claim and process an update.
//
// CanHandle decides whether the handler claims the update. A returned error is
// treated as a decline. Handle runs only after a claim; an error from Handle
// passes the update on to the next handler in the chain.
type Handler interface {
	CanHandle(ctx context.Context, u Update) (bool, error)
	Handle(ctx context.Context, u Update, client Client) error
}

// HandlerFactory builds a fresh handler instance.
type HandlerFactory func() Handler

// HandlerFuncs adapts a pair of functions to the Handler interface.
type HandlerFuncs struct {
	Match func(ctx context.Context, u Update) (bool, error)
	Run   func(ctx context.Context, u Update, client Client) error
}

func (h HandlerFuncs) CanHandle(ctx context.Context, u Update) (bool, error) {
	if h.Match == nil {
		return true, nil
	}
	return h.Match(ctx, u)
}

func (h HandlerFuncs) Handle(ctx context.Context, u Update, client Client) error {
	if h.Run == nil {
		return nil
	}
	return h.Run(ctx, u, client)
}
