package core

import (
	"context"
	"fmt"
	"net/http"
)

// GetUpdatesRequest carries the arguments of one long-poll fetch.
type GetUpdatesRequest struct {
	Offset         int64
	Limit          int
	Timeout        int // seconds the server may hold the request open
	AllowedUpdates []UpdateKind
}

// Fetcher retrieves a batch of updates, blocking server-side for up to
// req.Timeout seconds when none are pending.
type Fetcher interface {
	GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error)
}

// Client is the remote API surface handed to handlers.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
}

// Sink accepts fetched updates in order.
type Sink interface {
	Enqueue(u Update)
}

// RequestError is returned when the remote API rejects a request.
type RequestError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int // seconds, set on 429 responses
}

func (e *RequestError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("api error %d: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("%s: api error %d: %s", e.Method, e.Code, e.Description)
}

// Unauthorized reports whether the bot token was rejected. A malformed token
// yields 404 because the bot path does not resolve.
func (e *RequestError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusNotFound
}

// TooManyRequests reports whether the server asked the client to slow down.
func (e *RequestError) TooManyRequests() bool {
	return e.Code == http.StatusTooManyRequests
}
