package core

import (
	"log/slog"
	"time"
)

// DispatchResult describes how one update left the handler chain.
type DispatchResult struct {
	UnitID    string
	Update    Update
	HandledBy HandlerID // empty when no handler claimed the update
	Err       error     // failures from handlers that were skipped, if any
	Duration  time.Duration
}

// Handled reports whether a handler claimed the update.
func (r DispatchResult) Handled() bool {
	return r.HandledBy != ""
}

// Observer is notified once per dispatched update. It is called from dispatch
// goroutines and must be safe for concurrent use.
type Observer interface {
	ObserveDispatch(r DispatchResult)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(r DispatchResult)

func (f ObserverFunc) ObserveDispatch(r DispatchResult) { f(r) }

// Observers fans a result out to several observers in order.
type Observers []Observer

func (o Observers) ObserveDispatch(r DispatchResult) {
	for _, obs := range o {
		obs.ObserveDispatch(r)
	}
}

// LogObserver writes dispatch outcomes to a slog logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) ObserveDispatch(r DispatchResult) {
	attrs := []any{
		"unit_id", r.UnitID,
		"update_id", r.Update.ID,
		"kind", r.Update.Kind(),
		"duration", r.Duration,
	}
	if r.Err != nil {
		l.Logger.Warn("handler failures during dispatch", append(attrs, "handled_by", r.HandledBy, "error", r.Err)...)
	}
	if r.Handled() {
		l.Logger.Debug("update handled", append(attrs, "handled_by", r.HandledBy)...)
		return
	}
	l.Logger.Debug("update not claimed by any handler", attrs...)
}
