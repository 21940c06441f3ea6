package core

// Router is a Sink that invokes callbacks inline on the poller goroutine, one
// per update kind. It is the queue-less alternative to Dispatcher for bots that
// only need simple reactions. Callbacks must not block for long since the next
// fetch waits for them.
type Router struct {
	OnUpdate             func(u Update)
	OnMessage            func(u Update)
	OnEditedMessage      func(u Update)
	OnInlineQuery        func(u Update)
	OnChosenInlineResult func(u Update)
	OnCallbackQuery      func(u Update)
}

// Enqueue calls OnUpdate, then the callback matching the update's kind.
func (r *Router) Enqueue(u Update) {
	if r.OnUpdate != nil {
		r.OnUpdate(u)
	}

	var fn func(Update)
	switch u.Kind() {
	case KindMessage:
		fn = r.OnMessage
	case KindEditedMessage:
		fn = r.OnEditedMessage
	case KindInlineQuery:
		fn = r.OnInlineQuery
	case KindChosenInlineResult:
		fn = r.OnChosenInlineResult
	case KindCallbackQuery:
		fn = r.OnCallbackQuery
	}
	if fn != nil {
		fn(u)
	}
}
