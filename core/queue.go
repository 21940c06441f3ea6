package core

import "sync"

// updateQueue is an unbounded FIFO for one producer and one consumer.
// After close, push is a no-op and pop drains what remains before reporting
// exhaustion.
type updateQueue struct {
	mu     sync.Mutex
	items  []Update
	closed bool
	ready  chan struct{}
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{ready: make(chan struct{}, 1)}
}

// push appends u and reports whether it was accepted.
func (q *updateQueue) push(u Update) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, u)
	q.mu.Unlock()

	q.wake()
	return true
}

// pop blocks until an update is available or the queue is closed and empty.
func (q *updateQueue) pop() (Update, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			u := q.items[0]
			q.items[0] = Update{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return u, true
		}
		if q.closed {
			q.mu.Unlock()
			return Update{}, false
		}
		q.mu.Unlock()

		<-q.ready
	}
}

func (q *updateQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

func (q *updateQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *updateQueue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
