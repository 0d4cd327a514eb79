package timer

import "context"

// EventQueue is the output side of a Timer: a thread-safe FIFO that
// supports the one operation the original heap-timer design needs beyond
// plain send/receive — deleting a specific, already-queued value before a
// consumer gets to it. Timer.Stop uses this to race against its own
// watcher: if the timer already elapsed and published its data, Stop can
// still win by pulling the value back out before anyone reads it.
type EventQueue struct {
	mu     chan struct{} // binary semaphore; avoids importing sync for one field
	items  []any
	signal chan struct{}
}

// NewEventQueue returns an empty, ready-to-use queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{
		mu:     make(chan struct{}, 1),
		signal: make(chan struct{}, 1),
	}
	q.mu <- struct{}{}
	return q
}

func (q *EventQueue) lock()   { <-q.mu }
func (q *EventQueue) unlock() { q.mu <- struct{}{} }

func (q *EventQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Send appends v to the queue and wakes one waiting receiver.
func (q *EventQueue) Send(v any) {
	q.lock()
	q.items = append(q.items, v)
	q.unlock()
	q.notify()
}

// Recv blocks until an item is available or ctx is done.
func (q *EventQueue) Recv(ctx context.Context) (any, bool) {
	for {
		q.lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items = q.items[1:]
			q.unlock()
			return v, true
		}
		q.unlock()
		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// DeleteEqual removes the first queued item equal to v, if any is still
// present, and reports whether one was removed. Comparison is by Go's
// built-in equality, matching the original's pointer-identity delete.
func (q *EventQueue) DeleteEqual(v any) bool {
	q.lock()
	defer q.unlock()
	for i, item := range q.items {
		if item == v {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}
