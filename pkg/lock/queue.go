package lock

import (
	"sync"
)

// eventQueue is an unbounded, ordered hand-off between the goroutine reading signals and the
// goroutine running the callback.
// push never blocks, so a slow callback cannot stall the signal reader.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	// wake has a buffer of one so that a push between two drain iterations is never missed.
	wake chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		wake: make(chan struct{}, 1),
	}
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, e)
	q.mu.Unlock()

	q.notify()
}

// close marks the end of the stream. Events pushed before close are still handed to drain.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.notify()
}

func (q *eventQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain calls handle for every pushed event, in push order, until the queue is closed and empty or
// stop is closed. Events still queued when stop is closed are dropped.
func (q *eventQueue) drain(stop <-chan struct{}, handle func(Event)) {
	for {
		q.mu.Lock()
		events := q.events
		q.events = nil
		closed := q.closed
		q.mu.Unlock()

		for _, e := range events {
			select {
			case <-stop:
				return
			default:
			}

			handle(e)
		}

		if closed {
			if len(events) == 0 {
				return
			}
			continue
		}

		select {
		case <-q.wake:
		case <-stop:
			return
		}
	}
}
