package readiness

import "sync"

type queuedEvent struct {
	event     Event
	sessionID string
}

// eventQueue is an unbounded FIFO between the loop and the hook dispatcher.
// The loop never blocks on a slow hook.
type eventQueue struct {
	mu      sync.Mutex
	pending []queuedEvent
	signal  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(e queuedEvent) {
	q.mu.Lock()
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []queuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

func (q *eventQueue) dispatch(done <-chan struct{}, hooks Hooks) {
	for {
		select {
		case <-done:
			return
		case <-q.signal:
			for _, e := range q.drain() {
				hooks.fire(e.event, e.sessionID)
			}
		}
	}
}
