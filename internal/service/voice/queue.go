package voice

import (
	"log"
	"sync"
)

// eventQueue delivers events to a single subscriber in order without ever
// blocking the publisher. When the buffer is full, droppable events are
// discarded and the rest wait in an overflow drained by one goroutine.
type eventQueue[T any] struct {
	ch chan T

	mu       sync.Mutex
	overflow []T
	flushing bool
}

func newEventQueue[T any](size int) *eventQueue[T] {
	return &eventQueue[T]{ch: make(chan T, size)}
}

func (q *eventQueue[T]) push(ev T, droppable bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.flushing {
		select {
		case q.ch <- ev:
			return
		default:
		}
	}
	if droppable {
		log.Printf("[voice] event buffer full, dropping preview")
		return
	}
	q.overflow = append(q.overflow, ev)
	if !q.flushing {
		q.flushing = true
		go q.flush()
	}
}

// flush keeps the head of the overflow queued until it is delivered so that
// push never overtakes it.
func (q *eventQueue[T]) flush() {
	for {
		q.mu.Lock()
		if len(q.overflow) == 0 {
			q.flushing = false
			q.overflow = nil
			q.mu.Unlock()
			return
		}
		ev := q.overflow[0]
		q.mu.Unlock()

		q.ch <- ev

		q.mu.Lock()
		q.overflow = q.overflow[1:]
		q.mu.Unlock()
	}
}
