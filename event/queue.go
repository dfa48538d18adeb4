package event

import "sync"

// Queue is the single-consumer FIFO between the network producers and the
// processing loop.  Enqueue never blocks: bursts grow the backlog instead of
// applying backpressure to the socket readers.  Events are delivered in the
// exact order enqueued and are never dropped.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []Event
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends ev to the backlog.  Events enqueued after Close are
// discarded.
func (q *Queue) Enqueue(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.events = append(q.events, ev)
	q.cond.Signal()
}

// Dequeue blocks until an event is available and returns it.  It returns
// ok == false once the queue is closed and drained.
func (q *Queue) Dequeue() (ev Event, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.events) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.events) == 0 {
		return Event{}, false
	}
	ev = q.events[0]
	q.events = q.events[1:]
	return ev, true
}

// Len reports the current backlog size.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close wakes the consumer; already-enqueued events are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
