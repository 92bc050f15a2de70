package dispatch

import "sync"

// admissionQueue is a thread-safe unbounded FIFO of pending requests.
// Enqueue never blocks; saturation shows up as caller latency, never as a
// rejected submission, and only closing the queue rejects. A one-slot wake
// channel lets the dispatcher loop sleep until work arrives instead of
// polling.
type admissionQueue struct {
	mu     sync.Mutex
	items  []*pendingRequest
	closed bool
	wake   chan struct{}
}

func newAdmissionQueue() *admissionQueue {
	return &admissionQueue{
		wake: make(chan struct{}, 1),
	}
}

// enqueue appends a request and wakes the dispatcher loop. It reports false
// once the queue has been closed for shutdown, so a submission racing
// shutdown fails fast instead of sitting in a queue nobody drains.
func (q *admissionQueue) enqueue(pr *pendingRequest) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, pr)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// dequeue removes and returns the oldest request, or false when empty.
// It never blocks.
func (q *admissionQueue) dequeue() (*pendingRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	pr := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return pr, true
}

// closeAndDrain rejects future enqueues and returns everything that was
// still pending, in submission order.
func (q *admissionQueue) closeAndDrain() []*pendingRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	pending := q.items
	q.items = nil
	return pending
}

// len reports the number of queued requests.
func (q *admissionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// wakeCh is signaled whenever the queue gains work.
func (q *admissionQueue) wakeCh() <-chan struct{} {
	return q.wake
}
