package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// workerPool bounds concurrent task execution with a fixed slot count.
// There is no queuing inside the pool; trySubmit fails immediately when all
// slots are taken and the admission queue keeps the overflow.
type workerPool struct {
	slots       chan struct{}
	freed       chan struct{}
	outstanding atomic.Int64
	closed      atomic.Bool
	drained     chan struct{}
	drainOnce   sync.Once
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{
		slots:   make(chan struct{}, size),
		freed:   make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
}

// trySubmit runs task on its own goroutine if a slot is free. The slot is
// released when the task returns, success or failure alike.
func (p *workerPool) trySubmit(task func()) bool {
	select {
	case p.slots <- struct{}{}:
	default:
		return false
	}

	p.outstanding.Add(1)
	go func() {
		defer p.release()
		task()
	}()
	return true
}

func (p *workerPool) release() {
	<-p.slots
	if p.outstanding.Add(-1) == 0 && p.closed.Load() {
		p.drainOnce.Do(func() { close(p.drained) })
	}

	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// hasFreeSlot reports whether a submission would currently be accepted.
// Only the dispatcher loop submits, so a true result stays valid until the
// loop acts on it.
func (p *workerPool) hasFreeSlot() bool {
	return len(p.slots) < cap(p.slots)
}

// inFlight reports the number of outstanding tasks.
func (p *workerPool) inFlight() int64 {
	return p.outstanding.Load()
}

// freedCh is signaled whenever a slot is released.
func (p *workerPool) freedCh() <-chan struct{} {
	return p.freed
}

// close marks the pool as draining. No check stops further submissions;
// the dispatcher loop has already stopped by the time close is called.
func (p *workerPool) close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	if p.outstanding.Load() == 0 {
		p.drainOnce.Do(func() { close(p.drained) })
	}
}

// awaitDrain blocks until every outstanding task has finished or the
// context expires. A drain that already completed wins over a context that
// expired at the same instant.
func (p *workerPool) awaitDrain(ctx context.Context) error {
	select {
	case <-p.drained:
		return nil
	default:
	}

	select {
	case <-p.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
