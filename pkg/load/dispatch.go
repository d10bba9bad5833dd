package load

import "sync"

// Dispatcher marshals functions onto the designated observing context.
// State mutations and observer notifications all run through one Dispatcher
// so observers never see torn field combinations.
type Dispatcher interface {
	Dispatch(fn func())
}

// SerialQueue is the production Dispatcher: a single goroutine draining an
// unbounded FIFO. Unbounded on purpose: observers run on the queue goroutine
// and may themselves dispatch, so a bounded queue could deadlock.
type SerialQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	stopped chan struct{}
}

// NewSerialQueue starts the queue goroutine.
func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{
		stopped: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *SerialQueue) run() {
	defer close(q.stopped)

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn()
	}
}

// Dispatch enqueues fn for asynchronous execution on the queue goroutine.
// After Close, fn is dropped.
func (q *SerialQueue) Dispatch(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, fn)
	q.cond.Signal()
	q.mu.Unlock()
}

// Sync blocks until everything dispatched before it has run. Returns
// immediately when the queue is closed.
func (q *SerialQueue) Sync() {
	done := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, func() { close(done) })
	q.cond.Signal()
	q.mu.Unlock()

	select {
	case <-done:
	case <-q.stopped:
	}
}

// Close drains already-queued work and stops the goroutine. Idempotent.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()

	<-q.stopped
}

// inlineDispatcher runs functions on the calling goroutine. Used by tests
// and callers that already serialize externally.
type inlineDispatcher struct{}

func (inlineDispatcher) Dispatch(fn func()) { fn() }

// InlineDispatcher returns a Dispatcher that executes synchronously on the
// caller's goroutine.
func InlineDispatcher() Dispatcher { return inlineDispatcher{} }
