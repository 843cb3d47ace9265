package mtcore

import (
	"sync"
	"sync/atomic"
	"time"
)

// priorityFIFO is one intrusive singly-linked queue: taskEntry.next is
// the list linkage itself, so enqueue never allocates a container node.
type priorityFIFO struct {
	head, tail *taskEntry
}

func (q *priorityFIFO) pushBack(e *taskEntry) {
	e.next = nil
	if q.tail == nil {
		q.head, q.tail = e, e
		return
	}
	q.tail.next = e
	q.tail = e
}

func (q *priorityFIFO) popFront() *taskEntry {
	e := q.head
	if e == nil {
		return nil
	}
	q.head = e.next
	if q.head == nil {
		q.tail = nil
	}
	e.next = nil
	return e
}

// workerContext is one worker goroutine's execution state: its own
// per-priority run queues, a wake condition, and the persistent scratch
// map TaskContext.WorkerLocal exposes.
//
// queues is the stealable front end external dispatch and the scheduler's
// load-balancing land on; private is fed exclusively by this worker's own
// nested TaskContext.StartTask calls and is never visited by steal — a
// neighbour running short of work must not be able to pull a task a
// worker spawned for itself out from under it.
type workerContext struct {
	sched *scheduler
	index int

	mu      sync.Mutex
	cond    *sync.Cond
	queues  []priorityFIFO
	private []priorityFIFO
	pending int

	stop atomic.Bool

	scratch sync.Map
}

func newWorkerContext(s *scheduler, index, priorities int) *workerContext {
	if priorities < 1 {
		priorities = 1
	}
	w := &workerContext{
		sched:   s,
		index:   index,
		queues:  make([]priorityFIFO, priorities),
		private: make([]priorityFIFO, priorities),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *workerContext) localScratch() *sync.Map { return &w.scratch }

func (w *workerContext) load() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

func clampPriority(p, n int) int {
	if p < 0 {
		return 0
	}
	if p >= n {
		return n - 1
	}
	return p
}

// enqueue appends entry to the stealable queue at priority and wakes the
// worker if it is parked.
func (w *workerContext) enqueue(e *taskEntry, priority int) {
	w.mu.Lock()
	w.queues[clampPriority(priority, len(w.queues))].pushBack(e)
	w.pending++
	w.mu.Unlock()
	w.cond.Signal()
}

// enqueuePrivate appends entry to this worker's private queue. Only
// called by this same worker's own goroutine, via TaskContext.StartTask's
// locality-biased nested spawn — never by an external caller or by
// another worker.
func (w *workerContext) enqueuePrivate(e *taskEntry, priority int) {
	w.mu.Lock()
	w.private[clampPriority(priority, len(w.private))].pushBack(e)
	w.pending++
	w.mu.Unlock()
	w.cond.Signal()
}

// popOwn pops this worker's own highest-priority (lowest-numbered)
// pending entry, non-blocking, checking the private queue ahead of the
// stealable one at each priority level.
func (w *workerContext) popOwn() *taskEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p := range w.queues {
		if e := w.private[p].popFront(); e != nil {
			w.pending--
			return e
		}
		if e := w.queues[p].popFront(); e != nil {
			w.pending--
			return e
		}
	}
	return nil
}

// steal takes one entry from this worker's stealable queues only; the
// private queue is never a steal target (spec.md §2/§4.3).
func (w *workerContext) steal() *taskEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p := range w.queues {
		if e := w.queues[p].popFront(); e != nil {
			w.pending--
			return e
		}
	}
	return nil
}

func (w *workerContext) requestStop() {
	w.stop.Store(true)
	w.cond.Broadcast()
}

// run is the worker goroutine: strict priority pull from its own
// queues, then a linear-scan steal, then a bounded park on its
// condition variable. It returns once requestStop has been called and
// both its own queues are empty.
func (w *workerContext) run() {
	w.sched.node.logger.Debug("worker start", "worker", w.index)
	defer w.sched.node.logger.Debug("worker stop", "worker", w.index)
	for {
		if e := w.popOwn(); e != nil {
			w.execute(e)
			continue
		}
		if w.sched.tryStealFor(w) {
			continue
		}
		w.mu.Lock()
		if w.pending == 0 && !w.stop.Load() {
			timer := time.AfterFunc(2*time.Millisecond, func() {
				w.mu.Lock()
				w.cond.Broadcast()
				w.mu.Unlock()
			})
			w.cond.Wait()
			timer.Stop()
		}
		stopping := w.stop.Load()
		idle := w.pending == 0
		w.mu.Unlock()
		if stopping && idle {
			return
		}
	}
}

func (w *workerContext) execute(e *taskEntry) {
	w.sched.node.runTaskEntry(w, e)
}
