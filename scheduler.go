package mtcore

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// scheduler owns the node's worker pool and drives the dispatch and
// work-stealing policy of spec.md §4.3: a task instance goes to the
// calling worker when that worker is itself a legal candidate,
// otherwise to the legal worker with the fewest queued entries, ties
// broken round-robin; an idle or re-entrantly-blocked
// worker steals a single entry from its neighbours, scanned starting
// just past itself, before parking.
type scheduler struct {
	node      *Node
	workers   []*workerContext
	rrCounter atomic.Uint32
	eg        errgroup.Group
}

func newScheduler(n *Node, numWorkers, priorities int) *scheduler {
	s := &scheduler{node: n}
	s.workers = make([]*workerContext, numWorkers)
	for i := range s.workers {
		s.workers[i] = newWorkerContext(s, i, priorities)
	}
	return s
}

// start launches one goroutine per worker under an errgroup, so stop
// can join the whole pool with a single Wait instead of a per-worker
// done channel.
func (s *scheduler) start() {
	for _, w := range s.workers {
		w := w
		s.eg.Go(func() error {
			w.run()
			return nil
		})
	}
}

func (s *scheduler) stop() {
	for _, w := range s.workers {
		w.requestStop()
	}
	_ = s.eg.Wait()
}

// dispatch enqueues every instance of t, as an external (non-worker)
// caller.
func (s *scheduler) dispatch(t *Task) error {
	return s.dispatchFrom(t, nil)
}

// dispatchFrom enqueues every instance of t; caller is the workerContext
// requesting dispatch if it is itself a worker goroutine (enabling
// locality bias), or nil for an external caller. An instance that lands
// on the calling worker itself goes to that worker's private queue
// instead of its stealable one, so a neighbour can't steal a task a
// worker spawned for its own nested execution.
func (s *scheduler) dispatchFrom(t *Task, caller *workerContext) error {
	legal := t.attrs.Affinity
	if legal.IsEmpty() {
		return ErrAffinity
	}
	instances := int(t.instancesTodo.Load())
	for i := 0; i < instances; i++ {
		if caller != nil && legal.Test(caller.index) {
			caller.enqueuePrivate(&taskEntry{task: t, instance: i}, t.attrs.Priority)
			continue
		}
		w := s.pickWorker(legal)
		if w == nil {
			return ErrAffinity
		}
		w.enqueue(&taskEntry{task: t, instance: i}, t.attrs.Priority)
	}
	return nil
}

// pickWorker implements the load-balancing half of the selection rule
// described on scheduler: the legal worker with the fewest queued
// entries, ties broken round-robin. An entry a worker is currently
// executing is not counted in its load. The locality-bias half (an
// instance going to its own spawning worker) is handled in dispatchFrom
// before pickWorker is ever called.
func (s *scheduler) pickWorker(legal Affinity) *workerContext {
	var best *workerContext
	bestLoad := -1
	start := int(s.rrCounter.Add(1)) % len(s.workers)
	for off := 0; off < len(s.workers); off++ {
		i := (start + off) % len(s.workers)
		if !legal.Test(i) {
			continue
		}
		w := s.workers[i]
		load := w.load()
		if best == nil || load < bestLoad {
			best, bestLoad = w, load
		}
	}
	return best
}

// tryRunOne runs at most one pending entry on behalf of worker w,
// preferring its own queues and falling back to a single-round steal.
// It is the primitive that makes Wait/WaitAny/WaitAll re-entrant: a
// worker blocked waiting for a result keeps the pool productive instead
// of idling.
func (s *scheduler) tryRunOne(w *workerContext) bool {
	if e := w.popOwn(); e != nil {
		w.execute(e)
		return true
	}
	return s.tryStealFor(w)
}

func (s *scheduler) tryStealFor(w *workerContext) bool {
	for off := 1; off < len(s.workers); off++ {
		victim := s.workers[(w.index+off)%len(s.workers)]
		if e := victim.steal(); e != nil {
			s.node.logger.Debug("scheduler fallback to stealing", "worker", w.index, "victim", victim.index)
			w.execute(e)
			return true
		}
	}
	return false
}
