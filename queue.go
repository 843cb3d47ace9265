package mtcore

import (
	"sync"
	"time"
)

// queueRecord is the node-local record for a queue: a single job's
// FIFO front end, with the ordered/disabled admission policy of
// spec.md §4.6.
type queueRecord struct {
	job   JobHandle
	attrs QueueAttributes

	mu       sync.Mutex
	enabled  bool
	holder   *Task   // task currently occupying the ordered slot, nil if none
	retained []*Task // FIFO, admitted in arrival order
	inflight map[*Task]struct{}

	id, tag uint32
}

func (q *queueRecord) handle() QueueHandle { return QueueHandle{Handle{q.id, q.tag}} }

// CreateQueue binds a new queue to job, enabled immediately.
func (n *Node) CreateQueue(job JobHandle, attrs QueueAttributes) (QueueHandle, error) {
	if _, err := n.jobEntry(job); err != nil {
		return QueueHandle{}, err
	}
	id, tag, q, ok := n.queues.Allocate()
	if !ok {
		return QueueHandle{}, ErrQueueLimit
	}
	q.id, q.tag = id, tag
	q.job = job
	q.attrs = attrs
	q.enabled = true
	q.holder = nil
	q.retained = nil
	q.inflight = make(map[*Task]struct{})
	return q.handle(), nil
}

func (n *Node) queueRecordOf(h QueueHandle) (*queueRecord, error) {
	q, ok := n.queues.Get(h.h.id, h.h.tag)
	if !ok {
		return nil, ErrQueueInvalid
	}
	return q, nil
}

// Spawn creates a task bound to queue's job, per spec.md §4.6: if the
// queue is disabled, or it is ordered and already has a task executing,
// the new task is RETAINED; otherwise it is admitted and scheduled
// immediately, intersecting the queue's affinity with the task's.
func (n *Node) Spawn(qh QueueHandle, args, result []byte, attrs TaskAttributes, group GroupHandle) (TaskHandle, error) {
	q, err := n.queueRecordOf(qh)
	if err != nil {
		return TaskHandle{}, err
	}
	attrs = attrs.WithAffinity(attrs.Affinity.Intersect(q.attrs.Affinity))
	attrs = attrs.WithPriority(q.attrs.Priority)

	t, err := n.newTask(q.job, args, result, attrs, group, qh)
	if err != nil {
		return TaskHandle{}, err
	}

	q.mu.Lock()
	admit := q.enabled && !(q.attrs.Ordered && q.holder != nil)
	if admit {
		if q.attrs.Ordered {
			q.holder = t
		}
		q.inflight[t] = struct{}{}
	} else {
		t.state.Store(int32(TaskRetained))
		q.retained = append(q.retained, t)
	}
	q.mu.Unlock()

	if admit {
		if err := n.sched.dispatch(t); err != nil {
			n.abandonTask(t, group, qh, err)
			return TaskHandle{}, err
		}
	}
	return t.handle(), nil
}

// popRetained removes and returns the head of the retention buffer, or
// nil if it is empty. EnableQueue on an ordered queue and the
// ordered-queue completion path use it to pick the one task to admit
// next.
func (q *queueRecord) popRetained() *Task {
	if len(q.retained) == 0 {
		return nil
	}
	t := q.retained[0]
	q.retained = q.retained[1:]
	return t
}

// onQueueMemberFinished is invoked by the scheduler at every terminal
// transition of a task that belongs to a queue. It only releases and
// promotes the ordered slot when t is the task actually holding it: a
// RETAINED task cancelled by DisableQueue(.., Retain:false) also belongs
// to the queue and reaches this function, but it never held the slot, so
// it must not be allowed to promote a new task while the genuinely
// admitted task is still running.
func (n *Node) onQueueMemberFinished(qh QueueHandle, t *Task) {
	q, err := n.queueRecordOf(qh)
	if err != nil {
		return
	}
	q.mu.Lock()
	delete(q.inflight, t)
	var next *Task
	if q.attrs.Ordered && q.holder == t {
		q.holder = nil
		if q.enabled {
			if n2 := q.popRetained(); n2 != nil {
				q.holder = n2
				q.inflight[n2] = struct{}{}
				next = n2
			}
		}
	}
	q.mu.Unlock()
	if next != nil {
		next.state.Store(int32(TaskScheduled))
		if err := n.sched.dispatch(next); err != nil {
			n.abandonTask(next, next.group, qh, err)
		}
	}
}

// EnableQueue sets the enabled flag and promotes retained tasks to
// SCHEDULED in FIFO order. An unordered queue promotes every retained
// task; an ordered queue promotes only the head, and only if no task
// holds its ordered slot — the rest stay retained and are admitted one
// at a time as each holder finishes.
func (n *Node) EnableQueue(h QueueHandle) error {
	q, err := n.queueRecordOf(h)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.enabled = true
	var toRun []*Task
	if q.attrs.Ordered {
		if q.holder == nil {
			if t := q.popRetained(); t != nil {
				q.holder = t
				q.inflight[t] = struct{}{}
				toRun = append(toRun, t)
			}
		}
	} else {
		toRun = append(toRun, q.retained...)
		for _, t := range toRun {
			q.inflight[t] = struct{}{}
		}
		q.retained = nil
	}
	q.mu.Unlock()

	for _, t := range toRun {
		t.state.Store(int32(TaskScheduled))
		if err := n.sched.dispatch(t); err != nil {
			n.abandonTask(t, t.group, h, err)
		}
	}
	return nil
}

// DisableQueue atomically clears the enabled flag, then resolves every
// currently-retained task per spec.md §4.6: cancelled if the queue's
// Retain attribute is false, left retained otherwise. Tasks already
// admitted (SCHEDULED/RUNNING) are marked for cooperative cancellation
// but not preempted; DisableQueue waits up to timeout for them to drain
// before returning, purely as a convenience (it does not need to — the
// flag flip itself is synchronous).
func (n *Node) DisableQueue(h QueueHandle, timeout time.Duration) error {
	q, err := n.queueRecordOf(h)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.enabled = false
	var toCancel []*Task
	if !q.attrs.Retain {
		toCancel = q.retained
		q.retained = nil
	}
	var inflight []*Task
	for t := range q.inflight {
		inflight = append(inflight, t)
	}
	q.mu.Unlock()

	for _, t := range toCancel {
		n.finalizeTask(t, TaskCancelled, ErrActionCancelled)
	}
	for _, t := range inflight {
		t.cancelRequested.Store(true)
	}

	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		remaining := len(q.inflight)
		q.mu.Unlock()
		if remaining == 0 {
			return nil
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			n.logger.Warn("queue disable timed out waiting for in-flight tasks",
				"queue", h.h.id, "job", q.job.h.id, "remaining", remaining)
			return ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// DeleteQueue frees a queue's slot; it does not implicitly disable or
// drain it first — callers that need a clean shutdown call
// DisableQueue beforehand.
func (n *Node) DeleteQueue(h QueueHandle, timeout time.Duration) error {
	q, err := n.queueRecordOf(h)
	if err != nil {
		return err
	}
	_ = timeout
	n.queues.Release(q.id, q.tag)
	return nil
}
