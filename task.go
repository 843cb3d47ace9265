package mtcore

import (
	"sync"
	"sync/atomic"
	"time"
)

// TaskState is a point in the task lifecycle state machine of
// spec.md §4.4: CREATED → SCHEDULED → RUNNING → {COMPLETED, CANCELLED,
// ERROR, DELETED}, with RETAINED as the adjunct state for ordered-queue
// and disabled-queue admission.
type TaskState int32

const (
	TaskCreated TaskState = iota
	TaskScheduled
	TaskRetained
	TaskRunning
	TaskCompleted
	TaskCancelled
	TaskError
	TaskDeleted
)

func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "CREATED"
	case TaskScheduled:
		return "SCHEDULED"
	case TaskRetained:
		return "RETAINED"
	case TaskRunning:
		return "RUNNING"
	case TaskCompleted:
		return "COMPLETED"
	case TaskCancelled:
		return "CANCELLED"
	case TaskError:
		return "ERROR"
	case TaskDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// ActionFunc is the signature every registered action implements: it
// receives a TaskContext plus the raw argument and result buffers, and
// reports its outcome via ctx.SetStatus (nil means success). It must
// not retain args/result beyond the call.
type ActionFunc func(ctx *TaskContext, args []byte, result []byte)

// Task is the runtime record for a single StartTask/Spawn invocation.
// It is allocated from the node's task slab and addressed externally
// only via TaskHandle.
type Task struct {
	node   *Node
	action ActionHandle
	job    JobHandle

	args   []byte
	result []byte

	attrs TaskAttributes
	group GroupHandle
	queue QueueHandle

	state           atomic.Int32
	currentInstance atomic.Int32
	instancesTodo   atomic.Int32
	cancelRequested atomic.Bool

	mu         sync.Mutex
	pendingErr error // set by TaskContext.SetStatus while RUNNING
	finalErr   error // the terminal error, fixed once state goes terminal
	done       chan struct{}
	waited     bool // Wait() already consumed (idempotent re-read still works)

	id, tag uint32 // this task's own slab handle, for building TaskHandle
}

func (t *Task) handle() TaskHandle { return TaskHandle{Handle{t.id, t.tag}} }

func (t *Task) stateOf() TaskState { return TaskState(t.state.Load()) }

// casState attempts a monotonic transition; it never allows moving
// backwards out of a terminal state.
func (t *Task) casState(from, to TaskState) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

func (t *Task) isTerminal() bool {
	switch t.stateOf() {
	case TaskCompleted, TaskCancelled, TaskError, TaskDeleted:
		return true
	default:
		return false
	}
}

// taskEntry is the intrusive run-queue node. A Task's instances may be
// dispatched to distinct workers concurrently, so the queue-linkage
// next-pointer lives on a small per-instance entry rather than on the
// shared Task record itself (see DESIGN.md).
type taskEntry struct {
	task     *Task
	instance int
	next     *taskEntry
}

// TaskContext is passed to every ActionFunc invocation. It exposes
// cooperative cancellation polling, instance/worker indexing, and the
// status-setting hook.
type TaskContext struct {
	task        *Task
	workerIndex int
	instance    int
	numInst     int
	worker      *workerContext
}

// ShouldCancel reports whether Cancel/queue-Disable has requested this
// task stop at its next convenient point. The core never preempts a
// running action; it is the action's responsibility to poll this.
func (c *TaskContext) ShouldCancel() bool { return c.task.cancelRequested.Load() }

// GetTaskState returns the task's current state.
func (c *TaskContext) GetTaskState() TaskState { return c.task.stateOf() }

// GetCurrentWorkerNumber returns the index of the worker executing
// this instance.
func (c *TaskContext) GetCurrentWorkerNumber() int { return c.workerIndex }

// GetInstanceNumber returns this invocation's 0-based instance index.
func (c *TaskContext) GetInstanceNumber() int { return c.instance }

// GetNumberOfInstances returns the task's total instance count.
func (c *TaskContext) GetNumberOfInstances() int { return c.numInst }

// SetStatus records the outcome the action wants reflected once it
// returns. A nil err means success; any non-nil err (conventionally
// ErrActionFailed, or a caller-defined error) becomes the task's final
// status. For multi-instance tasks every instance's ctx shares the same
// underlying Task, so status aggregates first-error-wins across
// instances, the same rule WaitAll uses across a group's tasks.
func (c *TaskContext) SetStatus(err error) { c.task.recordInstanceErr(err) }

// recordInstanceErr keeps the first non-nil error reported across all
// of a task's instances (or, for a single-instance task, simply its
// one outcome).
func (t *Task) recordInstanceErr(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	if t.pendingErr == nil {
		t.pendingErr = err
	}
	t.mu.Unlock()
}

// WorkerLocal returns the calling worker's persistent scratch map,
// shared across every task that worker ever runs. It is lazily
// populated and never reset — actions use it to avoid reallocating
// per-invocation scratch space (spec.md §4.11).
func (c *TaskContext) WorkerLocal() *sync.Map {
	return c.worker.localScratch()
}

// StartTask spawns a new task from within a running action, biasing
// dispatch toward the calling worker when it is a legal candidate
// (spec.md §4.3's locality rule), instead of always falling back to
// least-loaded selection.
func (c *TaskContext) StartTask(job JobHandle, args, result []byte, attrs TaskAttributes, group GroupHandle) (TaskHandle, error) {
	return c.task.node.startTaskFrom(job, args, result, attrs, group, c.worker)
}

// WaitTask blocks for a task's outcome re-entrantly: while waiting, the
// calling worker keeps draining its own and neighbours' run queues
// instead of idling, which is what lets unbounded recursive spawning
// make progress without growing the pool (spec.md §4.3).
func (c *TaskContext) WaitTask(h TaskHandle, timeout time.Duration) error {
	t, err := c.task.node.taskRecordOf(h)
	if err != nil {
		return err
	}
	if t.attrs.Detached {
		return ErrParameter
	}
	return t.waitResult(c.task.node, timeout, c.worker)
}

// WaitAny is WaitAny, re-entrant: see WaitTask.
func (c *TaskContext) WaitAny(h GroupHandle, timeout time.Duration) (any, error) {
	g, err := c.task.node.groupRecordOf(h)
	if err != nil {
		return nil, err
	}
	return c.task.node.waitGroupAny(g, timeout, c.worker)
}

// WaitAll is WaitAll, re-entrant: see WaitTask.
func (c *TaskContext) WaitAll(h GroupHandle, timeout time.Duration) error {
	g, err := c.task.node.groupRecordOf(h)
	if err != nil {
		return err
	}
	return c.task.node.waitGroupAll(g, timeout, c.worker)
}

// waitResult blocks until the task reaches a terminal state or the
// deadline elapses, returning its final error (nil on success) or
// ErrTimeout. When called from inside a worker (reentrant != nil) it
// runs the scheduler loop instead of idling, per spec.md §4.3's
// re-entrant execution: this is what lets unbounded recursive spawning
// proceed without deadlocking the pool, since a worker blocked on one
// task's completion keeps draining other work in the meantime.
func (t *Task) waitResult(n *Node, timeout time.Duration, reentrant *workerContext) error {
	var deadline time.Time
	infinite := timeout < 0
	if !infinite {
		deadline = time.Now().Add(timeout)
	}
	for {
		if t.isTerminal() {
			t.mu.Lock()
			err := t.finalErr
			t.waited = true
			t.mu.Unlock()
			return err
		}
		if !infinite && !time.Now().Before(deadline) {
			return ErrTimeout
		}
		if reentrant != nil && n.sched.tryRunOne(reentrant) {
			continue
		}
		wait := 2 * time.Millisecond
		if !infinite {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}
		if wait <= 0 {
			return ErrTimeout
		}
		select {
		case <-t.done:
		case <-time.After(wait):
		}
	}
}
