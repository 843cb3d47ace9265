package mtcore

import (
	"errors"
	"time"
)

// newTask allocates a task, resolves its action via selectAction, and
// fills in its attrs/group/queue linkage, registering it as outstanding
// with its group if any. It does not enqueue it — StartTask and Spawn
// do that once admission policy (queue retention, affinity) has been
// decided.
func (n *Node) newTask(job JobHandle, args, result []byte, attrs TaskAttributes, group GroupHandle, queue QueueHandle) (*Task, error) {
	if attrs.Instances <= 0 {
		attrs.Instances = 1
	}
	action, err := n.selectAction(job, attrs.Affinity)
	if err != nil {
		return nil, err
	}
	if group.Valid() {
		if _, gerr := n.groupRecordOf(group); gerr != nil {
			return nil, gerr
		}
	}

	id, tag, t, ok := n.tasks.Allocate()
	if !ok {
		return nil, ErrTaskLimit
	}
	t.id, t.tag = id, tag
	t.node = n
	t.job = job
	t.action = action.handle()
	t.args = args
	t.result = result
	t.attrs = attrs
	t.group = group
	t.queue = queue
	t.done = make(chan struct{})
	t.state.Store(int32(TaskCreated))
	t.currentInstance.Store(0)
	t.instancesTodo.Store(int32(attrs.Instances))
	t.cancelRequested.Store(false)
	t.pendingErr, t.finalErr = nil, nil
	t.waited = false

	action.numTasks.Add(1)
	if g, gerr := n.groupRecordOf(group); gerr == nil {
		g.taskStarted()
	}
	return t, nil
}

// StartTask creates and immediately schedules a task running one of
// job's actions, per spec.md §4.3/§4.4.
func (n *Node) StartTask(job JobHandle, args, result []byte, attrs TaskAttributes, group GroupHandle) (TaskHandle, error) {
	return n.startTaskFrom(job, args, result, attrs, group, nil)
}

func (n *Node) startTaskFrom(job JobHandle, args, result []byte, attrs TaskAttributes, group GroupHandle, caller *workerContext) (TaskHandle, error) {
	t, err := n.newTask(job, args, result, attrs, group, QueueHandle{})
	if err != nil {
		return TaskHandle{}, err
	}
	t.state.Store(int32(TaskScheduled))
	if err := n.sched.dispatchFrom(t, caller); err != nil {
		n.finalizeTask(t, TaskError, err)
		return TaskHandle{}, err
	}
	return t.handle(), nil
}

// taskRecordOf resolves a TaskHandle to its live record.
func (n *Node) taskRecordOf(h TaskHandle) (*Task, error) {
	t, ok := n.tasks.Get(h.h.id, h.h.tag)
	if !ok {
		return nil, ErrTaskInvalid
	}
	return t, nil
}

// WaitTask blocks for one task's terminal outcome. A detached task's
// handle is not observable post-start (spec.md §4.4), so waiting on one
// is a usage error rather than a blocking call.
func (n *Node) WaitTask(h TaskHandle, timeout time.Duration) error {
	t, err := n.taskRecordOf(h)
	if err != nil {
		return err
	}
	if t.attrs.Detached {
		return ErrParameter
	}
	return t.waitResult(n, timeout, nil)
}

// CancelTask requests cooperative cancellation, per spec.md §4.4: a
// task still CREATED/SCHEDULED/RETAINED (its action body never started)
// transitions to CANCELLED immediately; a RUNNING task is only flagged
// — it reaches CANCELLED solely if the action itself observes
// ShouldCancel and reports ErrActionCancelled via SetStatus before
// returning.
func (n *Node) CancelTask(h TaskHandle) error {
	t, err := n.taskRecordOf(h)
	if err != nil {
		return err
	}
	t.cancelRequested.Store(true)
	for {
		cur := t.stateOf()
		if cur != TaskCreated && cur != TaskScheduled && cur != TaskRetained {
			if cur == TaskRunning {
				if action, aerr := n.actionRecordOf(t.action); aerr == nil && action.plugin != nil && action.plugin.cancel != nil {
					action.plugin.cancel(&PluginTaskHandle{node: n, task: t}, action.plugin.data)
				}
			}
			return nil
		}
		if t.casState(cur, TaskCancelled) {
			t.recordInstanceErr(ErrActionCancelled)
			n.finishTask(t, TaskCancelled, ErrActionCancelled)
			return nil
		}
	}
}

// DeleteTask releases a terminal task's slot; it refuses to delete a
// task still in flight.
func (n *Node) DeleteTask(h TaskHandle) error {
	t, err := n.taskRecordOf(h)
	if err != nil {
		return err
	}
	if !t.isTerminal() {
		return ErrTaskInvalid
	}
	t.state.Store(int32(TaskDeleted))
	n.tasks.Release(h.h.id, h.h.tag)
	return nil
}

// finalizeTask forces t directly to a terminal state without running
// it — used for dispatch failures and cancellation of a task that
// never started. Callers must already know t is not concurrently being
// finalized elsewhere (newTask/StartTask failures own the only
// reference at this point; completeInstance owns it by virtue of being
// the single last-instance caller).
func (n *Node) finalizeTask(t *Task, state TaskState, err error) {
	if t.isTerminal() {
		return
	}
	t.state.Store(int32(state))
	n.finishTask(t, state, err)
}

// abandonTask forces t to ERROR after it was admitted (to a group and/or
// queue) but failed to actually reach a worker, e.g. because its
// affinity emptied out between admission and dispatch. group and queue
// are accepted for callers that admitted t before its own fields were
// fully populated; finalizeTask reads the now-current t.group/t.queue,
// so the terminal-transition bookkeeping (group notification, queue
// slot release/promotion) still runs exactly as it would for a task
// that ran and failed.
func (n *Node) abandonTask(t *Task, group GroupHandle, queue QueueHandle, err error) {
	n.finalizeTask(t, TaskError, err)
}

// finishTask runs the shared terminal-transition bookkeeping: it
// records the final error, wakes Wait callers, releases the action's
// in-flight count, notifies the owning group and queue, and invokes
// OnComplete.
func (n *Node) finishTask(t *Task, state TaskState, err error) {
	t.mu.Lock()
	t.finalErr = err
	t.mu.Unlock()
	close(t.done)

	n.logger.Debug("task terminal transition",
		"job", t.job.h.id, "task", t.id, "state", state.String(), "err", err)

	if action, aerr := n.actionRecordOf(t.action); aerr == nil {
		action.numTasks.Add(-1)
	}
	if t.group.Valid() {
		if g, gerr := n.groupRecordOf(t.group); gerr == nil {
			g.taskFinished(t.attrs.UserData, err)
		}
	}
	if t.queue.Valid() {
		n.onQueueMemberFinished(t.queue, t)
	}
	if t.attrs.OnComplete != nil {
		t.attrs.OnComplete(err, t.attrs.UserData)
	}

	// Detached tasks have no observable handle past this point (spec.md
	// §3/§4.4): free the slot now instead of waiting for DeleteTask. Must
	// be last — Release zeroes every field of *t, including id/tag.
	if t.attrs.Detached {
		n.tasks.Release(t.id, t.tag)
	}
}

// completeInstance records one instance finishing and, once every
// instance has reported in, resolves the task's aggregate status into
// a terminal state: COMPLETED on success, CANCELLED if the aggregated
// error is ErrActionCancelled, ERROR otherwise.
func (n *Node) completeInstance(t *Task) {
	if t.currentInstance.Add(1) < t.instancesTodo.Load() {
		return
	}
	t.mu.Lock()
	final := t.pendingErr
	t.mu.Unlock()

	state := TaskCompleted
	switch {
	case final == nil:
	case errors.Is(final, ErrActionCancelled):
		state = TaskCancelled
	default:
		state = TaskError
	}
	n.finalizeTask(t, state, final)
}

// runTaskEntry executes one task instance on worker w: it transitions
// the task to RUNNING, builds its TaskContext, and either runs the
// action body directly or, for a plugin-backed action, hands off to the
// plugin's start hook and returns — completion then arrives later via
// PluginTaskHandle.Complete.
func (n *Node) runTaskEntry(w *workerContext, e *taskEntry) {
	t := e.task
	if t.isTerminal() {
		return // cancelled while still queued or retained
	}
	t.casState(TaskScheduled, TaskRunning)
	t.casState(TaskRetained, TaskRunning)

	action, err := n.actionRecordOf(t.action)
	if err != nil {
		n.finalizeTask(t, TaskError, err)
		return
	}

	if t.cancelRequested.Load() {
		t.recordInstanceErr(ErrActionCancelled)
		n.completeInstance(t)
		return
	}

	if action.plugin != nil {
		pctx := &PluginTaskHandle{node: n, task: t}
		action.plugin.start(pctx, action.plugin.data, t.args, t.result)
		return
	}

	ctx := &TaskContext{task: t, workerIndex: w.index, instance: e.instance, numInst: t.attrs.Instances, worker: w}
	action.fn(ctx, t.args, t.result)
	n.completeInstance(t)
}
