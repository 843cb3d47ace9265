package mtcore

// PluginStartFunc begins a plugin-backed action: it is invoked on a
// worker, receives the handle it must later call Complete on, the
// plugin data supplied at registration, and the task's
// argument/result buffers, and returns quickly — the actual work
// happens outside the worker pool (a network call, a hardware queue, a
// callback from another library), per spec.md §4.10's plugin hook
// contract.
type PluginStartFunc func(h *PluginTaskHandle, pluginData any, args, result []byte)

// PluginCancelFunc is invoked when CancelTask targets a plugin-backed
// task that is already RUNNING. DisableQueue does not invoke it; it only
// sets the flag PluginTaskHandle.ShouldCancel reports. Like
// TaskContext.ShouldCancel it is advisory: the plugin decides whether
// and when the external work actually stops, and still reports its
// outcome through Complete.
type PluginCancelFunc func(h *PluginTaskHandle, pluginData any)

// PluginFinalizeFunc runs once, synchronously within DeleteAction,
// after every in-flight task of a plugin-backed action has completed.
type PluginFinalizeFunc func(pluginData any)

// PluginTaskHandle is the completion token a plugin-backed action uses
// to report its outcome asynchronously, off the worker that dispatched
// it.
type PluginTaskHandle struct {
	node *Node
	task *Task
}

// ShouldCancel reports whether Cancel has been requested for the
// underlying task, mirroring TaskContext.ShouldCancel for plugin code
// that polls instead of registering a PluginCancelFunc.
func (h *PluginTaskHandle) ShouldCancel() bool { return h.task.cancelRequested.Load() }

// Complete reports the plugin action's outcome; nil means success. It
// must be called exactly once per PluginTaskHandle — calling it more
// than once is a caller bug with no defined effect beyond the first
// call.
func (h *PluginTaskHandle) Complete(status error) {
	if status != nil {
		h.node.logger.Error("plugin callback error",
			"job", h.task.job.h.id, "task", h.task.id, "err", status)
	}
	h.task.recordInstanceErr(status)
	h.node.completeInstance(h.task)
}

// RegisterPluginAction registers an externally-dispatched action under
// job: start hands a task off to the plugin, cancel (optional) is an
// advisory hook for a RUNNING task, and finalize (optional) runs once
// DeleteAction has drained every in-flight task.
func (n *Node) RegisterPluginAction(job JobHandle, start PluginStartFunc, cancel PluginCancelFunc, finalize PluginFinalizeFunc, pluginData any, attrs ActionAttributes) (ActionHandle, error) {
	if start == nil {
		return ActionHandle{}, ErrParameter
	}
	hooks := &pluginHooks{start: start, cancel: cancel, finalize: finalize, data: pluginData}
	return n.createActionRecord(job, nil, hooks, nil, attrs)
}
