package mtcore

import (
	"sync/atomic"
	"time"
)

// pluginHooks holds the start/cancel/finalize callbacks for an action
// registered via RegisterPluginAction. A nil pluginHooks means the
// action runs fn directly on a worker.
type pluginHooks struct {
	start    PluginStartFunc
	cancel   PluginCancelFunc
	finalize PluginFinalizeFunc
	data     any
}

// actionRecord is the node-local record for one registered action.
type actionRecord struct {
	job       JobHandle
	fn        ActionFunc
	localData any
	attrs     ActionAttributes
	enabled   atomic.Bool
	numTasks  atomic.Int32
	plugin    *pluginHooks
	domainID  uint32

	id, tag uint32
}

func (a *actionRecord) handle() ActionHandle { return ActionHandle{Handle{a.id, a.tag}} }

// CreateAction registers fn under job, with localData available to fn
// via TaskContext-independent closure capture (callers typically close
// over localData themselves; it is also stored on the record so
// generic dispatch code can recover it without a type switch on fn).
func (n *Node) CreateAction(job JobHandle, fn ActionFunc, localData any, attrs ActionAttributes) (ActionHandle, error) {
	if fn == nil {
		return ActionHandle{}, ErrParameter
	}
	return n.createActionRecord(job, fn, nil, localData, attrs)
}

func (n *Node) createActionRecord(job JobHandle, fn ActionFunc, plugin *pluginHooks, localData any, attrs ActionAttributes) (ActionHandle, error) {
	jobEntry, err := n.jobEntry(job)
	if err != nil {
		return ActionHandle{}, err
	}

	id, tag, rec, ok := n.actions.Allocate()
	if !ok {
		return ActionHandle{}, ErrActionLimit
	}
	rec.job = job
	rec.fn = fn
	rec.plugin = plugin
	rec.localData = localData
	rec.attrs = attrs
	rec.enabled.Store(true)
	rec.domainID = n.domainID
	rec.id, rec.tag = id, tag

	h := rec.handle()
	jobEntry.mu.Lock()
	jobEntry.actions = append(jobEntry.actions, h)
	jobEntry.mu.Unlock()
	return h, nil
}

// actionRecordOf resolves an ActionHandle to its live record.
func (n *Node) actionRecordOf(h ActionHandle) (*actionRecord, error) {
	rec, ok := n.actions.Get(h.h.id, h.h.tag)
	if !ok {
		return nil, ErrActionInvalid
	}
	return rec, nil
}

// DeleteAction waits (up to timeout, negative meaning infinite) for the
// action's in-flight task count to reach zero, then frees its slot.
// spec.md §9 leaves the source's infinite-block-on-delete behavior as
// an open question to resolve explicitly: here, a positive timeout that
// elapses returns ErrTimeout and leaves the action allocated — it is
// not force-deleted out from under running tasks.
func (n *Node) DeleteAction(h ActionHandle, timeout time.Duration) error {
	rec, err := n.actionRecordOf(h)
	if err != nil {
		return err
	}
	rec.enabled.Store(false)

	deadline := time.Now().Add(timeout)
	for rec.numTasks.Load() != 0 {
		if timeout >= 0 && !time.Now().Before(deadline) {
			rec.enabled.Store(true)
			n.logger.Warn("action deletion timed out waiting for in-flight tasks",
				"action", h.h.id, "job", rec.job.h.id, "remaining", rec.numTasks.Load())
			return ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}

	if rec.plugin != nil && rec.plugin.finalize != nil {
		rec.plugin.finalize(rec.plugin.data)
	}

	jobEntry, jerr := n.jobEntry(rec.job)
	if jerr == nil {
		jobEntry.mu.Lock()
		for i, ah := range jobEntry.actions {
			if ah == h {
				jobEntry.actions = append(jobEntry.actions[:i], jobEntry.actions[i+1:]...)
				break
			}
		}
		jobEntry.mu.Unlock()
	}

	n.actions.Release(h.h.id, h.h.tag)
	return nil
}

// selectAction implements spec.md §4.2's action selection rule: among a
// job's enabled actions whose affinity intersects the task's requested
// affinity and whose domain-shared attribute admits this caller, pick
// the one with fewest in-flight tasks, ties broken by insertion order
// (the job's action list is append-only, so list order already is
// insertion order).
//
// domain_shared (original_source/mtapi_c/src/mtapi_action_attributes_t.c)
// excludes an action from selection by a task originating outside the
// domain that registered it. This node is single-domain — every action
// it holds was registered under n.domainID — so the rule degenerates to
// "a non-domain-shared action is only selectable within its own node,"
// which is always true here; the check is kept so a future multi-domain
// node (several Node instances sharing actions) enforces it for real.
func (n *Node) selectAction(job JobHandle, taskAffinity Affinity) (*actionRecord, error) {
	jobEntry, err := n.jobEntry(job)
	if err != nil {
		return nil, err
	}
	jobEntry.mu.RLock()
	candidates := append([]ActionHandle(nil), jobEntry.actions...)
	jobEntry.mu.RUnlock()

	var best *actionRecord
	for _, ah := range candidates {
		rec, ok := n.actions.Get(ah.h.id, ah.h.tag)
		if !ok || !rec.enabled.Load() {
			continue
		}
		if rec.attrs.Affinity.Intersect(taskAffinity).IsEmpty() {
			continue
		}
		if !rec.attrs.DomainShared && rec.domainID != n.domainID {
			continue
		}
		if best == nil || rec.numTasks.Load() < best.numTasks.Load() {
			best = rec
		}
	}
	if best == nil {
		return nil, ErrAffinity
	}
	return best, nil
}
