package mtcore

import (
	"sync"
	"sync/atomic"
	"time"
)

// completedEntry is one finished task's result, retained in a group's
// completion list until WaitAny consumes it.
type completedEntry struct {
	userData any
	err      error
	next     *completedEntry
}

// groupRecord is the node-local record for a group: spec.md §4.5's
// atomic outstanding counter plus the FIFO of terminal-but-unconsumed
// tasks WaitAny drains.
type groupRecord struct {
	numTasks atomic.Int32 // tasks started but not yet terminal

	mu       sync.Mutex
	head     *completedEntry
	tail     *completedEntry
	firstErr error
	sawErr   bool

	id, tag uint32
}

func (g *groupRecord) handle() GroupHandle { return GroupHandle{Handle{g.id, g.tag}} }

// CreateGroup allocates a new, empty group.
func (n *Node) CreateGroup() (GroupHandle, error) {
	id, tag, g, ok := n.groups.Allocate()
	if !ok {
		return GroupHandle{}, ErrGroupLimit
	}
	g.id, g.tag = id, tag
	g.numTasks.Store(0)
	g.head, g.tail = nil, nil
	g.firstErr, g.sawErr = nil, false
	return g.handle(), nil
}

func (n *Node) groupRecordOf(h GroupHandle) (*groupRecord, error) {
	g, ok := n.groups.Get(h.h.id, h.h.tag)
	if !ok {
		return nil, ErrGroupInvalid
	}
	return g, nil
}

// taskStarted is called at enqueue time, once for every task spawned
// through a group (a multi-instance task counts once).
func (g *groupRecord) taskStarted() { g.numTasks.Add(1) }

// taskFinished is called exactly once per task, at its terminal
// transition: it decrements the outstanding counter, records the
// result on the completion FIFO, and tracks the first non-nil error
// seen (first-error-wins, resolving spec.md §9's open question).
// WaitAny/WaitAll poll rather than block on a condition variable, the
// same style Task.waitResult uses, so there is nothing here to wake.
func (g *groupRecord) taskFinished(userData any, err error) {
	g.mu.Lock()
	entry := &completedEntry{userData: userData, err: err}
	if g.tail == nil {
		g.head, g.tail = entry, entry
	} else {
		g.tail.next = entry
		g.tail = entry
	}
	if err != nil && !g.sawErr {
		g.firstErr, g.sawErr = err, true
	}
	g.mu.Unlock()
	g.numTasks.Add(-1)
}

// WaitAny blocks until the group has at least one completed task not
// yet consumed, returning its user data and final status; if nothing
// remains outstanding or completed it returns ErrGroupCompleted.
func (n *Node) WaitAny(h GroupHandle, timeout time.Duration) (any, error) {
	g, err := n.groupRecordOf(h)
	if err != nil {
		return nil, err
	}
	return n.waitGroupAny(g, timeout, nil)
}

func (n *Node) waitGroupAny(g *groupRecord, timeout time.Duration, reentrant *workerContext) (any, error) {
	deadline := time.Now().Add(timeout)
	infinite := timeout < 0
	for {
		g.mu.Lock()
		if g.head != nil {
			e := g.head
			g.head = e.next
			if g.head == nil {
				g.tail = nil
			}
			g.mu.Unlock()
			return e.userData, e.err
		}
		outstanding := g.numTasks.Load()
		g.mu.Unlock()
		if outstanding == 0 {
			return nil, ErrGroupCompleted
		}
		if !infinite && !time.Now().Before(deadline) {
			return nil, ErrTimeout
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
			return nil, ErrTimeout
		}
		time.Sleep(wait)
	}
}

// WaitAll blocks until the group's outstanding counter reaches zero,
// returning the first non-nil status any member task finished with
// (nil if every task succeeded). After WaitAll returns, the group is
// drained of outstanding work, though any unconsumed completed entries
// remain available to a later WaitAny.
func (n *Node) WaitAll(h GroupHandle, timeout time.Duration) error {
	g, err := n.groupRecordOf(h)
	if err != nil {
		return err
	}
	return n.waitGroupAll(g, timeout, nil)
}

func (n *Node) waitGroupAll(g *groupRecord, timeout time.Duration, reentrant *workerContext) error {
	deadline := time.Now().Add(timeout)
	infinite := timeout < 0
	for g.numTasks.Load() != 0 {
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
		time.Sleep(wait)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.firstErr
}

// DeleteGroup frees a group's slot. It does not wait for outstanding
// tasks; deleting a group with live members invalidates the handle
// members hold (their terminal-transition bookkeeping becomes a no-op
// against a freed slot generation, never a use-after-free, since the
// slab's tag guards against that).
func (n *Node) DeleteGroup(h GroupHandle) error {
	if _, err := n.groupRecordOf(h); err != nil {
		return err
	}
	n.groups.Release(h.h.id, h.h.tag)
	return nil
}
