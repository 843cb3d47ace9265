package mtcore

import "sync"

// jobSlot is one entry of the node's fixed job table: the list of the
// actions that implement it. The table is preallocated at Initialize
// over the configured job-id range, and GetJob succeeds for any id in
// that range whether or not an action is attached yet.
type jobSlot struct {
	mu      sync.RWMutex
	actions []ActionHandle
	tag     uint32
}

// GetJob returns a handle for jobID within the node's configured job-id
// range. It always succeeds within range — the caller must not assume
// the job already has actions attached (spec.md §4.2).
func (n *Node) GetJob(jobID uint32, domainID uint32) (JobHandle, error) {
	if jobID == 0 || int(jobID) > len(n.jobTable) {
		return JobHandle{}, ErrJobInvalid
	}
	_ = domainID // single-process node: domain is informational only
	slot := &n.jobTable[jobID-1]
	slot.mu.RLock()
	tag := slot.tag
	slot.mu.RUnlock()
	return JobHandle{Handle{jobID, tag}}, nil
}

// jobEntry resolves a JobHandle back to its table slot, rejecting
// stale or out-of-range handles.
func (n *Node) jobEntry(h JobHandle) (*jobSlot, error) {
	if h.h.id == 0 || int(h.h.id) > len(n.jobTable) {
		return nil, ErrJobInvalid
	}
	slot := &n.jobTable[h.h.id-1]
	slot.mu.RLock()
	tag := slot.tag
	slot.mu.RUnlock()
	if tag != h.h.tag {
		return nil, ErrJobInvalid
	}
	return slot, nil
}
