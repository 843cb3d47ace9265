package mtcore

import (
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mtcore/mtcore/internal/corelog"
	"github.com/mtcore/mtcore/internal/slab"
)

// Node is the runtime singleton: the worker pool plus every object
// table (jobs, actions, tasks, groups, queues) a process-wide
// deployment needs. Most callers never touch *Node directly — the
// package-level functions in api.go delegate to the active instance via
// GetInstance, matching spec.md §6's flat procedural surface.
type Node struct {
	domainID, nodeID uint32
	instanceID       uuid.UUID
	attrs            NodeAttributes

	jobTable []jobSlot
	actions  *slab.Pool[actionRecord]
	tasks    *slab.Pool[Task]
	groups   *slab.Pool[groupRecord]
	queues   *slab.Pool[queueRecord]
	sched    *scheduler

	logger corelog.Logger
}

const (
	nodeStateUninit = iota
	nodeStateInitializing
	nodeStateReady
)

var (
	nodeState  atomic.Int32
	activeNode atomic.Pointer[Node]
)

// availableCores reports the widest worker count DefaultNodeAttributes
// offers: the host's logical CPU count, capped at MaxWorkers.
func availableCores() int {
	n := runtime.NumCPU()
	if n > MaxWorkers {
		n = MaxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

func validateNodeAttributes(a *NodeAttributes) error {
	if a.Workers <= 0 || a.Workers > MaxWorkers {
		return ErrCoreNum
	}
	if a.Priorities <= 0 {
		return ErrAttrNum
	}
	if a.MaxTasks <= 0 || a.MaxActions <= 0 || a.MaxGroups <= 0 || a.MaxQueues <= 0 || a.MaxJobs <= 0 {
		return ErrAttrNum
	}
	if a.Logger == nil {
		a.Logger = corelog.Default
	}
	return nil
}

// Initialize brings up the node singleton: it validates attrs, builds
// every object table at its configured capacity, and starts the worker
// pool. Only one Initialize may succeed between a matching
// Initialize/Finalize pair; concurrent callers race on a lock-free
// state flag with a spin fallback on GetInstance (spec.md §5) — every
// loser observes ErrNodeInitialized.
func Initialize(domainID, nodeID uint32, attrs NodeAttributes) error {
	if !nodeState.CompareAndSwap(nodeStateUninit, nodeStateInitializing) {
		return ErrNodeInitialized
	}
	if err := validateNodeAttributes(&attrs); err != nil {
		nodeState.Store(nodeStateUninit)
		return err
	}

	n := &Node{
		domainID:   domainID,
		nodeID:     nodeID,
		instanceID: uuid.New(),
		attrs:      attrs,
		jobTable:   make([]jobSlot, attrs.MaxJobs),
		actions:    slab.New[actionRecord](attrs.MaxActions),
		tasks:      slab.New[Task](attrs.MaxTasks),
		groups:     slab.New[groupRecord](attrs.MaxGroups),
		queues:     slab.New[queueRecord](attrs.MaxQueues),
		logger:     attrs.Logger,
	}
	n.sched = newScheduler(n, attrs.Workers, attrs.Priorities)
	n.sched.start()

	activeNode.Store(n)
	nodeState.Store(nodeStateReady)
	n.logger.Info("node initialized",
		"domain", domainID, "node", nodeID, "instance", n.instanceID.String(),
		"workers", attrs.Workers, "priorities", attrs.Priorities)
	return nil
}

// Finalize stops the worker pool and tears down the node singleton.
// Outstanding tasks are not drained first — callers that need a clean
// shutdown WaitAll every group (or WaitTask every non-detached task)
// before calling Finalize.
func Finalize() error {
	if !nodeState.CompareAndSwap(nodeStateReady, nodeStateUninit) {
		return ErrNodeNotInit
	}
	n := activeNode.Swap(nil)
	n.sched.stop()
	n.logger.Info("node finalized", "instance", n.instanceID.String())
	return nil
}

// GetInstance returns the active node, spinning briefly if another
// goroutine's Initialize is still in flight.
func GetInstance() (*Node, error) {
	for {
		switch nodeState.Load() {
		case nodeStateReady:
			return activeNode.Load(), nil
		case nodeStateUninit:
			return nil, ErrNodeNotInit
		default:
			runtime.Gosched()
		}
	}
}

// Attrs returns the attributes the node was initialized with.
func (n *Node) Attrs() NodeAttributes { return n.attrs }

// InstanceID returns the node's process-lifetime-unique identifier,
// useful for correlating log lines and plugin-side request ids back to
// this node (spec.md §2.1).
func (n *Node) InstanceID() string { return n.instanceID.String() }
