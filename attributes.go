package mtcore

import "github.com/mtcore/mtcore/internal/corelog"

// NodeAttributes configures a Node at Initialize time. Use
// DefaultNodeAttributes and chain the With* setters; each setter
// returns a modified copy, so attributes can be built up incrementally
// without aliasing surprises.
type NodeAttributes struct {
	Workers         int
	MaxTasks        int
	MaxActions      int
	MaxGroups       int
	MaxQueues       int
	MaxJobs         int
	Priorities      int
	QueueLimit      int
	ReuseMainThread bool
	Logger          corelog.Logger
}

// DefaultNodeAttributes matches spec.md §6: workers = available cores,
// priorities = 4, max-tasks = 1024, max-actions = 128, max-groups = 128,
// max-queues = 16, max-jobs = 64, queue-limit = 16, reuse-main-thread =
// true.
func DefaultNodeAttributes() NodeAttributes {
	return NodeAttributes{
		Workers:         availableCores(),
		MaxTasks:        1024,
		MaxActions:      128,
		MaxGroups:       128,
		MaxQueues:       16,
		MaxJobs:         64,
		Priorities:      4,
		QueueLimit:      16,
		ReuseMainThread: true,
		Logger:          corelog.Default,
	}
}

func (a NodeAttributes) WithWorkers(n int) NodeAttributes         { a.Workers = n; return a }
func (a NodeAttributes) WithMaxTasks(n int) NodeAttributes        { a.MaxTasks = n; return a }
func (a NodeAttributes) WithMaxActions(n int) NodeAttributes      { a.MaxActions = n; return a }
func (a NodeAttributes) WithMaxGroups(n int) NodeAttributes       { a.MaxGroups = n; return a }
func (a NodeAttributes) WithMaxQueues(n int) NodeAttributes       { a.MaxQueues = n; return a }
func (a NodeAttributes) WithMaxJobs(n int) NodeAttributes         { a.MaxJobs = n; return a }
func (a NodeAttributes) WithPriorities(n int) NodeAttributes      { a.Priorities = n; return a }
func (a NodeAttributes) WithQueueLimit(n int) NodeAttributes      { a.QueueLimit = n; return a }
func (a NodeAttributes) WithReuseMainThread(b bool) NodeAttributes { a.ReuseMainThread = b; return a }
func (a NodeAttributes) WithLogger(l corelog.Logger) NodeAttributes {
	if l == nil {
		l = corelog.Default
	}
	a.Logger = l
	return a
}

// ActionAttributes configures CreateAction. Defaults: global = true,
// affinity = every worker, domain-shared = true (spec.md §4.2).
type ActionAttributes struct {
	Global       bool
	Affinity     Affinity
	DomainShared bool
}

func DefaultActionAttributes() ActionAttributes {
	return ActionAttributes{Global: true, Affinity: AffinityAll(MaxWorkers), DomainShared: true}
}

func (a ActionAttributes) WithGlobal(b bool) ActionAttributes           { a.Global = b; return a }
func (a ActionAttributes) WithAffinity(af Affinity) ActionAttributes    { a.Affinity = af; return a }
func (a ActionAttributes) WithDomainShared(b bool) ActionAttributes     { a.DomainShared = b; return a }

// CompleteFunc is invoked once a task reaches a terminal state, with
// its final error (nil on StatusSuccess) and the UserData it carried.
type CompleteFunc func(status error, userData any)

// TaskAttributes configures StartTask / Queue.Spawn. Defaults:
// instances = 1, priority = 0 (highest), affinity = every worker,
// detached = false.
type TaskAttributes struct {
	Instances int
	Priority  int
	Affinity  Affinity
	Detached  bool
	OnComplete CompleteFunc
	UserData  any
}

func DefaultTaskAttributes() TaskAttributes {
	return TaskAttributes{Instances: 1, Priority: 0, Affinity: AffinityAll(MaxWorkers)}
}

func (a TaskAttributes) WithInstances(n int) TaskAttributes        { a.Instances = n; return a }
func (a TaskAttributes) WithPriority(p int) TaskAttributes         { a.Priority = p; return a }
func (a TaskAttributes) WithAffinity(af Affinity) TaskAttributes   { a.Affinity = af; return a }
func (a TaskAttributes) WithDetached(b bool) TaskAttributes        { a.Detached = b; return a }
func (a TaskAttributes) WithUserData(v any) TaskAttributes         { a.UserData = v; return a }
func (a TaskAttributes) WithOnComplete(fn CompleteFunc) TaskAttributes {
	a.OnComplete = fn
	return a
}

// QueueAttributes configures CreateQueue. Defaults: priority = 0,
// ordered = false, retain = true, affinity = every worker.
type QueueAttributes struct {
	Priority int
	Ordered  bool
	Retain   bool
	Affinity Affinity
}

func DefaultQueueAttributes() QueueAttributes {
	return QueueAttributes{Priority: 0, Ordered: false, Retain: true, Affinity: AffinityAll(MaxWorkers)}
}

func (a QueueAttributes) WithPriority(p int) QueueAttributes     { a.Priority = p; return a }
func (a QueueAttributes) WithOrdered(b bool) QueueAttributes     { a.Ordered = b; return a }
func (a QueueAttributes) WithRetain(b bool) QueueAttributes      { a.Retain = b; return a }
func (a QueueAttributes) WithAffinity(af Affinity) QueueAttributes { a.Affinity = af; return a }
