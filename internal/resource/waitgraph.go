package resource

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrSelfDependency is returned when a task reaches an item it is itself completing
	ErrSelfDependency = errors.New("self-dependency")
	// ErrDependencyCycle is returned when waiting would close a cycle between tasks
	ErrDependencyCycle = errors.New("dependency cycle")
)

// TaskID identifies one unit of concurrent work: a pipeline fan-out task or a
// cache load.
type TaskID uint64

var lastTaskID atomic.Uint64

// NewTaskID allocates a process-unique task id
func NewTaskID() TaskID {
	return TaskID(lastTaskID.Add(1))
}

// WaitGraph tracks which task is completing which item and which item each
// blocked task waits on. It lets completion walks detect self-dependency and
// wait cycles instead of deadlocking.
type WaitGraph struct {
	mu     sync.Mutex
	owners map[any]TaskID
	waits  map[TaskID]any
}

// NewWaitGraph creates an empty graph
func NewWaitGraph() *WaitGraph {
	return &WaitGraph{
		owners: make(map[any]TaskID),
		waits:  make(map[TaskID]any),
	}
}

// Claim makes task the owner of item if it has none. It returns the current
// owner and whether task claimed it. A task that already owns item gets
// ErrSelfDependency.
func (g *WaitGraph) Claim(item any, task TaskID) (TaskID, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if owner, ok := g.owners[item]; ok {
		if owner == task {
			return owner, false, ErrSelfDependency
		}
		return owner, false, nil
	}
	g.owners[item] = task
	return task, true, nil
}

// Release drops ownership of item
func (g *WaitGraph) Release(item any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.owners, item)
}

// BeginWait records that task is about to block on item. It fails when the
// owner of item is, directly or through other waiting tasks, waiting on task.
func (g *WaitGraph) BeginWait(task TaskID, item any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[TaskID]bool)
	cur := item
	for {
		owner, ok := g.owners[cur]
		if !ok {
			break
		}
		if owner == task {
			if cur == item {
				return ErrSelfDependency
			}
			return ErrDependencyCycle
		}
		if seen[owner] {
			break
		}
		seen[owner] = true
		next, waiting := g.waits[owner]
		if !waiting {
			break
		}
		cur = next
	}
	g.waits[task] = item
	return nil
}

// EndWait clears the wait record of task
func (g *WaitGraph) EndWait(task TaskID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.waits, task)
}
