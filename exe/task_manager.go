package exe

import (
	"fmt"
	"sync"
)

// TaskCreateOption configures a task at creation time
type TaskCreateOption func(*Task)

// WithPopulation attaches the population-size callback consulted by the
// splitting queue
func WithPopulation(population func() int) TaskCreateOption {
	return func(t *Task) { t.population = population }
}

// WithVarAccess records the variable access sets for diagnostics and
// graph export
func WithVarAccess(read, write []string) TaskCreateOption {
	return func(t *Task) {
		t.readVars = read
		t.writeVars = write
	}
}

// WithMsgAccess records the message access sets for diagnostics and
// graph export
func WithMsgAccess(read, post []string) TaskCreateOption {
	return func(t *Task) {
		t.readMsgs = read
		t.postMsgs = post
	}
}

// TaskManager owns every task of the compiled DAG and drives the
// per-iteration ready/assigned/pending bookkeeping.
//
// Creation and linking happen single-threaded before Finalize. The
// per-iteration state is mutated from the scheduler loop and guarded by
// one mutex; the critical sections of IterPop and IterDone are short by
// construction.
type TaskManager struct {
	tasks   []*Task
	nameMap map[string]TaskID

	children [][]TaskID
	parents  [][]TaskID

	// OwnerCheck optionally vets the agent_or_msg argument of CreateTask.
	// The simulation layer installs a resolver against its registries.
	OwnerCheck func(typ TaskType, owner string) error

	finalized bool
	roots     []TaskID
	leaves    []TaskID

	mu           sync.Mutex
	ready        []TaskID
	assigned     map[TaskID]struct{}
	pendingCount []int
	pendingTotal int // tasks not yet moved into ready
	doneCount    []int
}

// NewTaskManager creates an empty task manager
func NewTaskManager() *TaskManager {
	return &TaskManager{
		nameMap:  make(map[string]TaskID),
		assigned: make(map[TaskID]struct{}),
	}
}

// CreateTask registers a new task and returns its id. Task names are
// unique; creation fails once the manager is finalized.
func (tm *TaskManager) CreateTask(typ TaskType, name, owner string, body Body, opts ...TaskCreateOption) (TaskID, error) {
	if tm.finalized {
		return 0, fmt.Errorf("task %q: %w", name, ErrAlreadyFinalized)
	}
	if name == "" {
		return 0, fmt.Errorf("task name must not be empty: %w", ErrInvalidArgument)
	}
	if _, exists := tm.nameMap[name]; exists {
		return 0, fmt.Errorf("task %q: %w", name, ErrDuplicateName)
	}
	if tm.OwnerCheck != nil {
		if err := tm.OwnerCheck(typ, owner); err != nil {
			return 0, fmt.Errorf("task %q owner %q: %w", name, owner, err)
		}
	}

	id := TaskID(len(tm.tasks))
	t := &Task{id: id, typ: typ, name: name, owner: owner, body: body}
	for _, opt := range opts {
		opt(t)
	}
	tm.tasks = append(tm.tasks, t)
	tm.nameMap[name] = id
	tm.children = append(tm.children, nil)
	tm.parents = append(tm.parents, nil)
	return id, nil
}

// Task returns a task by id
func (tm *TaskManager) Task(id TaskID) (*Task, error) {
	if int(id) >= len(tm.tasks) {
		return nil, fmt.Errorf("task id %d: %w", id, ErrUnknownTask)
	}
	return tm.tasks[id], nil
}

// TaskByName returns a task by its unique name
func (tm *TaskManager) TaskByName(name string) (*Task, error) {
	id, ok := tm.nameMap[name]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", name, ErrUnknownTask)
	}
	return tm.tasks[id], nil
}

// TaskCount returns the number of registered tasks
func (tm *TaskManager) TaskCount() int {
	return len(tm.tasks)
}

// Children returns the direct dependents of a task
func (tm *TaskManager) Children(id TaskID) []TaskID {
	if int(id) >= len(tm.children) {
		return nil
	}
	return tm.children[id]
}

// Parents returns the direct dependencies of a task
func (tm *TaskManager) Parents(id TaskID) []TaskID {
	if int(id) >= len(tm.parents) {
		return nil
	}
	return tm.parents[id]
}

// AddDependency records that task to depends on task from. The edge is
// rejected if it would close a cycle.
func (tm *TaskManager) AddDependency(from, to TaskID) error {
	if tm.finalized {
		return fmt.Errorf("dependency %d -> %d: %w", from, to, ErrAlreadyFinalized)
	}
	if int(from) >= len(tm.tasks) || int(to) >= len(tm.tasks) {
		return fmt.Errorf("dependency %d -> %d: %w", from, to, ErrUnknownTask)
	}
	if from == to || tm.reachable(to, from) {
		return fmt.Errorf("dependency %d -> %d: %w", from, to, ErrWouldCycle)
	}
	for _, c := range tm.children[from] {
		if c == to {
			return nil // edge already present
		}
	}
	tm.children[from] = append(tm.children[from], to)
	tm.parents[to] = append(tm.parents[to], from)
	return nil
}

// HasDependency reports whether the direct edge from -> to exists
func (tm *TaskManager) HasDependency(from, to TaskID) bool {
	for _, c := range tm.Children(from) {
		if c == to {
			return true
		}
	}
	return false
}

// reachable reports whether dst can be reached from src along dependency
// edges
func (tm *TaskManager) reachable(src, dst TaskID) bool {
	if src == dst {
		return true
	}
	seen := make([]bool, len(tm.tasks))
	stack := []TaskID{src}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == dst {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, tm.children[cur]...)
	}
	return false
}

// Finalize freezes the DAG: it computes roots, leaves, and the per-task
// parent counts, and rejects any cycle. After Finalize no task may be
// created or linked for the life of the process.
func (tm *TaskManager) Finalize() error {
	if tm.finalized {
		return ErrAlreadyFinalized
	}
	if cycle := tm.findCycle(); cycle != nil {
		return fmt.Errorf("cycle through tasks %v: %w", cycle, ErrWouldCycle)
	}
	tm.roots = tm.roots[:0]
	tm.leaves = tm.leaves[:0]
	for id := range tm.tasks {
		if len(tm.parents[id]) == 0 {
			tm.roots = append(tm.roots, TaskID(id))
		}
		if len(tm.children[id]) == 0 {
			tm.leaves = append(tm.leaves, TaskID(id))
		}
	}
	tm.pendingCount = make([]int, len(tm.tasks))
	tm.doneCount = make([]int, len(tm.tasks))
	tm.finalized = true
	tm.IterReset()
	return nil
}

// findCycle returns the ids of one dependency cycle, or nil. AddDependency
// prevents cycles edge by edge; this is the finalize-time recheck the
// scheduler relies on.
func (tm *TaskManager) findCycle() []TaskID {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make([]int, len(tm.tasks))
	var cycle []TaskID

	var visit func(id TaskID, trail []TaskID) bool
	visit = func(id TaskID, trail []TaskID) bool {
		state[id] = inStack
		trail = append(trail, id)
		for _, c := range tm.children[id] {
			switch state[c] {
			case inStack:
				for i, t := range trail {
					if t == c {
						cycle = append([]TaskID(nil), trail[i:]...)
						return true
					}
				}
			case unvisited:
				if visit(c, trail) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	for id := range tm.tasks {
		if state[id] == unvisited {
			if visit(TaskID(id), nil) {
				return cycle
			}
		}
	}
	return nil
}

// Finalized reports whether the DAG has been frozen
func (tm *TaskManager) Finalized() bool {
	return tm.finalized
}

// Roots returns the tasks with no dependencies
func (tm *TaskManager) Roots() []TaskID {
	return tm.roots
}

// Leaves returns the tasks nothing depends on
func (tm *TaskManager) Leaves() []TaskID {
	return tm.leaves
}

// IterReset prepares the per-iteration state: every task's pending count
// returns to its parent count, the ready set holds the roots, and the
// assigned set empties.
func (tm *TaskManager) IterReset() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.ready = append(tm.ready[:0], tm.roots...)
	tm.assigned = make(map[TaskID]struct{})
	tm.pendingTotal = len(tm.tasks) - len(tm.roots)
	for id := range tm.tasks {
		tm.pendingCount[id] = len(tm.parents[id])
		tm.doneCount[id] = 0
	}
}

// IterPop atomically removes and returns a task id from the ready set
func (tm *TaskManager) IterPop() (TaskID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if len(tm.ready) == 0 {
		return 0, ErrNoneAvailable
	}
	id := tm.ready[len(tm.ready)-1]
	tm.ready = tm.ready[:len(tm.ready)-1]
	tm.assigned[id] = struct{}{}
	return id, nil
}

// IterTaskAvailable reports whether the ready set is non-empty
func (tm *TaskManager) IterTaskAvailable() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.ready) > 0
}

// IterDone records a task's completion and moves every child whose
// dependencies are all satisfied into the ready set.
func (tm *TaskManager) IterDone(id TaskID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, ok := tm.assigned[id]; !ok {
		return fmt.Errorf("task id %d was not assigned: %w", id, ErrInvalidArgument)
	}
	delete(tm.assigned, id)
	tm.doneCount[id]++
	for _, c := range tm.children[id] {
		tm.pendingCount[c]--
		if tm.pendingCount[c] == 0 {
			tm.ready = append(tm.ready, c)
			tm.pendingTotal--
		}
	}
	return nil
}

// IterComplete reports whether the ready, assigned, and pending sets are
// all empty
func (tm *TaskManager) IterComplete() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.ready) == 0 && len(tm.assigned) == 0 && tm.pendingTotal == 0
}

// IterAssignedCount returns the number of tasks handed to workers and
// not yet reported done
func (tm *TaskManager) IterAssignedCount() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.assigned)
}

// DoneCount returns how many times a task completed in the current
// iteration. Used by tests to verify iteration completeness.
func (tm *TaskManager) DoneCount(id TaskID) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.doneCount[id]
}
