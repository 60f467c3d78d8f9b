package exe

import (
	"errors"
	"fmt"
)

// TaskID is the stable identifier of a task within one task manager
type TaskID uint64

// TaskType tags a task with its origin and execution body kind. Each
// type is routed to exactly one queue once the scheduler starts.
type TaskType uint8

// The complete set of task types
const (
	// TaskFunction runs a user transition function over an agent window
	TaskFunction TaskType = iota
	// TaskCondition evaluates the lifted preconditions of a conditional
	// state over an agent window
	TaskCondition
	// TaskMsgSync merges a board's staged writers into its committed store
	TaskMsgSync
	// TaskMsgClear truncates a board's committed store
	TaskMsgClear
	// TaskPopWrite flushes agent variable columns to the population writer
	TaskPopWrite
	// TaskStartModel is the no-op marker opening an iteration
	TaskStartModel
	// TaskFinishModel is the no-op marker closing an iteration
	TaskFinishModel
)

// String returns the task type name used in logs and graph exports
func (t TaskType) String() string {
	switch t {
	case TaskFunction:
		return "function"
	case TaskCondition:
		return "condition"
	case TaskMsgSync:
		return "msg_sync"
	case TaskMsgClear:
		return "msg_clear"
	case TaskPopWrite:
		return "pop_write"
	case TaskStartModel:
		return "start_model"
	case TaskFinishModel:
		return "finish_model"
	}
	return fmt.Sprintf("task_type(%d)", uint8(t))
}

// Window bounds a data-parallel body to count agent rows starting at
// offset. A Window with Count == -1 (FullWindow) means the full
// population.
type Window struct {
	Offset int
	Count  int
}

// FullWindow runs the body over the whole population
var FullWindow = Window{Offset: 0, Count: -1}

// Full reports whether the window covers the whole population
func (w Window) Full() bool {
	return w.Count < 0
}

// Body is a task's executable payload. Splittable bodies are invoked
// concurrently with disjoint windows; all other bodies receive
// FullWindow exactly once per iteration.
type Body func(w Window) error

// Task is one vertex of the execution DAG. Tasks are immutable once the
// manager is finalized.
type Task struct {
	id    TaskID
	typ   TaskType
	name  string
	owner string // agent or message name
	body  Body

	// population reports the current row count of the owning agent;
	// the splitting queue consults it when subdividing. Nil for tasks
	// that never split.
	population func() int

	readVars  []string
	writeVars []string
	readMsgs  []string
	postMsgs  []string
}

// ID returns the stable task id
func (t *Task) ID() TaskID { return t.id }

// Type returns the task type tag
func (t *Task) Type() TaskType { return t.typ }

// Name returns the human-readable task name
func (t *Task) Name() string { return t.name }

// Owner returns the owning agent or message name
func (t *Task) Owner() string { return t.owner }

// ReadVars returns the agent variables the task reads
func (t *Task) ReadVars() []string { return t.readVars }

// WriteVars returns the agent variables the task writes
func (t *Task) WriteVars() []string { return t.writeVars }

// ReadMsgs returns the messages the task reads
func (t *Task) ReadMsgs() []string { return t.readMsgs }

// PostMsgs returns the messages the task posts
func (t *Task) PostMsgs() []string { return t.postMsgs }

// Population returns the owning agent's current row count, or 0 for
// tasks without a population
func (t *Task) Population() int {
	if t.population == nil {
		return 0
	}
	return t.population()
}

// Splittable reports whether the task may be subdivided into windows
func (t *Task) Splittable() bool {
	return t.typ == TaskFunction || t.typ == TaskCondition
}

// Run executes the task body over a window
func (t *Task) Run(w Window) error {
	if t.body == nil {
		return nil
	}
	return t.body(w)
}

// TaskError annotates a user-function failure with the task that raised
// it. Workers wrap errors in TaskError before surfacing them through the
// completion callback.
type TaskError struct {
	ID    TaskID
	Name  string
	Owner string
	Err   error
}

// Error implements the error interface
func (e *TaskError) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("task %q (agent %q): %v", e.Name, e.Owner, e.Err)
	}
	return fmt.Sprintf("task %q: %v", e.Name, e.Err)
}

// Unwrap exposes the wrapped error to errors.Is and errors.As
func (e *TaskError) Unwrap() error {
	return e.Err
}

var (
	// ErrAlreadyFinalized reports task creation or linking after finalize
	ErrAlreadyFinalized = errors.New("exe: already finalized")

	// ErrNotFinalized reports iteration operations before finalize
	ErrNotFinalized = errors.New("exe: not finalized")

	// ErrUnknownTask reports a lookup of a nonexistent task id
	ErrUnknownTask = errors.New("exe: unknown task")

	// ErrDuplicateName reports a task name collision
	ErrDuplicateName = errors.New("exe: duplicate name")

	// ErrWouldCycle reports a dependency edge that would close a cycle
	ErrWouldCycle = errors.New("exe: dependency would create a cycle")

	// ErrNoneAvailable reports a pop from an empty ready set
	ErrNoneAvailable = errors.New("exe: no task available")

	// ErrInvalidArgument reports a malformed argument
	ErrInvalidArgument = errors.New("exe: invalid argument")

	// ErrNoRunnableTasks reports an iteration started with no root tasks
	ErrNoRunnableTasks = errors.New("exe: no runnable tasks")

	// ErrUnassignedType reports a task type with no assigned queue
	ErrUnassignedType = errors.New("exe: task type not assigned to a queue")
)
