package exe

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trace records task completion order under a lock
type trace struct {
	mu    sync.Mutex
	order []string
}

func (tr *trace) add(name string) {
	tr.mu.Lock()
	tr.order = append(tr.order, name)
	tr.mu.Unlock()
}

func (tr *trace) index(name string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for i, n := range tr.order {
		if n == name {
			return i
		}
	}
	return -1
}

func newScheduler(t *testing.T, tm *TaskManager) *Scheduler {
	t.Helper()
	s := NewScheduler(tm)
	split, err := NewSplittingFIFOQueue(tm, 4)
	require.NoError(t, err)
	plain, err := NewFIFOQueue(tm, 1)
	require.NoError(t, err)
	sq := s.AddQueue(split)
	pq := s.AddQueue(plain)
	require.NoError(t, s.AssignType(TaskFunction, sq))
	require.NoError(t, s.AssignType(TaskCondition, sq))
	require.NoError(t, s.AssignType(TaskMsgSync, pq))
	require.NoError(t, s.AssignType(TaskMsgClear, pq))
	require.NoError(t, s.AssignType(TaskPopWrite, pq))
	require.NoError(t, s.AssignType(TaskStartModel, pq))
	require.NoError(t, s.AssignType(TaskFinishModel, pq))
	t.Cleanup(s.Close)
	return s
}

func TestRunIterationRespectsDependencies(t *testing.T) {
	tm := NewTaskManager()
	tr := &trace{}
	mk := func(name string) TaskID {
		id, err := tm.CreateTask(TaskFunction, name, "A", func(Window) error {
			tr.add(name)
			return nil
		})
		require.NoError(t, err)
		return id
	}

	a, b, c, d := mk("a"), mk("b"), mk("c"), mk("d")
	require.NoError(t, tm.AddDependency(a, b))
	require.NoError(t, tm.AddDependency(a, c))
	require.NoError(t, tm.AddDependency(b, d))
	require.NoError(t, tm.AddDependency(c, d))
	require.NoError(t, tm.Finalize())

	s := newScheduler(t, tm)
	require.NoError(t, s.RunIteration())

	assert.Len(t, tr.order, 4)
	assert.Less(t, tr.index("a"), tr.index("b"))
	assert.Less(t, tr.index("a"), tr.index("c"))
	assert.Less(t, tr.index("b"), tr.index("d"))
	assert.Less(t, tr.index("c"), tr.index("d"))

	// the manager is reset for the next iteration
	assert.False(t, tm.IterComplete())
	require.NoError(t, s.RunIteration())
	assert.Len(t, tr.order, 8)
}

func TestRunIterationRequiresFinalize(t *testing.T) {
	tm := NewTaskManager()
	_, err := tm.CreateTask(TaskFunction, "f", "A", noop)
	require.NoError(t, err)

	s := newScheduler(t, tm)
	assert.ErrorIs(t, s.RunIteration(), ErrNotFinalized)
}

func TestRunIterationNoRoots(t *testing.T) {
	tm := NewTaskManager()
	require.NoError(t, tm.Finalize())

	s := newScheduler(t, tm)
	assert.ErrorIs(t, s.RunIteration(), ErrNoRunnableTasks)
}

func TestRunIterationUnassignedType(t *testing.T) {
	tm := NewTaskManager()
	_, err := tm.CreateTask(TaskFunction, "f", "A", noop)
	require.NoError(t, err)
	require.NoError(t, tm.Finalize())

	s := NewScheduler(tm)
	q, err := NewFIFOQueue(tm, 1)
	require.NoError(t, err)
	s.AddQueue(q)
	t.Cleanup(s.Close)

	assert.ErrorIs(t, s.RunIteration(), ErrUnassignedType)
}

func TestAssignTypeValidation(t *testing.T) {
	tm := NewTaskManager()
	s := NewScheduler(tm)
	q, err := NewFIFOQueue(tm, 1)
	require.NoError(t, err)
	qid := s.AddQueue(q)
	t.Cleanup(s.Close)

	require.NoError(t, s.AssignType(TaskFunction, qid))
	assert.ErrorIs(t, s.AssignType(TaskFunction, qid), ErrInvalidArgument)
	assert.ErrorIs(t, s.AssignType(TaskMsgSync, QueueID(9)), ErrInvalidArgument)
}

func TestRunIterationSurfacesTaskError(t *testing.T) {
	tm := NewTaskManager()
	boom := errors.New("user function failed")

	bad, err := tm.CreateTask(TaskFunction, "bad", "A", func(Window) error { return boom })
	require.NoError(t, err)
	after, err := tm.CreateTask(TaskFunction, "after", "A", func(Window) error {
		t.Error("dependent of a failed task must not run")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, tm.AddDependency(bad, after))
	require.NoError(t, tm.Finalize())

	s := newScheduler(t, tm)
	err = s.RunIteration()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "bad", taskErr.Name)
	assert.Equal(t, "A", taskErr.Owner)

	// the iteration state was reset despite the failure
	assert.False(t, tm.IterComplete())
}

func TestRunIterationSplitTaskCountsOnce(t *testing.T) {
	tm := NewTaskManager()
	var mu sync.Mutex
	covered := 0

	fid, err := tm.CreateTask(TaskFunction, "wide", "A", func(w Window) error {
		mu.Lock()
		covered += w.Count
		mu.Unlock()
		return nil
	}, WithPopulation(func() int { return 1000 }))
	require.NoError(t, err)

	done, err := tm.CreateTask(TaskFinishModel, "finish", "", nil)
	require.NoError(t, err)
	require.NoError(t, tm.AddDependency(fid, done))
	require.NoError(t, tm.Finalize())

	s := newScheduler(t, tm)
	require.NoError(t, s.RunIteration())

	assert.Equal(t, 1000, covered)
}
