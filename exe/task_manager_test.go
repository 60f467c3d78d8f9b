package exe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(Window) error { return nil }

// diamond builds the DAG a -> {b, c} -> d and finalizes it
func diamond(t *testing.T) (*TaskManager, [4]TaskID) {
	t.Helper()
	tm := NewTaskManager()
	var ids [4]TaskID
	for i, name := range []string{"a", "b", "c", "d"} {
		id, err := tm.CreateTask(TaskFunction, name, "agent", noop)
		require.NoError(t, err)
		ids[i] = id
	}
	require.NoError(t, tm.AddDependency(ids[0], ids[1]))
	require.NoError(t, tm.AddDependency(ids[0], ids[2]))
	require.NoError(t, tm.AddDependency(ids[1], ids[3]))
	require.NoError(t, tm.AddDependency(ids[2], ids[3]))
	require.NoError(t, tm.Finalize())
	return tm, ids
}

func TestCreateTask(t *testing.T) {
	tm := NewTaskManager()

	id, err := tm.CreateTask(TaskFunction, "f1", "Circle", noop)
	require.NoError(t, err)

	task, err := tm.Task(id)
	require.NoError(t, err)
	assert.Equal(t, "f1", task.Name())
	assert.Equal(t, "Circle", task.Owner())
	assert.Equal(t, TaskFunction, task.Type())
	assert.True(t, task.Splittable())

	_, err = tm.CreateTask(TaskFunction, "f1", "Circle", noop)
	assert.ErrorIs(t, err, ErrDuplicateName)
	_, err = tm.CreateTask(TaskFunction, "", "Circle", noop)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	byName, err := tm.TaskByName("f1")
	require.NoError(t, err)
	assert.Same(t, task, byName)
	_, err = tm.TaskByName("ghost")
	assert.ErrorIs(t, err, ErrUnknownTask)
	_, err = tm.Task(99)
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestOwnerCheck(t *testing.T) {
	tm := NewTaskManager()
	tm.OwnerCheck = func(typ TaskType, owner string) error {
		if owner != "Circle" {
			return ErrInvalidArgument
		}
		return nil
	}

	_, err := tm.CreateTask(TaskFunction, "ok", "Circle", noop)
	require.NoError(t, err)
	_, err = tm.CreateTask(TaskFunction, "bad", "Square", noop)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAddDependency(t *testing.T) {
	tm := NewTaskManager()
	a, _ := tm.CreateTask(TaskFunction, "a", "x", noop)
	b, _ := tm.CreateTask(TaskFunction, "b", "x", noop)
	c, _ := tm.CreateTask(TaskFunction, "c", "x", noop)

	require.NoError(t, tm.AddDependency(a, b))
	require.NoError(t, tm.AddDependency(b, c))

	// duplicate edges collapse
	require.NoError(t, tm.AddDependency(a, b))
	assert.Len(t, tm.Children(a), 1)

	assert.ErrorIs(t, tm.AddDependency(a, 99), ErrUnknownTask)
	assert.ErrorIs(t, tm.AddDependency(a, a), ErrWouldCycle)
	assert.ErrorIs(t, tm.AddDependency(c, a), ErrWouldCycle)

	assert.True(t, tm.HasDependency(a, b))
	assert.False(t, tm.HasDependency(a, c))
	assert.Equal(t, []TaskID{a}, tm.Parents(b))
}

func TestFinalize(t *testing.T) {
	tm, ids := diamond(t)

	assert.True(t, tm.Finalized())
	assert.Equal(t, []TaskID{ids[0]}, tm.Roots())
	assert.Equal(t, []TaskID{ids[3]}, tm.Leaves())

	assert.ErrorIs(t, tm.Finalize(), ErrAlreadyFinalized)
	_, err := tm.CreateTask(TaskFunction, "late", "x", noop)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.ErrorIs(t, tm.AddDependency(ids[0], ids[3]), ErrAlreadyFinalized)
}

func TestIterationBookkeeping(t *testing.T) {
	tm, ids := diamond(t)

	assert.False(t, tm.IterComplete())
	assert.True(t, tm.IterTaskAvailable())

	// only the root is ready
	id, err := tm.IterPop()
	require.NoError(t, err)
	assert.Equal(t, ids[0], id)
	_, err = tm.IterPop()
	assert.ErrorIs(t, err, ErrNoneAvailable)

	// completing an unassigned task is rejected
	assert.ErrorIs(t, tm.IterDone(ids[3]), ErrInvalidArgument)

	require.NoError(t, tm.IterDone(ids[0]))
	assert.Equal(t, 1, tm.DoneCount(ids[0]))

	// b and c are now ready
	first, err := tm.IterPop()
	require.NoError(t, err)
	second, err := tm.IterPop()
	require.NoError(t, err)
	assert.ElementsMatch(t, []TaskID{ids[1], ids[2]}, []TaskID{first, second})

	// d stays pending until both parents are done
	require.NoError(t, tm.IterDone(first))
	assert.False(t, tm.IterTaskAvailable())
	require.NoError(t, tm.IterDone(second))
	assert.True(t, tm.IterTaskAvailable())

	last, err := tm.IterPop()
	require.NoError(t, err)
	assert.Equal(t, ids[3], last)
	require.NoError(t, tm.IterDone(last))

	assert.True(t, tm.IterComplete())
	for _, id := range ids {
		assert.Equal(t, 1, tm.DoneCount(id))
	}

	// reset restores the initial iteration state
	tm.IterReset()
	assert.False(t, tm.IterComplete())
	id, err = tm.IterPop()
	require.NoError(t, err)
	assert.Equal(t, ids[0], id)
	assert.Equal(t, 0, tm.DoneCount(ids[0]))
}

func TestFinalizeDetectsCycle(t *testing.T) {
	// AddDependency refuses cycles edge by edge, so build one behind
	// its back to exercise the finalize-time recheck
	tm := NewTaskManager()
	a, _ := tm.CreateTask(TaskFunction, "a", "x", noop)
	b, _ := tm.CreateTask(TaskFunction, "b", "x", noop)
	require.NoError(t, tm.AddDependency(a, b))
	tm.children[b] = append(tm.children[b], a)
	tm.parents[a] = append(tm.parents[a], b)

	assert.ErrorIs(t, tm.Finalize(), ErrWouldCycle)
}

func TestTaskAccessSets(t *testing.T) {
	tm := NewTaskManager()
	id, err := tm.CreateTask(TaskFunction, "f", "Circle", noop,
		WithVarAccess([]string{"x", "y"}, []string{"y"}),
		WithMsgAccess([]string{"in"}, []string{"out"}),
		WithPopulation(func() int { return 42 }),
	)
	require.NoError(t, err)

	task, err := tm.Task(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, task.ReadVars())
	assert.Equal(t, []string{"y"}, task.WriteVars())
	assert.Equal(t, []string{"in"}, task.ReadMsgs())
	assert.Equal(t, []string{"out"}, task.PostMsgs())
	assert.Equal(t, 42, task.Population())
}
