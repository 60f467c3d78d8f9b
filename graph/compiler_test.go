package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocksim/flock/exe"
	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/model"
)

// singleFunctionModel is the smallest runnable model: one agent, one
// function computing z = x * y.
func singleFunctionModel() *model.Model {
	return &model.Model{
		Name: "circles",
		Agents: []*model.Agent{{
			Name: "Circle",
			Memory: []model.VarDecl{
				{Name: "x_int", Type: mem.TypeInt},
				{Name: "y_dbl", Type: mem.TypeDouble},
				{Name: "z_dbl", Type: mem.TypeDouble},
			},
			Functions: []*model.Function{{
				Name:         "multiply",
				CurrentState: "start",
				NextState:    "end",
				Vars: []model.VarAccess{
					{Name: "x_int", Mode: model.ReadOnly},
					{Name: "y_dbl", Mode: model.ReadOnly},
					{Name: "z_dbl", Mode: model.ReadWrite},
				},
			}},
		}},
	}
}

func (cgIndex cgLookup) depExists(from, to string) bool {
	fi, ok := cgIndex.byName[from]
	if !ok {
		return false
	}
	ti, ok := cgIndex.byName[to]
	if !ok {
		return false
	}
	for _, d := range cgIndex.cg.deps {
		if d.From == fi && d.To == ti {
			return true
		}
	}
	return false
}

type cgLookup struct {
	cg     *CompiledGraph
	byName map[string]int
}

func lookup(cg *CompiledGraph) cgLookup {
	byName := make(map[string]int)
	for i, s := range cg.specs {
		byName[s.Name] = i
	}
	return cgLookup{cg: cg, byName: byName}
}

// reaches reports whether a path from -> to exists in the reduced DAG
func (cgIndex cgLookup) reaches(from, to string) bool {
	fi, okF := cgIndex.byName[from]
	ti, okT := cgIndex.byName[to]
	if !okF || !okT {
		return false
	}
	succ := make(map[int][]int)
	for _, d := range cgIndex.cg.deps {
		succ[d.From] = append(succ[d.From], d.To)
	}
	stack := []int{fi}
	seen := map[int]struct{}{}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == ti {
			return true
		}
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		stack = append(stack, succ[cur]...)
	}
	return false
}

func TestCompileSingleFunction(t *testing.T) {
	cg, err := Compile(singleFunctionModel())
	require.NoError(t, err)

	l := lookup(cg)
	// start, finish, the function, and one pop-write per variable
	assert.Contains(t, l.byName, "start_model")
	assert.Contains(t, l.byName, "finish_model")
	assert.Contains(t, l.byName, "Circle_multiply")
	assert.Contains(t, l.byName, "pop_write_Circle_x_int")
	assert.Contains(t, l.byName, "pop_write_Circle_y_dbl")
	assert.Contains(t, l.byName, "pop_write_Circle_z_dbl")
	assert.Len(t, cg.specs, 6)

	fn := cg.SpecByName("Circle_multiply")
	require.NotNil(t, fn)
	assert.Equal(t, exe.TaskFunction, fn.Type)
	assert.Equal(t, "Circle", fn.Owner)
	assert.ElementsMatch(t, []string{"x_int", "y_dbl", "z_dbl"}, fn.ReadVars)
	assert.Equal(t, []string{"z_dbl"}, fn.WriteVars)
	assert.Empty(t, fn.GatedBy)

	// the function writes z_dbl, so its pop-write depends on it
	assert.True(t, l.reaches("start_model", "Circle_multiply"))
	assert.True(t, l.depExists("Circle_multiply", "pop_write_Circle_z_dbl"))
	assert.True(t, l.reaches("Circle_multiply", "finish_model"))

	// x_int is never written: its pop-write hangs off the start marker
	assert.True(t, l.reaches("start_model", "pop_write_Circle_x_int"))
}

func TestCompileRejectsInvalidModel(t *testing.T) {
	m := singleFunctionModel()
	m.Agents[0].Memory = nil
	_, err := Compile(m)
	assert.ErrorIs(t, err, model.ErrModelValidation)
}

func TestCompileSequentialDataDependency(t *testing.T) {
	m := singleFunctionModel()
	// add a second function after multiply that reads z_dbl
	m.Agents[0].Functions = append(m.Agents[0].Functions, &model.Function{
		Name:         "consume",
		CurrentState: "end",
		NextState:    "done",
		Vars: []model.VarAccess{
			{Name: "z_dbl", Mode: model.ReadOnly},
		},
	})

	cg, err := Compile(m)
	require.NoError(t, err)
	l := lookup(cg)

	// read-after-write: consume depends on multiply
	assert.True(t, l.depExists("Circle_multiply", "Circle_consume"))
	// write-after-read would now block a rewrite; the pop-write for
	// z_dbl still depends only on its last writer
	assert.True(t, l.reaches("Circle_multiply", "pop_write_Circle_z_dbl"))
}

func TestCompileWriteAfterRead(t *testing.T) {
	m := singleFunctionModel()
	// reader of x_int, then a writer of x_int
	m.Agents[0].Functions = append(m.Agents[0].Functions,
		&model.Function{
			Name:         "read_x",
			CurrentState: "end",
			NextState:    "mid",
			Vars:         []model.VarAccess{{Name: "x_int", Mode: model.ReadOnly}},
		},
		&model.Function{
			Name:         "write_x",
			CurrentState: "mid",
			NextState:    "done",
			Vars:         []model.VarAccess{{Name: "x_int", Mode: model.ReadWrite}},
		},
	)

	cg, err := Compile(m)
	require.NoError(t, err)
	l := lookup(cg)

	// write-after-read ordering
	assert.True(t, l.reaches("Circle_read_x", "Circle_write_x"))
	// pop-write follows the final writer
	assert.True(t, l.depExists("Circle_write_x", "pop_write_Circle_x_int"))
}

// conditionalModel declares S -> {f1 | f2} -> E gated on x
func conditionalModel() *model.Model {
	m := singleFunctionModel()
	agent := m.Agents[0]
	agent.Functions = []*model.Function{
		{
			Name:         "f1",
			CurrentState: "S",
			NextState:    "E",
			Condition:    model.Compare(model.AgentVar("x_int"), model.OpGT, model.Literal(0)),
			Vars:         []model.VarAccess{{Name: "z_dbl", Mode: model.ReadWrite}},
		},
		{
			Name:         "f2",
			CurrentState: "S",
			NextState:    "E",
			Condition:    model.Compare(model.AgentVar("x_int"), model.OpLEQ, model.Literal(0)),
			Vars:         []model.VarAccess{{Name: "y_dbl", Mode: model.ReadWrite}},
		},
	}
	return m
}

func TestCompileConditionalStateLift(t *testing.T) {
	cg, err := Compile(conditionalModel())
	require.NoError(t, err)
	l := lookup(cg)

	cond := cg.SpecByName("Circle_S_condition")
	require.NotNil(t, cond)
	assert.Equal(t, exe.TaskCondition, cond.Type)
	require.Len(t, cond.Branches, 2)
	assert.ElementsMatch(t,
		[]string{"Circle_f1", "Circle_f2"},
		[]string{cond.Branches[0].FunctionTask, cond.Branches[1].FunctionTask})
	assert.Equal(t, []string{"x_int"}, cond.ReadVars)

	// both branches are gated by the condition and depend on it
	f1 := cg.SpecByName("Circle_f1")
	require.NotNil(t, f1)
	assert.Equal(t, "Circle_S_condition", f1.GatedBy)
	assert.True(t, l.depExists("Circle_S_condition", "Circle_f1"))
	assert.True(t, l.depExists("Circle_S_condition", "Circle_f2"))

	f2 := cg.SpecByName("Circle_f2")
	require.NotNil(t, f2)
	assert.NotEqual(t, f1.BranchIndex, f2.BranchIndex)
}

func TestCompileConditionalStateMissingCondition(t *testing.T) {
	m := conditionalModel()
	m.Agents[0].Functions[1].Condition = nil

	_, err := Compile(m)
	assert.ErrorIs(t, err, model.ErrModelValidation)
}

func TestCompileSameStateWriteConflictNamesVariable(t *testing.T) {
	// two unconditioned functions on the same state, both writing z_dbl
	m := conditionalModel()
	m.Agents[0].Functions[0].Condition = nil
	m.Agents[0].Functions[1].Condition = nil
	m.Agents[0].Functions[1].Vars = []model.VarAccess{{Name: "z_dbl", Mode: model.ReadWrite}}

	_, err := Compile(m)
	require.ErrorIs(t, err, model.ErrModelValidation)
	assert.Contains(t, err.Error(), "z_dbl")
}

func TestCompileAmbiguousStartState(t *testing.T) {
	m := singleFunctionModel()
	m.Agents[0].Functions = append(m.Agents[0].Functions, &model.Function{
		Name:         "orphan",
		CurrentState: "elsewhere",
		NextState:    "nowhere",
		Vars:         []model.VarAccess{{Name: "x_int", Mode: model.ReadOnly}},
	})

	_, err := Compile(m)
	assert.ErrorIs(t, err, model.ErrModelValidation)
}

// messageModel wires two agents through a message board: A posts m, B
// reads m.
func messageModel() *model.Model {
	return &model.Model{
		Name: "pingpong",
		Agents: []*model.Agent{
			{
				Name:   "A",
				Memory: []model.VarDecl{{Name: "v", Type: mem.TypeInt}},
				Functions: []*model.Function{{
					Name:         "post_m",
					CurrentState: "start",
					NextState:    "end",
					Outputs:      []string{"m"},
					Vars:         []model.VarAccess{{Name: "v", Mode: model.ReadOnly}},
				}},
			},
			{
				Name:   "B",
				Memory: []model.VarDecl{{Name: "count_m", Type: mem.TypeInt}},
				Functions: []*model.Function{{
					Name:         "read_m",
					CurrentState: "start",
					NextState:    "end",
					Inputs:       []string{"m"},
					Vars:         []model.VarAccess{{Name: "count_m", Mode: model.ReadWrite}},
				}},
			},
		},
		Messages: []*model.Message{
			{Name: "m", Vars: []model.VarDecl{{Name: "v", Type: mem.TypeInt}}},
		},
	}
}

func TestCompileMessageBrackets(t *testing.T) {
	cg, err := Compile(messageModel())
	require.NoError(t, err)
	l := lookup(cg)

	sync := cg.SpecByName("sync_m")
	clear := cg.SpecByName("clear_m")
	require.NotNil(t, sync)
	require.NotNil(t, clear)
	assert.Equal(t, exe.TaskMsgSync, sync.Type)
	assert.Equal(t, exe.TaskMsgClear, clear.Type)
	assert.Equal(t, "m", sync.Owner)

	// poster -> sync -> reader -> clear
	assert.True(t, l.depExists("A_post_m", "sync_m"))
	assert.True(t, l.depExists("sync_m", "B_read_m"))
	assert.True(t, l.depExists("B_read_m", "clear_m"))
	// the clear cannot precede the sync even without the reader
	assert.True(t, l.reaches("sync_m", "clear_m"))
}

func TestCompileUnreferencedMessageGetsNoTasks(t *testing.T) {
	m := messageModel()
	m.Messages = append(m.Messages, &model.Message{
		Name: "silent",
		Vars: []model.VarDecl{{Name: "q", Type: mem.TypeInt}},
	})

	cg, err := Compile(m)
	require.NoError(t, err)
	assert.Nil(t, cg.SpecByName("sync_silent"))
	assert.Nil(t, cg.SpecByName("clear_silent"))
}

func TestCompileMessageCycleReported(t *testing.T) {
	// one agent reads m then posts m later on the same path: the sync
	// must follow the poster but precede the reader, which precedes the
	// poster. That is a cycle and must be reported.
	m := &model.Model{
		Name: "cyclic",
		Agents: []*model.Agent{{
			Name:   "A",
			Memory: []model.VarDecl{{Name: "v", Type: mem.TypeInt}},
			Functions: []*model.Function{
				{
					Name:         "read_m",
					CurrentState: "start",
					NextState:    "mid",
					Inputs:       []string{"m"},
					Vars:         []model.VarAccess{{Name: "v", Mode: model.ReadWrite}},
				},
				{
					Name:         "post_m",
					CurrentState: "mid",
					NextState:    "end",
					Outputs:      []string{"m"},
					Vars:         []model.VarAccess{{Name: "v", Mode: model.ReadOnly}},
				},
			},
		}},
		Messages: []*model.Message{
			{Name: "m", Vars: []model.VarDecl{{Name: "v", Type: mem.TypeInt}}},
		},
	}

	_, err := Compile(m)
	require.ErrorIs(t, err, model.ErrModelValidation)
	assert.Contains(t, err.Error(), "cycle")
}

func TestCompileTransitiveReduction(t *testing.T) {
	m := singleFunctionModel()
	m.Agents[0].Functions = append(m.Agents[0].Functions,
		&model.Function{
			Name:         "second",
			CurrentState: "end",
			NextState:    "third",
			Vars:         []model.VarAccess{{Name: "z_dbl", Mode: model.ReadWrite}},
		},
		&model.Function{
			Name:         "third",
			CurrentState: "third",
			NextState:    "done",
			Vars:         []model.VarAccess{{Name: "z_dbl", Mode: model.ReadWrite}},
		},
	)

	cg, err := Compile(m)
	require.NoError(t, err)
	l := lookup(cg)

	// multiply -> second -> third remain; the implied multiply -> third
	// edge is reduced away
	assert.True(t, l.depExists("Circle_multiply", "Circle_second"))
	assert.True(t, l.depExists("Circle_second", "Circle_third"))
	assert.False(t, l.depExists("Circle_multiply", "Circle_third"))
}

func TestCompiledGraphIsAcyclic(t *testing.T) {
	for _, m := range []*model.Model{singleFunctionModel(), conditionalModel(), messageModel()} {
		cg, err := Compile(m)
		require.NoError(t, err)

		// feed the deps into a task manager; Finalize re-runs the cycle
		// check
		tm := exe.NewTaskManager()
		ids := make([]exe.TaskID, len(cg.Specs()))
		for i, s := range cg.Specs() {
			id, err := tm.CreateTask(s.Type, s.Name, s.Owner, nil)
			require.NoError(t, err)
			ids[i] = id
		}
		for _, d := range cg.Deps() {
			require.NoError(t, tm.AddDependency(ids[d.From], ids[d.To]))
		}
		require.NoError(t, tm.Finalize())
	}
}
