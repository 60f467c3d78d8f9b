package sim

import (
	"fmt"

	"github.com/flocksim/flock/exe"
	"github.com/flocksim/flock/graph"
	"github.com/flocksim/flock/mb"
	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/model"
	"github.com/flocksim/flock/pop"
)

// popColumn packages one agent variable's vector into the pop.Column
// shape expected by a snapshot writer.
func popColumn(owner, varName string, vec *mem.Vector) pop.Column {
	return pop.Column{
		Agent:   owner,
		Var:     varName,
		Tag:     vec.Tag(),
		Ints:    vec.Ints(),
		Doubles: vec.Doubles(),
	}
}

// Setup turns the compiled graph into runnable tasks, finalizes the
// DAG, and starts the scheduler's worker pools. After Setup the engine
// is immutable except for running iterations.
func (e *Engine) Setup() error {
	if e.ready {
		return ErrAlreadySetup
	}
	if e.compiled == nil {
		return fmt.Errorf("setup before LoadModel: %w", ErrNotReady)
	}

	// every declared transition function needs an implementation
	for _, spec := range e.compiled.Specs() {
		if spec.Type == exe.TaskFunction {
			if _, ok := e.funcs[spec.Owner+"."+spec.Function.Name]; !ok {
				return fmt.Errorf("agent %q function %q: %w",
					spec.Owner, spec.Function.Name, ErrMissingFunction)
			}
		}
	}

	e.Tasks.OwnerCheck = func(typ exe.TaskType, owner string) error {
		switch typ {
		case exe.TaskFunction, exe.TaskCondition, exe.TaskPopWrite:
			if !e.Mem.IsRegistered(owner) {
				return mem.ErrUnknownAgent
			}
		case exe.TaskMsgSync, exe.TaskMsgClear:
			if !e.Boards.Exists(owner) {
				return mb.ErrUnknownMessage
			}
		}
		return nil
	}

	specs := e.compiled.Specs()
	ids := make([]exe.TaskID, len(specs))
	for i := range specs {
		id, err := e.createTask(&specs[i])
		if err != nil {
			return err
		}
		ids[i] = id
	}
	for _, d := range e.compiled.Deps() {
		if err := e.Tasks.AddDependency(ids[d.From], ids[d.To]); err != nil {
			return err
		}
	}
	if err := e.Tasks.Finalize(); err != nil {
		return err
	}

	e.sched = exe.NewScheduler(e.Tasks, exe.WithLogger(e.logger))
	split, err := exe.NewSplittingFIFOQueue(e.Tasks, e.slots)
	if err != nil {
		return err
	}
	if e.minVectorSize > 0 {
		if err := split.SetMinVectorSize(e.minVectorSize); err != nil {
			return err
		}
	}
	if e.maxTasksPerSplit > 0 {
		if err := split.SetMaxTasksPerSplit(e.maxTasksPerSplit); err != nil {
			return err
		}
	}
	serial, err := exe.NewFIFOQueue(e.Tasks, 1)
	if err != nil {
		return err
	}
	splitQ := e.sched.AddQueue(split)
	serialQ := e.sched.AddQueue(serial)

	for typ, qid := range map[exe.TaskType]exe.QueueID{
		exe.TaskFunction:    splitQ,
		exe.TaskCondition:   splitQ,
		exe.TaskMsgSync:     serialQ,
		exe.TaskMsgClear:    serialQ,
		exe.TaskPopWrite:    serialQ,
		exe.TaskStartModel:  serialQ,
		exe.TaskFinishModel: serialQ,
	} {
		if err := e.sched.AssignType(typ, qid); err != nil {
			return err
		}
	}

	e.ready = true
	e.logger.Debug("run %s: scheduler ready, %d slots, min window %d",
		e.runID, e.slots, e.minVectorSize)
	return nil
}

func (e *Engine) createTask(spec *graph.TaskSpec) (exe.TaskID, error) {
	switch spec.Type {
	case exe.TaskStartModel:
		return e.Tasks.CreateTask(spec.Type, spec.Name, "", e.startBody())
	case exe.TaskFinishModel:
		return e.Tasks.CreateTask(spec.Type, spec.Name, "", e.finishBody())
	case exe.TaskMsgSync:
		owner := spec.Owner
		return e.Tasks.CreateTask(spec.Type, spec.Name, owner, func(exe.Window) error {
			return e.Boards.Sync(owner)
		})
	case exe.TaskMsgClear:
		owner := spec.Owner
		return e.Tasks.CreateTask(spec.Type, spec.Name, owner, func(exe.Window) error {
			return e.Boards.Clear(owner)
		})
	case exe.TaskPopWrite:
		return e.popWriteTask(spec)
	case exe.TaskFunction:
		return e.functionTask(spec)
	case exe.TaskCondition:
		return e.conditionTask(spec)
	}
	return 0, fmt.Errorf("task %q has unknown type: %w", spec.Name, exe.ErrInvalidArgument)
}

// shadowFor builds the task's access-controlled view of its agent
func (e *Engine) shadowFor(spec *graph.TaskSpec) (*mem.Shadow, error) {
	sh, err := e.Mem.Shadow(spec.Owner)
	if err != nil {
		return nil, err
	}
	writable := make(map[string]struct{}, len(spec.WriteVars))
	for _, v := range spec.WriteVars {
		writable[v] = struct{}{}
	}
	for _, v := range spec.ReadVars {
		_, w := writable[v]
		if err := sh.Allow(v, w); err != nil {
			return nil, err
		}
	}
	return sh, nil
}

func windowIter(sh *mem.Shadow, w exe.Window) (*mem.MemoryIterator, error) {
	if w.Full() {
		return sh.IterWindow(0, sh.Size())
	}
	return sh.IterWindow(w.Offset, w.Count)
}

func (e *Engine) functionTask(spec *graph.TaskSpec) (exe.TaskID, error) {
	sh, err := e.shadowFor(spec)
	if err != nil {
		return 0, err
	}

	proxy := mb.NewProxy(e.Boards)
	for _, msg := range spec.ReadMsgs {
		if err := proxy.AllowRead(msg); err != nil {
			return 0, err
		}
	}
	for _, msg := range spec.PostMsgs {
		if err := proxy.AllowPost(msg); err != nil {
			return 0, err
		}
	}

	fn := e.funcs[spec.Owner+"."+spec.Function.Name]
	cond := spec.Function.Condition
	gatedBy := spec.GatedBy
	branch := int32(spec.BranchIndex)

	body := func(w exe.Window) error {
		it, err := windowIter(sh, w)
		if err != nil {
			return err
		}
		client := proxy.Client()

		var sel []int32
		if gatedBy != "" {
			sel = e.selections[gatedBy]
		}
		for ; !it.AtEnd(); it.Step() {
			if sel != nil {
				if sel[it.Row()] != branch {
					continue
				}
			} else if cond != nil {
				applies, err := cond.Evaluate(it)
				if err != nil {
					return err
				}
				if !applies {
					continue
				}
			}
			if err := fn(it, client); err != nil {
				return err
			}
		}
		return nil
	}

	return e.Tasks.CreateTask(spec.Type, spec.Name, spec.Owner, body,
		exe.WithPopulation(sh.Size),
		exe.WithVarAccess(spec.ReadVars, spec.WriteVars),
		exe.WithMsgAccess(spec.ReadMsgs, spec.PostMsgs),
	)
}

func (e *Engine) conditionTask(spec *graph.TaskSpec) (exe.TaskID, error) {
	sh, err := e.shadowFor(spec)
	if err != nil {
		return 0, err
	}

	name := spec.Name
	branches := make([]*model.Condition, len(spec.Branches))
	for i, b := range spec.Branches {
		branches[i] = b.Condition
	}
	e.condSizes[name] = sh.Size

	body := func(w exe.Window) error {
		it, err := windowIter(sh, w)
		if err != nil {
			return err
		}
		sel := e.selections[name]
		for ; !it.AtEnd(); it.Step() {
			pick := int32(-1)
			for i, cond := range branches {
				applies, err := cond.Evaluate(it)
				if err != nil {
					return err
				}
				if applies {
					pick = int32(i)
					break
				}
			}
			sel[it.Row()] = pick
		}
		return nil
	}

	return e.Tasks.CreateTask(spec.Type, spec.Name, spec.Owner, body,
		exe.WithPopulation(sh.Size),
		exe.WithVarAccess(spec.ReadVars, nil),
	)
}

func (e *Engine) popWriteTask(spec *graph.TaskSpec) (exe.TaskID, error) {
	am, err := e.Mem.Agent(spec.Owner)
	if err != nil {
		return 0, err
	}
	owner := spec.Owner
	vars := append([]string(nil), spec.Vars...)

	body := func(exe.Window) error {
		if e.writer == nil {
			return nil
		}
		for _, varName := range vars {
			vec, err := am.Vector(varName)
			if err != nil {
				return err
			}
			col := popColumn(owner, varName, vec)
			if err := e.writer.WriteColumn(col); err != nil {
				return err
			}
		}
		return nil
	}

	return e.Tasks.CreateTask(spec.Type, spec.Name, spec.Owner, body,
		exe.WithVarAccess(spec.ReadVars, nil),
	)
}

// startBody opens the iteration: column equality is asserted, condition
// selection vectors are sized to the current populations, and the
// snapshot writer is initialized. The start marker is the DAG's only
// root, so none of this races with other tasks.
func (e *Engine) startBody() exe.Body {
	return func(exe.Window) error {
		if err := e.Mem.CheckUniformSize(); err != nil {
			return err
		}
		for name, size := range e.condSizes {
			e.selections[name] = make([]int32, size())
		}
		if e.writer != nil {
			return e.writer.InitWrite(e.iteration)
		}
		return nil
	}
}

// finishBody closes the iteration: column equality is re-asserted and
// the snapshot is finalized.
func (e *Engine) finishBody() exe.Body {
	return func(exe.Window) error {
		if err := e.Mem.CheckUniformSize(); err != nil {
			return err
		}
		if e.writer != nil {
			return e.writer.FinalizeWrite()
		}
		return nil
	}
}
