package graph

import (
	"fmt"

	"github.com/flocksim/flock/exe"
	"github.com/flocksim/flock/model"
)

// BranchSpec names one gated function of a condition task, in branch
// declaration order.
type BranchSpec struct {
	FunctionTask string
	Condition    *model.Condition
}

// TaskSpec describes one task of the compiled DAG. The simulation layer
// turns specs into runnable tasks with bodies bound to its memory and
// board registries.
type TaskSpec struct {
	Type  exe.TaskType
	Name  string
	Owner string // owning agent or message name

	// Function is set for function tasks
	Function *model.Function

	// Branches is set for condition tasks
	Branches []BranchSpec

	// GatedBy names the condition task gating this function task, with
	// BranchIndex selecting which branch this function is. Empty when
	// the function is unconditional or its precondition stands alone.
	GatedBy     string
	BranchIndex int

	// Vars holds the columns a pop-write task flushes
	Vars []string

	ReadVars  []string
	WriteVars []string
	ReadMsgs  []string
	PostMsgs  []string
}

// Dep is one dependency edge of the reduced DAG, by spec index
type Dep struct {
	From, To int
}

// CompiledGraph is the reduced, acyclic execution graph produced by
// Compile. It is immutable.
type CompiledGraph struct {
	modelName string
	specs     []TaskSpec
	deps      []Dep
}

// ModelName returns the compiled model's name
func (cg *CompiledGraph) ModelName() string { return cg.modelName }

// Specs returns the task specifications in creation order
func (cg *CompiledGraph) Specs() []TaskSpec { return cg.specs }

// Deps returns the reduced dependency edges
func (cg *CompiledGraph) Deps() []Dep { return cg.deps }

// SpecByName returns the spec with the given task name, or nil
func (cg *CompiledGraph) SpecByName(name string) *TaskSpec {
	for i := range cg.specs {
		if cg.specs[i].Name == name {
			return &cg.specs[i]
		}
	}
	return nil
}

// Compile turns a validated model into the reduced task DAG. Stages:
// per-agent state graphs, conditional-state lift, state contraction,
// data-dependency analysis, state-edge elimination, pop-write and
// message-task insertion, and transitive reduction. Any cycle aborts
// compilation with the offending vertices.
func Compile(m *model.Model) (*CompiledGraph, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	g := &workGraph{}
	start := g.addVertex(vertex{kind: kindStart, name: "start_model"})
	finish := g.addVertex(vertex{kind: kindFinish, name: "finish_model"})

	// stages 1-5 per agent
	for _, a := range m.Agents {
		sg, err := buildStateGraph(g, a)
		if err != nil {
			return nil, err
		}
		if err := sg.liftConditions(); err != nil {
			return nil, err
		}
		sg.contractStates()

		var taskVerts []VertexID
		for id := range g.vertices {
			v := &g.vertices[id]
			if v.agent == a.Name && (v.kind == kindFunction || v.kind == kindCondition) {
				taskVerts = append(taskVerts, VertexID(id))
			}
		}
		order, err := topoOrder(g, taskVerts)
		if err != nil {
			return nil, err
		}
		finalWriters := newDependencyAnalyser(g, a, start).run(order)

		// stage 6: one pop-write per agent variable, fed by the final
		// writers and feeding the finish marker
		for _, decl := range a.Memory {
			pw := g.addVertex(vertex{
				kind:  kindPopWrite,
				name:  fmt.Sprintf("pop_write_%s_%s", a.Name, decl.Name),
				agent: a.Name,
				vars:  []string{decl.Name},
			})
			for _, w := range finalWriters[decl.Name] {
				g.addEdge(w, pw, edgeData)
			}
			g.addEdge(pw, finish, edgeData)
		}
	}

	// stage 7: message sync and clear brackets
	if err := insertMessageTasks(g, m, start, finish); err != nil {
		return nil, err
	}

	// stage 5 (deferred until message redirection saw the state
	// structure is gone): drop pure state-sync edges
	dropStateEdges(g)

	// connectivity: every live vertex hangs off start and reaches finish
	ensureConnected(g, start, finish)

	if cycle := findCycle(g); cycle != nil {
		return nil, fmt.Errorf("execution graph cycle through %v: %w", cycle, model.ErrModelValidation)
	}

	// stage 8
	transitiveReduction(g)

	return emit(g, m)
}

// insertMessageTasks creates one sync and one clear task per referenced
// message and brackets every reader between them: each poster precedes
// the sync, each reader runs after the sync and before the clear, and
// the clear never precedes its sync.
func insertMessageTasks(g *workGraph, m *model.Model, start, finish VertexID) error {
	type msgIO struct {
		posters []VertexID
		readers []VertexID
	}
	refs := make(map[string]*msgIO)

	for id := range g.vertices {
		v := &g.vertices[id]
		if v.kind != kindFunction {
			continue
		}
		for _, msg := range v.fn.Outputs {
			if refs[msg] == nil {
				refs[msg] = &msgIO{}
			}
			refs[msg].posters = append(refs[msg].posters, VertexID(id))
		}
		for _, msg := range v.fn.Inputs {
			if refs[msg] == nil {
				refs[msg] = &msgIO{}
			}
			refs[msg].readers = append(refs[msg].readers, VertexID(id))
		}
	}

	for _, msg := range m.Messages {
		io, referenced := refs[msg.Name]
		if !referenced {
			continue
		}
		syncID := g.addVertex(vertex{
			kind:  kindMsgSync,
			name:  fmt.Sprintf("sync_%s", msg.Name),
			agent: msg.Name,
		})
		clearID := g.addVertex(vertex{
			kind:  kindMsgClear,
			name:  fmt.Sprintf("clear_%s", msg.Name),
			agent: msg.Name,
		})

		for _, p := range io.posters {
			g.addEdge(p, syncID, edgeData)
		}
		if len(io.posters) == 0 {
			g.addEdge(start, syncID, edgeData)
		}
		for _, r := range io.readers {
			g.addEdge(syncID, r, edgeData)
			g.addEdge(r, clearID, edgeData)
		}
		g.addEdge(syncID, clearID, edgeData)
		g.addEdge(clearID, finish, edgeData)
	}
	return nil
}

// ensureConnected gives every live vertex a path from start and to
// finish, so the DAG stays connected even for tasks with no data
// neighbors.
func ensureConnected(g *workGraph, start, finish VertexID) {
	hasIn := make([]bool, len(g.vertices))
	hasOut := make([]bool, len(g.vertices))
	for _, e := range g.edges {
		hasIn[e.to] = true
		hasOut[e.from] = true
	}
	for id := range g.vertices {
		v := &g.vertices[id]
		if v.kind == kindState || v.kind == kindStart || v.kind == kindFinish {
			continue
		}
		if !hasIn[id] {
			g.addEdge(start, VertexID(id), edgeData)
		}
		if !hasOut[id] {
			g.addEdge(VertexID(id), finish, edgeData)
		}
	}
	g.addEdge(start, finish, edgeData)
}

// findCycle returns the names of one dependency cycle, or nil
func findCycle(g *workGraph) []string {
	succ := make([][]VertexID, len(g.vertices))
	for _, e := range g.edges {
		succ[e.from] = append(succ[e.from], e.to)
	}

	const (
		unvisited = 0
		inStack   = 1
		closed    = 2
	)
	state := make([]int, len(g.vertices))
	var cycle []string

	var visit func(id VertexID, trail []VertexID) bool
	visit = func(id VertexID, trail []VertexID) bool {
		state[id] = inStack
		trail = append(trail, id)
		for _, c := range succ[id] {
			switch state[c] {
			case inStack:
				for i, t := range trail {
					if t == c {
						for _, v := range trail[i:] {
							cycle = append(cycle, g.vertices[v].name)
						}
						return true
					}
				}
			case unvisited:
				if visit(c, trail) {
					return true
				}
			}
		}
		state[id] = closed
		return false
	}

	for id := range g.vertices {
		if state[id] == unvisited {
			if visit(VertexID(id), nil) {
				return cycle
			}
		}
	}
	return nil
}

// emit converts the reduced working graph into the immutable compiled
// form, skipping detached state vertices.
func emit(g *workGraph, m *model.Model) (*CompiledGraph, error) {
	cg := &CompiledGraph{modelName: m.Name}
	index := make(map[VertexID]int)

	for id := range g.vertices {
		v := &g.vertices[id]
		if v.kind == kindState {
			continue
		}
		spec := TaskSpec{Name: v.name, Owner: v.agent, BranchIndex: -1}
		switch v.kind {
		case kindStart:
			spec.Type = exe.TaskStartModel
		case kindFinish:
			spec.Type = exe.TaskFinishModel
		case kindFunction:
			spec.Type = exe.TaskFunction
			spec.Function = v.fn
			spec.ReadVars = v.fn.ReadVars()
			spec.WriteVars = v.fn.WriteVars()
			spec.ReadMsgs = append([]string(nil), v.fn.Inputs...)
			spec.PostMsgs = append([]string(nil), v.fn.Outputs...)
			if v.fn.Condition != nil {
				spec.ReadVars = mergeNames(spec.ReadVars, v.fn.Condition.ReferencedVars())
			}
		case kindCondition:
			spec.Type = exe.TaskCondition
			for _, b := range v.branches {
				bv := &g.vertices[b]
				spec.Branches = append(spec.Branches, BranchSpec{
					FunctionTask: bv.name,
					Condition:    bv.fn.Condition,
				})
				spec.ReadVars = mergeNames(spec.ReadVars, bv.fn.Condition.ReferencedVars())
			}
		case kindMsgSync:
			spec.Type = exe.TaskMsgSync
		case kindMsgClear:
			spec.Type = exe.TaskMsgClear
		case kindPopWrite:
			spec.Type = exe.TaskPopWrite
			spec.Vars = append([]string(nil), v.vars...)
			spec.ReadVars = append([]string(nil), v.vars...)
		}
		index[VertexID(id)] = len(cg.specs)
		cg.specs = append(cg.specs, spec)
	}

	// wire the gating references: each branch function records its
	// condition task and branch position
	for id := range g.vertices {
		v := &g.vertices[id]
		if v.kind != kindCondition {
			continue
		}
		condSpec := &cg.specs[index[VertexID(id)]]
		for bi, b := range v.branches {
			fnSpec := &cg.specs[index[b]]
			fnSpec.GatedBy = condSpec.Name
			fnSpec.BranchIndex = bi
		}
	}

	for _, e := range g.edges {
		from, okF := index[e.from]
		to, okT := index[e.to]
		if !okF || !okT {
			return nil, fmt.Errorf("edge references a contracted state vertex: %w", model.ErrModelValidation)
		}
		cg.deps = append(cg.deps, Dep{From: from, To: to})
	}
	return cg, nil
}
