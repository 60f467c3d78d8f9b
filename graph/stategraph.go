package graph

import (
	"fmt"

	"github.com/flocksim/flock/model"
)

// VertexID indexes a vertex within one working graph arena
type VertexID int

type vertexKind uint8

const (
	kindFunction vertexKind = iota
	kindState
	kindCondition
	kindStart
	kindFinish
	kindMsgSync
	kindMsgClear
	kindPopWrite
)

type edgeKind uint8

const (
	edgeState edgeKind = iota
	edgeData
)

// vertex is one node of the working graph. Vertices live in an arena and
// refer to each other by index; there are no back-pointers to chase or
// deep-copy.
type vertex struct {
	kind  vertexKind
	name  string
	agent string // owning agent or message name
	fn    *model.Function

	// branches holds the gated functions of a condition vertex in
	// declaration order
	branches []VertexID

	// vars holds the columns a pop-write vertex flushes
	vars []string
}

type edge struct {
	from, to VertexID
	kind     edgeKind
}

// workGraph is the mutable graph the compiler stages operate on
type workGraph struct {
	vertices []vertex
	edges    []edge
}

func (g *workGraph) addVertex(v vertex) VertexID {
	g.vertices = append(g.vertices, v)
	return VertexID(len(g.vertices) - 1)
}

func (g *workGraph) addEdge(from, to VertexID, kind edgeKind) {
	for _, e := range g.edges {
		if e.from == from && e.to == to && e.kind == kind {
			return
		}
	}
	g.edges = append(g.edges, edge{from: from, to: to, kind: kind})
}

func (g *workGraph) out(id VertexID) []VertexID {
	var result []VertexID
	for _, e := range g.edges {
		if e.from == id {
			result = append(result, e.to)
		}
	}
	return result
}

func (g *workGraph) in(id VertexID) []VertexID {
	var result []VertexID
	for _, e := range g.edges {
		if e.to == id {
			result = append(result, e.from)
		}
	}
	return result
}

// stateGraph builds the per-agent state graph: one function vertex per
// transition function, one state vertex per state label, with state
// edges current_state -> function -> next_state.
type stateGraph struct {
	graph    *workGraph
	agent    *model.Agent
	states   map[string]VertexID
	start    VertexID
	ends     []VertexID
	funcByID map[VertexID]*model.Function
}

func buildStateGraph(g *workGraph, a *model.Agent) (*stateGraph, error) {
	sg := &stateGraph{
		graph:    g,
		agent:    a,
		states:   make(map[string]VertexID),
		funcByID: make(map[VertexID]*model.Function),
	}

	for _, fn := range a.Functions {
		fnID := g.addVertex(vertex{
			kind:  kindFunction,
			name:  fmt.Sprintf("%s_%s", a.Name, fn.Name),
			agent: a.Name,
			fn:    fn,
		})
		sg.funcByID[fnID] = fn

		cur := sg.stateVertex(fn.CurrentState)
		next := sg.stateVertex(fn.NextState)
		g.addEdge(cur, fnID, edgeState)
		g.addEdge(fnID, next, edgeState)
	}

	if err := sg.findStartAndEnds(); err != nil {
		return nil, err
	}
	return sg, nil
}

func (sg *stateGraph) stateVertex(name string) VertexID {
	if id, ok := sg.states[name]; ok {
		return id
	}
	id := sg.graph.addVertex(vertex{
		kind:  kindState,
		name:  fmt.Sprintf("%s_state_%s", sg.agent.Name, name),
		agent: sg.agent.Name,
	})
	sg.states[name] = id
	return id
}

// findStartAndEnds identifies the unique start state (no incoming
// function edge) and the non-empty end state set (no outgoing function
// edge).
func (sg *stateGraph) findStartAndEnds() error {
	var starts []VertexID
	for _, id := range sg.states {
		if len(sg.graph.in(id)) == 0 {
			starts = append(starts, id)
		}
		if len(sg.graph.out(id)) == 0 {
			sg.ends = append(sg.ends, id)
		}
	}
	if len(starts) != 1 {
		return fmt.Errorf("agent %q has %d start states, expected exactly one: %w",
			sg.agent.Name, len(starts), model.ErrModelValidation)
	}
	if len(sg.ends) == 0 {
		return fmt.Errorf("agent %q has no end state: %w", sg.agent.Name, model.ErrModelValidation)
	}
	sg.start = starts[0]

	// every state must be reachable from the start state
	reach := map[VertexID]struct{}{sg.start: {}}
	stack := []VertexID{sg.start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range sg.graph.out(cur) {
			if _, seen := reach[next]; !seen {
				reach[next] = struct{}{}
				stack = append(stack, next)
			}
		}
	}
	for name, id := range sg.states {
		if _, ok := reach[id]; !ok {
			return fmt.Errorf("agent %q state %q is unreachable from the start state: %w",
				sg.agent.Name, name, model.ErrModelValidation)
		}
	}
	return nil
}

// liftConditions promotes every state with more than one outgoing
// function to a condition vertex. Each branch must carry a precondition;
// a missing one is a compile error, naming a conflicting written
// variable when the unconditioned branches race on one.
func (sg *stateGraph) liftConditions() error {
	for stateName, id := range sg.states {
		outs := sg.graph.out(id)
		if len(outs) <= 1 {
			continue
		}

		var missing []*model.Function
		for _, fnID := range outs {
			if sg.funcByID[fnID].Condition == nil {
				missing = append(missing, sg.funcByID[fnID])
			}
		}
		if len(missing) > 0 {
			if shared := sharedWrite(sg.funcsOf(outs)); shared != "" {
				return fmt.Errorf("agent %q state %q: functions without conditions race on variable %q: %w",
					sg.agent.Name, stateName, shared, model.ErrModelValidation)
			}
			return fmt.Errorf("agent %q state %q: %d outgoing functions lack conditions: %w",
				sg.agent.Name, stateName, len(missing), model.ErrModelValidation)
		}

		v := &sg.graph.vertices[id]
		v.kind = kindCondition
		v.name = fmt.Sprintf("%s_%s_condition", sg.agent.Name, stateName)
		v.branches = append([]VertexID(nil), outs...)
	}
	return nil
}

func (sg *stateGraph) funcsOf(ids []VertexID) []*model.Function {
	out := make([]*model.Function, 0, len(ids))
	for _, id := range ids {
		out = append(out, sg.funcByID[id])
	}
	return out
}

// sharedWrite returns a variable written by more than one of the given
// functions, or ""
func sharedWrite(fns []*model.Function) string {
	written := make(map[string]int)
	for _, fn := range fns {
		for _, v := range fn.WriteVars() {
			written[v]++
			if written[v] > 1 {
				return v
			}
		}
	}
	return ""
}

// contractStates removes every remaining plain state vertex, connecting
// each predecessor directly to each successor with a state edge.
// Condition vertices stay: they become runnable tasks.
func (sg *stateGraph) contractStates() {
	for _, id := range sg.states {
		if sg.graph.vertices[id].kind != kindState {
			continue
		}
		preds := sg.graph.in(id)
		succs := sg.graph.out(id)
		for _, p := range preds {
			for _, s := range succs {
				sg.graph.addEdge(p, s, edgeState)
			}
		}
		sg.dropVertexEdges(id)
	}
}

// dropVertexEdges removes all edges touching a vertex, detaching it from
// the graph. The arena slot stays; detached state vertices are skipped
// when the task list is emitted.
func (sg *stateGraph) dropVertexEdges(id VertexID) {
	kept := sg.graph.edges[:0]
	for _, e := range sg.graph.edges {
		if e.from != id && e.to != id {
			kept = append(kept, e)
		}
	}
	sg.graph.edges = kept
	sg.graph.vertices[id].kind = kindState // stays a detached state
}
