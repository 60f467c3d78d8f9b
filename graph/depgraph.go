package graph

import (
	"fmt"
	"sort"

	"github.com/flocksim/flock/model"
)

// dependencyAnalyser replaces the state-edge structure of an agent's
// contracted graph with explicit data dependencies: read-after-write,
// write-after-read, and write-after-write edges per variable.
type dependencyAnalyser struct {
	graph *workGraph
	agent *model.Agent
	start VertexID // the model-level start vertex

	lastWriters map[string][]VertexID
	lastReaders map[string][]VertexID
}

func newDependencyAnalyser(g *workGraph, a *model.Agent, start VertexID) *dependencyAnalyser {
	return &dependencyAnalyser{
		graph:       g,
		agent:       a,
		start:       start,
		lastWriters: make(map[string][]VertexID),
		lastReaders: make(map[string][]VertexID),
	}
}

// run walks the agent's task vertices in topological order of the state
// edges and inserts data edges. The model start vertex counts as the
// initial writer of every agent variable, so variables never written
// this iteration still have a producer. It returns the final last-writer
// sets per variable for pop-write insertion.
func (da *dependencyAnalyser) run(order []VertexID) map[string][]VertexID {
	for _, v := range da.agent.Memory {
		da.lastWriters[v.Name] = []VertexID{da.start}
	}

	for _, id := range order {
		v := &da.graph.vertices[id]
		reads, writes := da.accessOf(id, v)

		for _, varName := range reads {
			for _, w := range da.lastWriters[varName] {
				da.graph.addEdge(w, id, edgeData)
			}
		}
		for _, varName := range writes {
			for _, r := range da.lastReaders[varName] {
				if r != id {
					da.graph.addEdge(r, id, edgeData)
				}
			}
			for _, w := range da.lastWriters[varName] {
				da.graph.addEdge(w, id, edgeData)
			}
			da.lastWriters[varName] = []VertexID{id}
			da.lastReaders[varName] = nil
		}
		for _, varName := range reads {
			da.lastReaders[varName] = append(da.lastReaders[varName], id)
		}

		// a condition gates its branches: every branch function runs
		// strictly after the condition evaluated
		for _, b := range v.branches {
			da.graph.addEdge(id, b, edgeData)
		}
	}
	return da.lastWriters
}

// accessOf returns the variables a vertex reads and writes. Condition
// vertices read everything their branch preconditions reference and
// write nothing.
func (da *dependencyAnalyser) accessOf(id VertexID, v *vertex) (reads, writes []string) {
	switch v.kind {
	case kindFunction:
		reads = v.fn.ReadVars()
		writes = v.fn.WriteVars()
		if v.fn.Condition != nil {
			reads = mergeNames(reads, v.fn.Condition.ReferencedVars())
		}
	case kindCondition:
		for _, b := range v.branches {
			fn := da.graph.vertices[b].fn
			if fn.Condition != nil {
				reads = mergeNames(reads, fn.Condition.ReferencedVars())
			}
		}
	}
	return reads, writes
}

func mergeNames(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, n := range base {
		seen[n] = struct{}{}
	}
	for _, n := range extra {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			base = append(base, n)
		}
	}
	return base
}

// topoOrder returns the agent's function and condition vertices sorted
// topologically along state edges. A cycle is a compile error reported
// with the offending vertices.
func topoOrder(g *workGraph, ids []VertexID) ([]VertexID, error) {
	inSet := make(map[VertexID]struct{}, len(ids))
	for _, id := range ids {
		inSet[id] = struct{}{}
	}

	indeg := make(map[VertexID]int, len(ids))
	for _, id := range ids {
		indeg[id] = 0
	}
	for _, e := range g.edges {
		if e.kind != edgeState {
			continue
		}
		if _, ok := inSet[e.from]; !ok {
			continue
		}
		if _, ok := inSet[e.to]; !ok {
			continue
		}
		indeg[e.to]++
	}

	var ready []VertexID
	for _, id := range ids {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	var order []VertexID
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		for _, e := range g.edges {
			if e.kind != edgeState || e.from != cur {
				continue
			}
			if _, ok := inSet[e.to]; !ok {
				continue
			}
			indeg[e.to]--
			if indeg[e.to] == 0 {
				ready = append(ready, e.to)
			}
		}
	}

	if len(order) != len(ids) {
		var stuck []string
		for _, id := range ids {
			if indeg[id] > 0 {
				stuck = append(stuck, g.vertices[id].name)
			}
		}
		return nil, fmt.Errorf("state graph cycle through %v: %w", stuck, model.ErrModelValidation)
	}
	return order, nil
}

// dropStateEdges removes every pure state-sync edge, leaving the data
// edges as the scheduler's dependency structure.
func dropStateEdges(g *workGraph) {
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.kind == edgeData {
			kept = append(kept, e)
		}
	}
	g.edges = kept
}

// transitiveReduction removes every edge that is implied by a longer
// path. The reduced DAG is what the task manager receives.
func transitiveReduction(g *workGraph) {
	n := len(g.vertices)
	succ := make([][]VertexID, n)
	for _, e := range g.edges {
		succ[e.from] = append(succ[e.from], e.to)
	}

	// descendants[v] = all vertices reachable from v in >= 1 step
	memo := make([]map[VertexID]struct{}, n)
	var descend func(v VertexID) map[VertexID]struct{}
	descend = func(v VertexID) map[VertexID]struct{} {
		if memo[v] != nil {
			return memo[v]
		}
		set := make(map[VertexID]struct{})
		memo[v] = set
		for _, c := range succ[v] {
			set[c] = struct{}{}
			for d := range descend(c) {
				set[d] = struct{}{}
			}
		}
		return set
	}

	kept := g.edges[:0]
	for _, e := range g.edges {
		implied := false
		for _, c := range succ[e.from] {
			if c == e.to {
				continue
			}
			if _, ok := descend(c)[e.to]; ok {
				implied = true
				break
			}
		}
		if !implied {
			kept = append(kept, e)
		}
	}
	g.edges = kept
}
