// Package graph compiles a validated model into the reduced task DAG
// the scheduler executes.
//
// Compilation proceeds in stages: build a per-agent state graph, lift
// conditional states into condition tasks, contract the remaining state
// vertices, replace the state structure with explicit per-variable data
// dependencies, bracket every message between compiler-inserted sync and
// clear tasks, attach pop-write tasks for the population writer, and
// finally take the transitive reduction. Any cycle at any stage aborts
// compilation, reporting the offending vertices.
//
// Vertices live in an arena and refer to each other by index, so the
// working graph copies cleanly and carries no back-pointers.
package graph
