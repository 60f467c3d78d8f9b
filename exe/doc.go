// Package exe executes the compiled task DAG.
//
// The TaskManager owns every task by stable id and tracks the
// per-iteration ready, assigned, and pending sets. The Scheduler drains
// the ready set onto typed task queues, each served by a fixed pool of
// worker goroutines; completions flow back through a done queue and
// unlock dependent tasks. The SplittingFIFOQueue subdivides
// data-parallel function and condition tasks into windowed sub-tasks so
// a large agent population can occupy every worker at once.
//
// Within one iteration a task runs strictly after all of its DAG
// parents have reported done; no other ordering is guaranteed.
package exe
