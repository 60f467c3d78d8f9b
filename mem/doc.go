// Package mem implements the columnar agent-memory store.
//
// Each agent type owns one AgentMemory: a column-major table with one
// Vector per declared variable. Row i across all columns is agent i.
// Vectors are tagged variants selected at registration time, so runtime
// type checks reduce to tag comparisons.
//
// Tasks never touch AgentMemory directly. They receive a MemoryIterator
// minted from a Shadow, which restricts both the visible variables and
// their access modes. Windowed iterators over disjoint row ranges let a
// data-parallel task execute on several workers at once.
package mem
