// Package model holds the plain-data description of a simulation: agent
// types with their memory layouts and state machines, message types,
// preconditions, and environment declarations.
//
// A Model is produced either in code or by the XML model parser in
// package pop, validated with Validate, and compiled into an executable
// task DAG by package graph. Condition trees are stored in an arena with
// index links, so they copy cleanly and have no back-pointer cycles.
package model
