package model

import (
	"errors"

	"github.com/flocksim/flock/mem"
)

// ErrModelValidation reports any schema or semantic failure while
// validating a model description.
var ErrModelValidation = errors.New("model: validation failed")

// AccessMode classifies how a transition function touches a variable
type AccessMode uint8

const (
	// ReadOnly grants read access only
	ReadOnly AccessMode = iota
	// ReadWrite grants read and write access
	ReadWrite
)

// VarDecl declares one named, typed variable on an agent or message
type VarDecl struct {
	Name string
	Type mem.TypeTag
}

// VarAccess pairs a variable with the access mode a function declares
// for it
type VarAccess struct {
	Name string
	Mode AccessMode
}

// Function is one transition function of an agent's state machine
type Function struct {
	Name         string
	CurrentState string
	NextState    string

	// Condition is the optional precondition gating the transition
	Condition *Condition

	// Inputs and Outputs name the messages the function reads and posts
	Inputs  []string
	Outputs []string

	// Vars classifies every agent variable the function touches
	Vars []VarAccess
}

// ReadVars returns all variables the function reads (both modes)
func (f *Function) ReadVars() []string {
	out := make([]string, 0, len(f.Vars))
	for _, v := range f.Vars {
		out = append(out, v.Name)
	}
	return out
}

// WriteVars returns the variables the function may write
func (f *Function) WriteVars() []string {
	var out []string
	for _, v := range f.Vars {
		if v.Mode == ReadWrite {
			out = append(out, v.Name)
		}
	}
	return out
}

// Agent declares one agent type: its memory layout and state machine
type Agent struct {
	Name      string
	Memory    []VarDecl
	Functions []*Function
}

// VarTypes returns the declared memory as a name-to-type map
func (a *Agent) VarTypes() map[string]mem.TypeTag {
	out := make(map[string]mem.TypeTag, len(a.Memory))
	for _, v := range a.Memory {
		out[v.Name] = v.Type
	}
	return out
}

// Message declares one message type and its variables
type Message struct {
	Name string
	Vars []VarDecl
}

// TimeUnit declares a named simulation time unit. Time units are
// validated but carry no runtime semantics in the core.
type TimeUnit struct {
	Name   string
	Unit   string // "iteration" or another declared time unit
	Period int
}

// Constant is an environment constant declared by the model file.
// Constants are carried for writer plugins and diagnostics.
type Constant struct {
	Name  string
	Type  mem.TypeTag
	Value string
}

// Model is the complete description of a simulation: agents with their
// state machines, message types, and environment declarations. A Model
// is plain data; the graph package compiles it into an executable DAG.
type Model struct {
	Name        string
	Version     string
	Author      string
	Description string

	Constants     []Constant
	TimeUnits     []TimeUnit
	FunctionFiles []string

	Agents   []*Agent
	Messages []*Message
}

// AgentByName returns the declared agent with the given name, or nil
func (m *Model) AgentByName(name string) *Agent {
	for _, a := range m.Agents {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// MessageByName returns the declared message with the given name, or nil
func (m *Model) MessageByName(name string) *Message {
	for _, msg := range m.Messages {
		if msg.Name == name {
			return msg
		}
	}
	return nil
}

// timeUnitSet returns declared time unit names, including the built-in
// "iteration" base unit.
func (m *Model) timeUnitSet() map[string]struct{} {
	out := map[string]struct{}{"iteration": {}}
	for _, tu := range m.TimeUnits {
		out[tu.Name] = struct{}{}
	}
	return out
}
