package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flocksim/flock/mem"
)

// ErrNotImplemented reports use of a declared but unsupported runtime
// feature, such as evaluating a time condition.
var ErrNotImplemented = errors.New("model: not implemented")

// Op is a condition operator token as spelled in model files
type Op string

// Comparison and combination operators
const (
	OpEQ  Op = "EQ"
	OpNEQ Op = "NEQ"
	OpLEQ Op = "LEQ"
	OpGEQ Op = "GEQ"
	OpLT  Op = "LT"
	OpGT  Op = "GT"
	OpAND Op = "AND"
	OpOR  Op = "OR"
)

// IsComparison reports whether the operator compares two values
func (op Op) IsComparison() bool {
	switch op {
	case OpEQ, OpNEQ, OpLEQ, OpGEQ, OpLT, OpGT:
		return true
	}
	return false
}

// IsCombination reports whether the operator joins two conditions
func (op Op) IsCombination() bool {
	return op == OpAND || op == OpOR
}

// Operand is one side of a value comparison: either an agent variable
// reference or a numeric literal.
type Operand struct {
	Var   string
	Value float64
	IsVar bool
}

// AgentVar returns an operand referencing an agent memory variable
func AgentVar(name string) Operand {
	return Operand{Var: name, IsVar: true}
}

// Literal returns a constant operand
func Literal(v float64) Operand {
	return Operand{Value: v}
}

type condKind uint8

const (
	condValues condKind = iota
	condNested
	condTime
)

// condition nodes live in an arena; children are indices, not pointers.
// This keeps the tree copyable and free of back-pointer cycles.
type condNode struct {
	kind        condKind
	not         bool
	op          Op
	lhs, rhs    Operand // condValues
	left, right int     // condNested arena indices
	timePeriod  string  // condTime
	timePhase   Operand
	timeDur     int
	hasTimeDur  bool
}

// Condition is a precondition tree attached to a transition function.
// The zero value is not usable; build conditions with Compare, Not,
// Combine, and Time.
type Condition struct {
	nodes []condNode
	root  int
}

// Compare builds a single value comparison
func Compare(lhs Operand, op Op, rhs Operand) *Condition {
	return &Condition{
		nodes: []condNode{{kind: condValues, op: op, lhs: lhs, rhs: rhs, left: -1, right: -1}},
		root:  0,
	}
}

// Not wraps a condition in a negation
func Not(c *Condition) *Condition {
	out := c.clone()
	out.nodes[out.root].not = !out.nodes[out.root].not
	return out
}

// Combine joins two conditions with AND or OR
func Combine(lhs *Condition, op Op, rhs *Condition) *Condition {
	out := lhs.clone()
	offset := len(out.nodes)
	for _, n := range rhs.nodes {
		if n.left >= 0 {
			n.left += offset
		}
		if n.right >= 0 {
			n.right += offset
		}
		out.nodes = append(out.nodes, n)
	}
	out.nodes = append(out.nodes, condNode{
		kind:  condNested,
		op:    op,
		left:  out.root,
		right: rhs.root + offset,
	})
	out.root = len(out.nodes) - 1
	return out
}

// Time builds a time condition over a declared time unit. Time
// conditions parse and validate but have no runtime semantics in the
// core; evaluating one fails NotImplemented.
func Time(period string, phase Operand, duration int, hasDuration bool) *Condition {
	return &Condition{
		nodes: []condNode{{
			kind:       condTime,
			timePeriod: period,
			timePhase:  phase,
			timeDur:    duration,
			hasTimeDur: hasDuration,
			left:       -1,
			right:      -1,
		}},
		root: 0,
	}
}

func (c *Condition) clone() *Condition {
	nodes := make([]condNode, len(c.nodes))
	copy(nodes, c.nodes)
	return &Condition{nodes: nodes, root: c.root}
}

// ReferencedVars returns the distinct agent variables the condition
// reads, in first-reference order.
func (c *Condition) ReferencedVars() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(o Operand) {
		if !o.IsVar {
			return
		}
		if _, ok := seen[o.Var]; ok {
			return
		}
		seen[o.Var] = struct{}{}
		out = append(out, o.Var)
	}
	for _, n := range c.nodes {
		switch n.kind {
		case condValues:
			add(n.lhs)
			add(n.rhs)
		case condTime:
			add(n.timePhase)
		}
	}
	return out
}

// UsesTime reports whether any node is a time condition
func (c *Condition) UsesTime() bool {
	for _, n := range c.nodes {
		if n.kind == condTime {
			return true
		}
	}
	return false
}

// Validate checks every referenced variable against the agent's declared
// memory, and time periods against the declared time units.
func (c *Condition) Validate(agentName string, vars map[string]mem.TypeTag, timeUnits map[string]struct{}) error {
	for _, n := range c.nodes {
		switch n.kind {
		case condValues:
			if !n.op.IsComparison() {
				return fmt.Errorf("agent %q: condition operator %q is not a comparison: %w",
					agentName, n.op, ErrModelValidation)
			}
			for _, o := range []Operand{n.lhs, n.rhs} {
				if o.IsVar {
					if _, ok := vars[o.Var]; !ok {
						return fmt.Errorf("agent %q: condition references unknown variable %q: %w",
							agentName, o.Var, ErrModelValidation)
					}
				}
			}
		case condNested:
			if !n.op.IsCombination() {
				return fmt.Errorf("agent %q: condition operator %q is not AND/OR: %w",
					agentName, n.op, ErrModelValidation)
			}
		case condTime:
			if _, ok := timeUnits[n.timePeriod]; !ok {
				return fmt.Errorf("agent %q: time condition references unknown time unit %q: %w",
					agentName, n.timePeriod, ErrModelValidation)
			}
			if n.timePhase.IsVar {
				if _, ok := vars[n.timePhase.Var]; !ok {
					return fmt.Errorf("agent %q: time condition phase references unknown variable %q: %w",
						agentName, n.timePhase.Var, ErrModelValidation)
				}
			}
		}
	}
	return nil
}

// Evaluate resolves the condition against the current row of a memory
// iterator. Variables of both element types are compared as doubles,
// matching the model-file semantics.
func (c *Condition) Evaluate(it *mem.MemoryIterator) (bool, error) {
	return c.eval(c.root, it)
}

func (c *Condition) eval(idx int, it *mem.MemoryIterator) (bool, error) {
	n := &c.nodes[idx]
	var result bool
	switch n.kind {
	case condValues:
		lhs, err := c.operand(n.lhs, it)
		if err != nil {
			return false, err
		}
		rhs, err := c.operand(n.rhs, it)
		if err != nil {
			return false, err
		}
		switch n.op {
		case OpEQ:
			result = lhs == rhs
		case OpNEQ:
			result = lhs != rhs
		case OpLEQ:
			result = lhs <= rhs
		case OpGEQ:
			result = lhs >= rhs
		case OpLT:
			result = lhs < rhs
		case OpGT:
			result = lhs > rhs
		}
	case condNested:
		left, err := c.eval(n.left, it)
		if err != nil {
			return false, err
		}
		// AND and OR short-circuit
		if n.op == OpAND && !left {
			result = false
		} else if n.op == OpOR && left {
			result = true
		} else {
			right, err := c.eval(n.right, it)
			if err != nil {
				return false, err
			}
			result = right
		}
	case condTime:
		return false, fmt.Errorf("time(%s) condition: %w", n.timePeriod, ErrNotImplemented)
	}
	if n.not {
		result = !result
	}
	return result, nil
}

func (c *Condition) operand(o Operand, it *mem.MemoryIterator) (float64, error) {
	if !o.IsVar {
		return o.Value, nil
	}
	tag, err := it.TypeOf(o.Var)
	if err != nil {
		return 0, err
	}
	if tag == mem.TypeInt {
		x, err := it.GetInt(o.Var)
		if err != nil {
			return 0, err
		}
		return float64(x), nil
	}
	return it.GetDouble(o.Var)
}

// String renders the condition in the model-file operator spelling
func (c *Condition) String() string {
	var sb strings.Builder
	c.render(c.root, &sb)
	return sb.String()
}

func (c *Condition) render(idx int, sb *strings.Builder) {
	n := &c.nodes[idx]
	if n.not {
		sb.WriteString("not(")
	}
	switch n.kind {
	case condValues:
		renderOperand(n.lhs, sb)
		fmt.Fprintf(sb, " %s ", n.op)
		renderOperand(n.rhs, sb)
	case condNested:
		sb.WriteString("(")
		c.render(n.left, sb)
		fmt.Fprintf(sb, ") %s (", n.op)
		c.render(n.right, sb)
		sb.WriteString(")")
	case condTime:
		fmt.Fprintf(sb, "time(%s", n.timePeriod)
		if n.timePhase.IsVar || n.timePhase.Value != 0 {
			sb.WriteString(", ")
			renderOperand(n.timePhase, sb)
		}
		if n.hasTimeDur {
			fmt.Fprintf(sb, ", %d", n.timeDur)
		}
		sb.WriteString(")")
	}
	if n.not {
		sb.WriteString(")")
	}
}

func renderOperand(o Operand, sb *strings.Builder) {
	if o.IsVar {
		fmt.Fprintf(sb, "a.%s", o.Var)
		return
	}
	fmt.Fprintf(sb, "%g", o.Value)
}
