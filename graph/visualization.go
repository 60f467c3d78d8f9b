package graph

import (
	"fmt"
	"strings"

	"github.com/flocksim/flock/exe"
)

// Exporter renders a compiled graph in diagram formats for inspection
// and documentation.
type Exporter struct {
	cg *CompiledGraph
}

// NewExporter creates a graph exporter for the given compiled graph
func NewExporter(cg *CompiledGraph) *Exporter {
	return &Exporter{cg: cg}
}

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
}

// DrawMermaid generates a Mermaid diagram representation of the DAG
func (ge *Exporter) DrawMermaid() string {
	return ge.DrawMermaidWithOptions(MermaidOptions{Direction: "TD"})
}

// DrawMermaidWithOptions generates a Mermaid diagram with custom options
func (ge *Exporter) DrawMermaidWithOptions(opts MermaidOptions) string {
	var sb strings.Builder

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	sb.WriteString(fmt.Sprintf("flowchart %s\n", direction))

	for i, spec := range ge.cg.specs {
		id := nodeID(i)
		switch spec.Type {
		case exe.TaskStartModel, exe.TaskFinishModel:
			sb.WriteString(fmt.Sprintf("    %s([\"%s\"])\n", id, spec.Name))
		case exe.TaskCondition:
			sb.WriteString(fmt.Sprintf("    %s{\"%s\"}\n", id, spec.Name))
		case exe.TaskMsgSync, exe.TaskMsgClear:
			sb.WriteString(fmt.Sprintf("    %s[[\"%s\"]]\n", id, spec.Name))
		default:
			sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", id, spec.Name))
		}
	}

	for _, d := range ge.cg.deps {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", nodeID(d.From), nodeID(d.To)))
	}

	for i, spec := range ge.cg.specs {
		switch spec.Type {
		case exe.TaskStartModel:
			sb.WriteString(fmt.Sprintf("    style %s fill:#90EE90\n", nodeID(i)))
		case exe.TaskFinishModel:
			sb.WriteString(fmt.Sprintf("    style %s fill:#FFB6C1\n", nodeID(i)))
		case exe.TaskCondition:
			sb.WriteString(fmt.Sprintf("    style %s fill:#FFFFE0\n", nodeID(i)))
		}
	}
	return sb.String()
}

// DrawDOT generates a DOT (Graphviz) representation of the DAG
func (ge *Exporter) DrawDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TD;\n")
	sb.WriteString("    node [shape=box];\n")

	for i, spec := range ge.cg.specs {
		id := nodeID(i)
		switch spec.Type {
		case exe.TaskStartModel:
			sb.WriteString(fmt.Sprintf("    %s [label=\"%s\", shape=ellipse, style=filled, fillcolor=lightgreen];\n", id, spec.Name))
		case exe.TaskFinishModel:
			sb.WriteString(fmt.Sprintf("    %s [label=\"%s\", shape=ellipse, style=filled, fillcolor=lightpink];\n", id, spec.Name))
		case exe.TaskCondition:
			sb.WriteString(fmt.Sprintf("    %s [label=\"%s\", shape=diamond, style=filled, fillcolor=lightyellow];\n", id, spec.Name))
		case exe.TaskMsgSync, exe.TaskMsgClear:
			sb.WriteString(fmt.Sprintf("    %s [label=\"%s\", shape=hexagon];\n", id, spec.Name))
		default:
			sb.WriteString(fmt.Sprintf("    %s [label=\"%s\"];\n", id, spec.Name))
		}
	}

	for _, d := range ge.cg.deps {
		sb.WriteString(fmt.Sprintf("    %s -> %s;\n", nodeID(d.From), nodeID(d.To)))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func nodeID(i int) string {
	return fmt.Sprintf("t%d", i)
}
