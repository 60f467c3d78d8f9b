package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawMermaid(t *testing.T) {
	cg, err := Compile(messageModel())
	require.NoError(t, err)

	out := NewExporter(cg).DrawMermaid()
	assert.True(t, strings.HasPrefix(out, "flowchart TD\n"))
	assert.Contains(t, out, "start_model")
	assert.Contains(t, out, "finish_model")
	assert.Contains(t, out, "sync_m")
	assert.Contains(t, out, "clear_m")
	assert.Contains(t, out, "-->")
}

func TestDrawMermaidDirection(t *testing.T) {
	cg, err := Compile(singleFunctionModel())
	require.NoError(t, err)

	out := NewExporter(cg).DrawMermaidWithOptions(MermaidOptions{Direction: "LR"})
	assert.True(t, strings.HasPrefix(out, "flowchart LR\n"))
}

func TestDrawDOT(t *testing.T) {
	cg, err := Compile(conditionalModel())
	require.NoError(t, err)

	out := NewExporter(cg).DrawDOT()
	assert.True(t, strings.HasPrefix(out, "digraph G {"))
	assert.True(t, strings.HasSuffix(out, "}\n"))
	assert.Contains(t, out, "Circle_S_condition")
	assert.Contains(t, out, "shape=diamond")
	assert.Contains(t, out, "->")
}
