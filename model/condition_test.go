package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocksim/flock/mem"
)

// condIter builds a one-row iterator with x_int = x and y_dbl = y
func condIter(t *testing.T, x int64, y float64) *mem.MemoryIterator {
	t.Helper()
	m := mem.NewManager()
	require.NoError(t, m.RegisterAgent("A"))
	require.NoError(t, m.RegisterVar("A", "x_int", mem.TypeInt))
	require.NoError(t, m.RegisterVar("A", "y_dbl", mem.TypeDouble))
	am, err := m.Agent("A")
	require.NoError(t, err)
	xv, _ := am.Vector("x_int")
	yv, _ := am.Vector("y_dbl")
	require.NoError(t, xv.AppendInt(x))
	require.NoError(t, yv.AppendDouble(y))

	shadow, err := m.Shadow("A")
	require.NoError(t, err)
	require.NoError(t, shadow.Allow("x_int", false))
	require.NoError(t, shadow.Allow("y_dbl", false))
	return shadow.Iter()
}

func TestCompareOperators(t *testing.T) {
	it := condIter(t, 5, 2.5)

	tests := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"eq true", Compare(AgentVar("x_int"), OpEQ, Literal(5)), true},
		{"eq false", Compare(AgentVar("x_int"), OpEQ, Literal(4)), false},
		{"neq", Compare(AgentVar("x_int"), OpNEQ, Literal(4)), true},
		{"lt", Compare(AgentVar("x_int"), OpLT, Literal(6)), true},
		{"gt", Compare(AgentVar("x_int"), OpGT, Literal(6)), false},
		{"leq", Compare(AgentVar("x_int"), OpLEQ, Literal(5)), true},
		{"geq", Compare(AgentVar("x_int"), OpGEQ, Literal(5.5)), false},
		{"var vs var", Compare(AgentVar("x_int"), OpGT, AgentVar("y_dbl")), true},
		{"literal vs literal", Compare(Literal(1), OpLT, Literal(2)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Evaluate(it)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotAndCombine(t *testing.T) {
	it := condIter(t, 5, 2.5)

	pos := Compare(AgentVar("x_int"), OpGT, Literal(0))
	small := Compare(AgentVar("y_dbl"), OpLT, Literal(1))

	got, err := Not(pos).Evaluate(it)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Combine(pos, OpAND, small).Evaluate(it)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Combine(pos, OpOR, small).Evaluate(it)
	require.NoError(t, err)
	assert.True(t, got)

	// nested combination
	both := Combine(Not(small), OpAND, Combine(pos, OpOR, small))
	got, err = both.Evaluate(it)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestConditionReferencedVars(t *testing.T) {
	c := Combine(
		Compare(AgentVar("x_int"), OpGT, Literal(0)),
		OpAND,
		Compare(AgentVar("y_dbl"), OpLT, AgentVar("x_int")),
	)
	assert.Equal(t, []string{"x_int", "y_dbl"}, c.ReferencedVars())
}

func TestTimeConditionNotImplemented(t *testing.T) {
	it := condIter(t, 1, 1)
	c := Time("daily", Literal(0), 0, false)
	assert.True(t, c.UsesTime())

	_, err := c.Evaluate(it)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestConditionValidate(t *testing.T) {
	vars := map[string]mem.TypeTag{"x": mem.TypeInt}
	tus := map[string]struct{}{"iteration": {}}

	require.NoError(t, Compare(AgentVar("x"), OpGT, Literal(0)).Validate("A", vars, tus))

	err := Compare(AgentVar("nope"), OpGT, Literal(0)).Validate("A", vars, tus)
	assert.ErrorIs(t, err, ErrModelValidation)

	err = Time("weekly", Literal(0), 0, false).Validate("A", vars, tus)
	assert.ErrorIs(t, err, ErrModelValidation)

	require.NoError(t, Time("iteration", Literal(0), 0, false).Validate("A", vars, tus))
}

func TestConditionString(t *testing.T) {
	c := Combine(
		Compare(AgentVar("x"), OpGT, Literal(0)),
		OpAND,
		Not(Compare(Literal(1), OpEQ, Literal(2))),
	)
	assert.Equal(t, "(a.x GT 0) AND (not(1 EQ 2))", c.String())
}
