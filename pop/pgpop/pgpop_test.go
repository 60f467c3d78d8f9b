package pgpop

import (
	"context"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/pop"
)

func schema() []mem.AgentLayout {
	return []mem.AgentLayout{{
		Name: "Circle",
		Vars: []mem.VarDecl{
			{Name: "x_int", Tag: mem.TypeInt},
			{Name: "y_dbl", Tag: mem.TypeDouble},
		},
	}}
}

func TestInitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := NewWriterWithPool(mock, "sim", schema())

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS sim_circle")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, w.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeWriteInsertsRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := NewWriterWithPool(mock, "sim", schema())

	require.NoError(t, w.InitWrite(4))
	require.NoError(t, w.WriteColumn(pop.Column{
		Agent: "Circle", Var: "x_int", Tag: mem.TypeInt, Ints: []int64{7, 8},
	}))
	require.NoError(t, w.WriteColumn(pop.Column{
		Agent: "Circle", Var: "y_dbl", Tag: mem.TypeDouble, Doubles: []float64{0.5, 1.5},
	}))

	insert := regexp.QuoteMeta("INSERT INTO sim_circle (iteration, x_int, y_dbl) VALUES ($1, $2, $3)")
	mock.ExpectExec(insert).
		WithArgs(int64(4), int64(7), 0.5).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insert).
		WithArgs(int64(4), int64(8), 1.5).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, w.FinalizeWrite())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriterDefaultPrefix(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := NewWriterWithPool(mock, "", schema())
	assert.Equal(t, "pop_circle", w.tableName("Circle"))
}

func TestWriterLifecycle(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := NewWriterWithPool(mock, "sim", schema())

	assert.ErrorIs(t, w.WriteColumn(pop.Column{}), pop.ErrIO)
	assert.ErrorIs(t, w.FinalizeWrite(), pop.ErrIO)
	require.NoError(t, w.InitWrite(0))
	assert.ErrorIs(t, w.InitWrite(1), pop.ErrIO)
}
