// Package pgpop writes population snapshots into PostgreSQL: one table
// per agent type named <prefix>_<agent> with the agent name lowercased,
// each row keyed by iteration number.
package pgpop

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/pop"
)

// DBPool defines the interface for the database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Writer is the PostgreSQL snapshot writer
type Writer struct {
	pool   DBPool
	prefix string
	schema []mem.AgentLayout

	mu        sync.Mutex
	iteration int
	open      bool
	columns   map[string]map[string]pop.Column
}

// Options configures the PostgreSQL connection
type Options struct {
	ConnString string
	// TablePrefix prefixes the per-agent table names; defaults to "pop"
	TablePrefix string
}

// NewWriter connects a PostgreSQL snapshot writer and creates the
// per-agent tables.
func NewWriter(ctx context.Context, opts Options, schema []mem.AgentLayout) (*Writer, error) {
	dbpool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %v: %w", err, pop.ErrIO)
	}
	w := NewWriterWithPool(dbpool, opts.TablePrefix, schema)
	if err := w.InitSchema(ctx); err != nil {
		dbpool.Close()
		return nil, err
	}
	return w, nil
}

// NewWriterWithPool creates a writer over an existing pool. Useful for
// testing with mocks.
func NewWriterWithPool(pool DBPool, prefix string, schema []mem.AgentLayout) *Writer {
	if prefix == "" {
		prefix = "pop"
	}
	return &Writer{pool: pool, prefix: prefix, schema: schema}
}

// InitSchema creates one table per agent type if missing
func (w *Writer) InitSchema(ctx context.Context) error {
	for _, agent := range w.schema {
		defs := []string{"iteration BIGINT NOT NULL"}
		for _, v := range agent.Vars {
			sqlType := "DOUBLE PRECISION"
			if v.Tag == mem.TypeInt {
				sqlType = "BIGINT"
			}
			defs = append(defs, fmt.Sprintf("%s %s", v.Name, sqlType))
		}
		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
			w.tableName(agent.Name), strings.Join(defs, ", "))
		if _, err := w.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("create table %q: %v: %w", w.tableName(agent.Name), err, pop.ErrIO)
		}
	}
	return nil
}

func (w *Writer) tableName(agent string) string {
	return fmt.Sprintf("%s_%s", w.prefix, strings.ToLower(agent))
}

// Close releases the connection pool
func (w *Writer) Close() {
	w.pool.Close()
}

// InitWrite opens the snapshot for an iteration
func (w *Writer) InitWrite(iteration int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open {
		return fmt.Errorf("snapshot %d still open: %w", w.iteration, pop.ErrIO)
	}
	w.iteration = iteration
	w.open = true
	w.columns = make(map[string]map[string]pop.Column)
	return nil
}

// WriteColumn buffers one variable column for the open snapshot
func (w *Writer) WriteColumn(col pop.Column) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return fmt.Errorf("write_column before init_write: %w", pop.ErrIO)
	}
	if w.columns[col.Agent] == nil {
		w.columns[col.Agent] = make(map[string]pop.Column)
	}
	w.columns[col.Agent][col.Var] = col
	return nil
}

// FinalizeWrite inserts every buffered row keyed by the iteration
// number
func (w *Writer) FinalizeWrite() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return fmt.Errorf("finalize_write before init_write: %w", pop.ErrIO)
	}
	w.open = false

	ctx := context.Background()
	for _, agent := range w.schema {
		cols := w.columns[agent.Name]
		if cols == nil {
			continue
		}
		if err := w.writeAgent(ctx, agent, cols); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeAgent(ctx context.Context, agent mem.AgentLayout, cols map[string]pop.Column) error {
	names := []string{"iteration"}
	marks := []string{"$1"}
	for i, v := range agent.Vars {
		names = append(names, v.Name)
		marks = append(marks, fmt.Sprintf("$%d", i+2))
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.tableName(agent.Name), strings.Join(names, ", "), strings.Join(marks, ", "))

	rows := 0
	for _, v := range agent.Vars {
		if c, ok := cols[v.Name]; ok {
			rows = c.Len()
			break
		}
	}

	for row := 0; row < rows; row++ {
		args := []any{int64(w.iteration)}
		for _, v := range agent.Vars {
			c, ok := cols[v.Name]
			if !ok || c.Len() != rows {
				return fmt.Errorf("agent %q variable %q has incomplete column: %w",
					agent.Name, v.Name, pop.ErrIO)
			}
			if c.Tag == mem.TypeInt {
				args = append(args, c.Ints[row])
			} else {
				args = append(args, c.Doubles[row])
			}
		}
		if _, err := w.pool.Exec(ctx, insert, args...); err != nil {
			return fmt.Errorf("insert into %q: %v: %w", w.tableName(agent.Name), err, pop.ErrIO)
		}
	}
	return nil
}
