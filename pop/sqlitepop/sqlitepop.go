// Package sqlitepop writes population snapshots into SQLite files, one
// database per iteration named <base><iteration>.sqlite, with one table
// per agent type.
package sqlitepop

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/pop"
)

// Writer is the SQLite snapshot writer
type Writer struct {
	base   string
	schema []mem.AgentLayout

	mu        sync.Mutex
	iteration int
	open      bool
	columns   map[string]map[string]pop.Column
}

// NewWriter creates a SQLite snapshot writer
func NewWriter(base string, schema []mem.AgentLayout) (pop.Writer, error) {
	return &Writer{base: base, schema: schema}, nil
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

// FinalizeWrite creates the iteration database and inserts every
// buffered row
func (w *Writer) FinalizeWrite() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return fmt.Errorf("finalize_write before init_write: %w", pop.ErrIO)
	}
	w.open = false

	path := fmt.Sprintf("%s%d.sqlite", w.base, w.iteration)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("snapshot %q: %v: %w", path, err, pop.ErrIO)
	}
	defer db.Close()

	for _, agent := range w.schema {
		cols := w.columns[agent.Name]
		if cols == nil {
			continue
		}
		if err := w.writeAgent(db, path, agent, cols); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeAgent(db *sql.DB, path string, agent mem.AgentLayout, cols map[string]pop.Column) error {
	var defs, names, marks []string
	for _, v := range agent.Vars {
		sqlType := "REAL"
		if v.Tag == mem.TypeInt {
			sqlType = "INTEGER"
		}
		defs = append(defs, fmt.Sprintf("%s %s", v.Name, sqlType))
		names = append(names, v.Name)
		marks = append(marks, "?")
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", agent.Name, strings.Join(defs, ", "))
	if _, err := db.Exec(create); err != nil {
		return fmt.Errorf("snapshot %q: create table %q: %v: %w", path, agent.Name, err, pop.ErrIO)
	}

	rows := 0
	for _, v := range agent.Vars {
		if c, ok := cols[v.Name]; ok {
			rows = c.Len()
			break
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("snapshot %q: %v: %w", path, err, pop.ErrIO)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		agent.Name, strings.Join(names, ", "), strings.Join(marks, ", "))
	stmt, err := tx.Prepare(insert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("snapshot %q: %v: %w", path, err, pop.ErrIO)
	}
	defer stmt.Close()

	for row := 0; row < rows; row++ {
		args := make([]any, 0, len(agent.Vars))
		for _, v := range agent.Vars {
			c, ok := cols[v.Name]
			if !ok || c.Len() != rows {
				tx.Rollback()
				return fmt.Errorf("snapshot %q: agent %q variable %q has incomplete column: %w",
					path, agent.Name, v.Name, pop.ErrIO)
			}
			if c.Tag == mem.TypeInt {
				args = append(args, c.Ints[row])
			} else {
				args = append(args, c.Doubles[row])
			}
		}
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("snapshot %q: insert into %q: %v: %w", path, agent.Name, err, pop.ErrIO)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot %q: %v: %w", path, err, pop.ErrIO)
	}
	return nil
}
