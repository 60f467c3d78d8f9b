// Package csvpop writes population snapshots as CSV, one file per
// iteration named <base><iteration>.csv. Each row holds the agent type
// name followed by that agent's variable values in declaration order.
package csvpop

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/pop"
)

// Writer is the CSV snapshot writer
type Writer struct {
	base   string
	schema []mem.AgentLayout

	mu        sync.Mutex
	iteration int
	open      bool
	columns   map[string]map[string]pop.Column
}

// NewWriter creates a CSV snapshot writer
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

// FinalizeWrite writes the buffered columns row-wise into the snapshot
// file
func (w *Writer) FinalizeWrite() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return fmt.Errorf("finalize_write before init_write: %w", pop.ErrIO)
	}
	w.open = false

	path := fmt.Sprintf("%s%d.csv", w.base, w.iteration)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot %q: %v: %w", path, err, pop.ErrIO)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	for _, agent := range w.schema {
		cols := w.columns[agent.Name]
		if cols == nil {
			continue
		}
		rows := 0
		for _, v := range agent.Vars {
			if c, ok := cols[v.Name]; ok {
				rows = c.Len()
				break
			}
		}
		for row := 0; row < rows; row++ {
			record := []string{agent.Name}
			for _, v := range agent.Vars {
				c, ok := cols[v.Name]
				if !ok || c.Len() != rows {
					return fmt.Errorf("snapshot %q: agent %q variable %q has incomplete column: %w",
						path, agent.Name, v.Name, pop.ErrIO)
				}
				if c.Tag == mem.TypeInt {
					record = append(record, strconv.FormatInt(c.Ints[row], 10))
				} else {
					record = append(record, strconv.FormatFloat(c.Doubles[row], 'f', -1, 64))
				}
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("snapshot %q: %v: %w", path, err, pop.ErrIO)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("snapshot %q: %v: %w", path, err, pop.ErrIO)
	}
	return nil
}
