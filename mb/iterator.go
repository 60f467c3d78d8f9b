package mb

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/flocksim/flock/mem"
)

// backend is the stepping strategy behind a message iterator. The raw
// backend walks the committed store in order; the indexed backend walks
// an explicit row-index list and is produced on demand when the caller
// asks for sorting, randomization, or subset iteration.
type backend interface {
	atEnd() bool
	count() int
	step() bool
	rewind()
	// row returns the committed-store row for the current position;
	// behavior is undefined at end
	row() int
}

type rawBackend struct {
	board    *Board
	position int
	total    int
}

func newRawBackend(b *Board) *rawBackend {
	return &rawBackend{board: b, total: b.CommittedCount()}
}

func (r *rawBackend) atEnd() bool { return r.position >= r.total }
func (r *rawBackend) count() int  { return r.total }
func (r *rawBackend) rewind()     { r.position = 0 }
func (r *rawBackend) row() int    { return r.position }

func (r *rawBackend) step() bool {
	if r.atEnd() {
		return false
	}
	r.position++
	return true
}

type indexedBackend struct {
	board    *Board
	indices  []int
	position int
}

func (ix *indexedBackend) atEnd() bool { return ix.position >= len(ix.indices) }
func (ix *indexedBackend) count() int  { return len(ix.indices) }
func (ix *indexedBackend) rewind()     { ix.position = 0 }
func (ix *indexedBackend) row() int    { return ix.indices[ix.position] }

func (ix *indexedBackend) step() bool {
	if ix.atEnd() {
		return false
	}
	ix.position++
	return true
}

// Iterator is a stepwise-ordered cursor over a board's committed
// messages. It is immutable with respect to the board: messages posted
// after its creation are not visible through it.
type Iterator struct {
	board   *Board
	backend backend
}

func newIterator(r *rawBackend) *Iterator {
	return &Iterator{board: r.board, backend: r}
}

// AtEnd reports whether the cursor is past the last message
func (it *Iterator) AtEnd() bool {
	return it.backend.atEnd()
}

// Next advances the cursor; it returns false if the iterator was already
// at the end.
func (it *Iterator) Next() bool {
	return it.backend.step()
}

// Rewind resets the cursor to the first message
func (it *Iterator) Rewind() {
	it.backend.rewind()
}

// Count returns the number of messages visible through this iterator
func (it *Iterator) Count() int {
	return it.backend.count()
}

func (it *Iterator) readable(varName string, tag mem.TypeTag) (*mem.Vector, error) {
	v, ok := it.board.vars[varName]
	if !ok {
		return nil, fmt.Errorf("message %q, variable %q: %w", it.board.name, varName, ErrUnknownVariable)
	}
	if v.Tag() != tag {
		return nil, fmt.Errorf("message %q, variable %q is %s: %w",
			it.board.name, varName, v.Tag(), ErrTypeMismatch)
	}
	if it.AtEnd() {
		return nil, fmt.Errorf("message %q, variable %q: %w", it.board.name, varName, ErrOutOfRange)
	}
	return v, nil
}

// GetInt reads an integer variable of the current message
func (it *Iterator) GetInt(varName string) (int64, error) {
	v, err := it.readable(varName, mem.TypeInt)
	if err != nil {
		return 0, err
	}
	return v.IntAt(it.backend.row()), nil
}

// GetDouble reads a double variable of the current message
func (it *Iterator) GetDouble(varName string) (float64, error) {
	v, err := it.readable(varName, mem.TypeDouble)
	if err != nil {
		return 0, err
	}
	return v.DoubleAt(it.backend.row()), nil
}

// Row is a read-only copy of one message
type Row struct {
	msgName string
	vals    map[string]any
}

// Int reads an integer field from the copied row
func (r Row) Int(varName string) (int64, error) {
	x, ok := r.vals[varName].(int64)
	if !ok {
		if _, exists := r.vals[varName]; !exists {
			return 0, fmt.Errorf("message %q, variable %q: %w", r.msgName, varName, ErrUnknownVariable)
		}
		return 0, fmt.Errorf("message %q, variable %q: %w", r.msgName, varName, ErrTypeMismatch)
	}
	return x, nil
}

// Double reads a double field from the copied row
func (r Row) Double(varName string) (float64, error) {
	x, ok := r.vals[varName].(float64)
	if !ok {
		if _, exists := r.vals[varName]; !exists {
			return 0, fmt.Errorf("message %q, variable %q: %w", r.msgName, varName, ErrUnknownVariable)
		}
		return 0, fmt.Errorf("message %q, variable %q: %w", r.msgName, varName, ErrTypeMismatch)
	}
	return x, nil
}

// CurrentMessage returns a read-only copy of the current message row
func (it *Iterator) CurrentMessage() (Row, error) {
	if it.AtEnd() {
		return Row{}, fmt.Errorf("message %q: %w", it.board.name, ErrOutOfRange)
	}
	row := it.backend.row()
	vals := make(map[string]any, len(it.board.order))
	for _, name := range it.board.order {
		v := it.board.vars[name]
		if v.Tag() == mem.TypeInt {
			vals[name] = v.IntAt(row)
		} else {
			vals[name] = v.DoubleAt(row)
		}
	}
	return Row{msgName: it.board.name, vals: vals}, nil
}

// indices materializes the current backend's row order into an indexed
// backend, converting a raw backend on demand.
func (it *Iterator) indices() *indexedBackend {
	if ix, ok := it.backend.(*indexedBackend); ok {
		return ix
	}
	n := it.backend.count()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	ix := &indexedBackend{board: it.board, indices: idx}
	it.backend = ix
	return ix
}

// Randomize shuffles the iteration order and rewinds. The underlying
// committed store is untouched.
func (it *Iterator) Randomize(rng *rand.Rand) {
	ix := it.indices()
	rng.Shuffle(len(ix.indices), func(i, j int) {
		ix.indices[i], ix.indices[j] = ix.indices[j], ix.indices[i]
	})
	ix.rewind()
}

// SortByInt orders iteration by an integer variable, ascending, and
// rewinds
func (it *Iterator) SortByInt(varName string) error {
	v, ok := it.board.vars[varName]
	if !ok {
		return fmt.Errorf("message %q, variable %q: %w", it.board.name, varName, ErrUnknownVariable)
	}
	if v.Tag() != mem.TypeInt {
		return fmt.Errorf("message %q, variable %q: %w", it.board.name, varName, ErrTypeMismatch)
	}
	ix := it.indices()
	sort.SliceStable(ix.indices, func(a, b int) bool {
		return v.IntAt(ix.indices[a]) < v.IntAt(ix.indices[b])
	})
	ix.rewind()
	return nil
}

// Filter keeps only the rows for which keep returns true, and rewinds.
// keep sees a read-only copy of each row.
func (it *Iterator) Filter(keep func(Row) bool) {
	ix := it.indices()
	kept := ix.indices[:0]
	for _, row := range ix.indices {
		vals := make(map[string]any, len(it.board.order))
		for _, name := range it.board.order {
			v := it.board.vars[name]
			if v.Tag() == mem.TypeInt {
				vals[name] = v.IntAt(row)
			} else {
				vals[name] = v.DoubleAt(row)
			}
		}
		if keep(Row{msgName: it.board.name, vals: vals}) {
			kept = append(kept, row)
		}
	}
	ix.indices = kept
	ix.rewind()
}
