package mb

import (
	"fmt"
	"sync"

	"github.com/flocksim/flock/mem"
)

// Board is a double-buffered message queue for one message type. The
// committed store holds the messages synchronized for the current
// iteration; writers stage new messages privately until the next Sync.
//
// Sync and Clear are only ever invoked by the compiler-inserted msg_sync
// and msg_clear tasks, which the dependency graph orders against all
// readers and posters. Writer issuance takes the board mutex because
// worker clients acquire writers concurrently.
type Board struct {
	name      string
	order     []string
	vars      map[string]*mem.Vector // committed columns
	count     int                    // committed message count
	finalized bool

	mu      sync.Mutex
	writers []*Writer
}

// NewBoard creates an empty board for a message type
func NewBoard(name string) *Board {
	return &Board{
		name: name,
		vars: make(map[string]*mem.Vector),
	}
}

// Name returns the message type name
func (b *Board) Name() string {
	return b.name
}

// DeclareVar declares a message variable. Declarations are rejected once
// any writer has been issued.
func (b *Board) DeclareVar(varName string, tag mem.TypeTag) error {
	if b.finalized {
		return fmt.Errorf("message %q, variable %q: %w", b.name, varName, ErrAlreadyFinalized)
	}
	if _, exists := b.vars[varName]; exists {
		return fmt.Errorf("message %q, variable %q: %w", b.name, varName, ErrDuplicateName)
	}
	b.vars[varName] = mem.NewVector(tag)
	b.order = append(b.order, varName)
	return nil
}

// TypeOf returns the declared type of a message variable
func (b *Board) TypeOf(varName string) (mem.TypeTag, error) {
	v, ok := b.vars[varName]
	if !ok {
		return mem.TypeInvalid, fmt.Errorf("message %q, variable %q: %w", b.name, varName, ErrUnknownVariable)
	}
	return v.Tag(), nil
}

// VarNames returns the declared variable names in declaration order
func (b *Board) VarNames() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Writer finalizes the board and issues a new staging writer. Each worker
// uses its own writer, so posting needs no locking.
func (b *Board) Writer() *Writer {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.finalized = true
	w := &Writer{
		board:     b,
		connected: true,
		vars:      make(map[string]*mem.Vector, len(b.vars)),
	}
	for _, name := range b.order {
		w.vars[name] = b.vars[name].CloneEmpty()
	}
	b.writers = append(b.writers, w)
	return w
}

// Iterator returns a fresh iterator over the currently committed messages
func (b *Board) Iterator() *Iterator {
	return newIterator(newRawBackend(b))
}

// Sync merges every outstanding writer's staged messages into the
// committed store, then disconnects and drops the writers. Message order
// across writers is unspecified; order within one writer is preserved.
// Sync with no outstanding writers is a no-op.
func (b *Board) Sync() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range b.writers {
		for _, name := range b.order {
			if err := b.vars[name].ExtendFrom(w.vars[name]); err != nil {
				return fmt.Errorf("message %q, variable %q: %w", b.name, name, err)
			}
		}
		b.count += w.count
		w.connected = false
	}
	b.writers = b.writers[:0]
	return nil
}

// Clear truncates the committed store. Capacity is preserved.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range b.order {
		b.vars[name].Truncate()
	}
	b.count = 0
}

// CommittedCount returns the number of synchronized messages
func (b *Board) CommittedCount() int {
	return b.count
}

// PendingWriters returns the number of outstanding writers. Used by
// tests and diagnostics.
func (b *Board) PendingWriters() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writers)
}
