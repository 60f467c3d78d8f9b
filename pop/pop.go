package pop

import (
	"errors"
	"fmt"

	"github.com/flocksim/flock/mem"
)

var (
	// ErrIO reports a filesystem or connection failure
	ErrIO = errors.New("pop: i/o error")

	// ErrSchema reports a malformed population or model file
	ErrSchema = errors.New("pop: schema error")

	// ErrUnknownAgent reports a population entry for an undeclared agent
	ErrUnknownAgent = errors.New("pop: unknown agent")

	// ErrUnknownVariable reports a population entry for an undeclared
	// variable
	ErrUnknownVariable = errors.New("pop: unknown variable")

	// ErrBadValue reports a value that cannot be cast to the declared
	// type
	ErrBadValue = errors.New("pop: bad value")

	// ErrUnknownFormat reports a writer format with no registered
	// factory
	ErrUnknownFormat = errors.New("pop: unknown format")

	// ErrNotImplemented reports a recognized but unsupported format
	ErrNotImplemented = errors.New("pop: not implemented")
)

// AddInt is the reader callback for integer values
type AddInt func(agent, varName string, v int64) error

// AddDouble is the reader callback for double values
type AddDouble func(agent, varName string, v float64) error

// Reader populates agent memory from a population file through the two
// supplied callbacks and returns the file's iteration number.
type Reader interface {
	ReadPop(path string, addInt AddInt, addDouble AddDouble) (int, error)
}

// Column is one agent variable column handed to a writer by a pop-write
// task. Exactly one of Ints and Doubles is set, per Tag.
type Column struct {
	Agent   string
	Var     string
	Tag     mem.TypeTag
	Ints    []int64
	Doubles []float64
}

// Len returns the column's row count
func (c Column) Len() int {
	if c.Tag == mem.TypeInt {
		return len(c.Ints)
	}
	return len(c.Doubles)
}

// Writer flushes population snapshots, one per iteration. InitWrite
// opens the snapshot for an iteration, WriteColumn delivers columns in
// any order (possibly concurrently), and FinalizeWrite completes it.
type Writer interface {
	InitWrite(iteration int) error
	WriteColumn(col Column) error
	FinalizeWrite() error
}

// WriterFactory builds a writer for a base output path and the agent
// schema discovered from the memory manager.
type WriterFactory func(base string, schema []mem.AgentLayout) (Writer, error)

// Registry maps output format names to writer factories. The CLI
// registers the built-in formats; embedders may add their own.
type Registry struct {
	factories map[string]WriterFactory
}

// NewRegistry creates an empty writer registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]WriterFactory)}
}

// Register adds a writer factory under a format name. A nil factory
// marks the format as recognized but unsupported.
func (r *Registry) Register(format string, f WriterFactory) error {
	if _, exists := r.factories[format]; exists {
		return fmt.Errorf("format %q registered twice: %w", format, ErrUnknownFormat)
	}
	r.factories[format] = f
	return nil
}

// Formats returns the registered format names
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.factories))
	for f := range r.factories {
		out = append(out, f)
	}
	return out
}

// Create builds a writer for a format. Unregistered formats fail
// UnknownFormat; formats registered with a nil factory fail
// NotImplemented.
func (r *Registry) Create(format, base string, schema []mem.AgentLayout) (Writer, error) {
	f, ok := r.factories[format]
	if !ok {
		return nil, fmt.Errorf("format %q: %w", format, ErrUnknownFormat)
	}
	if f == nil {
		return nil, fmt.Errorf("format %q: %w", format, ErrNotImplemented)
	}
	return f(base, schema)
}
