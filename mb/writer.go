package mb

import (
	"fmt"

	"github.com/flocksim/flock/mem"
)

// Writer is a per-worker staging area for one board. Values posted
// through a writer stay invisible to readers until the board's next Sync.
// A writer that has been consumed by Sync is disconnected; clients
// transparently re-acquire a fresh one.
type Writer struct {
	board     *Board
	vars      map[string]*mem.Vector // staging columns
	count     int
	connected bool
}

// Connected reports whether the writer is still attached to its board.
// Sync disconnects writers.
func (w *Writer) Connected() bool {
	return w.connected
}

// Count returns the number of messages staged so far
func (w *Writer) Count() int {
	return w.count
}

// NewMessage returns a message handle with all variables unset. The same
// writer may build and post any number of messages in sequence.
func (w *Writer) NewMessage() *Message {
	return &Message{
		writer: w,
		set:    make(map[string]any, len(w.vars)),
	}
}

// Message is one outgoing message row under construction
type Message struct {
	writer *Writer
	set    map[string]any
}

// SetInt stores an integer field value
func (m *Message) SetInt(varName string, x int64) error {
	return m.put(varName, mem.TypeInt, x)
}

// SetDouble stores a double field value
func (m *Message) SetDouble(varName string, x float64) error {
	return m.put(varName, mem.TypeDouble, x)
}

func (m *Message) put(varName string, tag mem.TypeTag, val any) error {
	v, ok := m.writer.vars[varName]
	if !ok {
		return fmt.Errorf("message %q, variable %q: %w", m.writer.board.name, varName, ErrUnknownVariable)
	}
	if v.Tag() != tag {
		return fmt.Errorf("message %q, variable %q is %s: %w",
			m.writer.board.name, varName, v.Tag(), ErrTypeMismatch)
	}
	m.set[varName] = val
	return nil
}

// Post appends the constructed row to the writer's staging vectors and
// resets the handle so it can build the next message. In debug mode a
// post with any declared variable unset fails InsufficientData and stages
// nothing.
func (m *Message) Post() error {
	w := m.writer
	if Debug {
		for _, name := range w.board.order {
			if _, ok := m.set[name]; !ok {
				return fmt.Errorf("message %q, variable %q unset: %w",
					w.board.name, name, ErrInsufficientData)
			}
		}
	}
	for name, v := range w.vars {
		val, ok := m.set[name]
		if !ok {
			// release mode tolerates partial rows; missing fields
			// default to zero values
			if v.Tag() == mem.TypeInt {
				_ = v.AppendInt(0)
			} else {
				_ = v.AppendDouble(0)
			}
			continue
		}
		switch x := val.(type) {
		case int64:
			_ = v.AppendInt(x)
		case float64:
			_ = v.AppendDouble(x)
		}
	}
	w.count++
	m.set = make(map[string]any, len(w.vars))
	return nil
}

// Set stores a field value of scalar type T
func Set[T mem.Scalar](m *Message, varName string, x T) error {
	switch val := any(x).(type) {
	case int64:
		return m.SetInt(varName, val)
	default:
		return m.SetDouble(varName, val.(float64))
	}
}
