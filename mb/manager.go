package mb

import (
	"fmt"

	"github.com/flocksim/flock/mem"
)

// Manager is the registry of message boards. One Manager exists per
// engine context. Registration must finish before workers start; the
// remaining operations are routed to the named board.
type Manager struct {
	boards map[string]*Board
	order  []string
}

// NewManager creates an empty board manager
func NewManager() *Manager {
	return &Manager{boards: make(map[string]*Board)}
}

// RegisterMessage registers a new message type
func (m *Manager) RegisterMessage(msgName string) error {
	if _, exists := m.boards[msgName]; exists {
		return fmt.Errorf("message %q: %w", msgName, ErrDuplicateName)
	}
	m.boards[msgName] = NewBoard(msgName)
	m.order = append(m.order, msgName)
	return nil
}

// Board returns the board for a registered message type
func (m *Manager) Board(msgName string) (*Board, error) {
	b, ok := m.boards[msgName]
	if !ok {
		return nil, fmt.Errorf("message %q: %w", msgName, ErrUnknownMessage)
	}
	return b, nil
}

// Exists reports whether a message type is registered
func (m *Manager) Exists(msgName string) bool {
	_, ok := m.boards[msgName]
	return ok
}

// MessageNames returns the registered message names in registration order
func (m *Manager) MessageNames() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// DeclareVar declares a variable on a message type
func (m *Manager) DeclareVar(msgName, varName string, tag mem.TypeTag) error {
	b, err := m.Board(msgName)
	if err != nil {
		return err
	}
	return b.DeclareVar(varName, tag)
}

// Writer issues a new staging writer for a board
func (m *Manager) Writer(msgName string) (*Writer, error) {
	b, err := m.Board(msgName)
	if err != nil {
		return nil, err
	}
	return b.Writer(), nil
}

// Iterator returns a fresh iterator over a board's committed messages
func (m *Manager) Iterator(msgName string) (*Iterator, error) {
	b, err := m.Board(msgName)
	if err != nil {
		return nil, err
	}
	return b.Iterator(), nil
}

// Sync merges all staged messages of a board into its committed store
func (m *Manager) Sync(msgName string) error {
	b, err := m.Board(msgName)
	if err != nil {
		return err
	}
	return b.Sync()
}

// Clear truncates a board's committed store
func (m *Manager) Clear(msgName string) error {
	b, err := m.Board(msgName)
	if err != nil {
		return err
	}
	b.Clear()
	return nil
}

// CommittedCount returns the number of synchronized messages on a board
func (m *Manager) CommittedCount(msgName string) (int, error) {
	b, err := m.Board(msgName)
	if err != nil {
		return 0, err
	}
	return b.CommittedCount(), nil
}
