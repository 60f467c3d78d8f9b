package mem

import "fmt"

// Shadow is a filtered, access-controlled view over one agent's memory.
// A task owns a shadow listing the variables it may touch; iterators
// minted from the shadow enforce the access modes per row.
type Shadow struct {
	am       *AgentMemory
	order    []string
	vars     map[string]*Vector
	writable map[string]struct{}
}

func newShadow(am *AgentMemory) *Shadow {
	return &Shadow{
		am:       am,
		vars:     make(map[string]*Vector),
		writable: make(map[string]struct{}),
	}
}

// AgentName returns the underlying agent type name
func (s *Shadow) AgentName() string {
	return s.am.Name()
}

// Allow adds a variable to the shadow, optionally with write access.
// Adding a variable that does not exist on the agent fails; so does
// adding one whose column length disagrees with columns already added.
func (s *Shadow) Allow(varName string, writable bool) error {
	v, err := s.am.Vector(varName)
	if err != nil {
		return err
	}
	if _, exists := s.vars[varName]; exists {
		return fmt.Errorf("agent %q, variable %q: %w", s.am.Name(), varName, ErrDuplicateName)
	}
	if len(s.order) > 0 && v.Len() != s.Size() {
		return fmt.Errorf("agent %q, variable %q has %d rows, expected %d: %w",
			s.am.Name(), varName, v.Len(), s.Size(), ErrSizeMismatch)
	}
	s.vars[varName] = v
	s.order = append(s.order, varName)
	if writable {
		s.writable[varName] = struct{}{}
	}
	return nil
}

// Size returns the population size visible through the shadow
func (s *Shadow) Size() int {
	if len(s.order) == 0 {
		return s.am.Size()
	}
	return s.vars[s.order[0]].Len()
}

// Readable reports whether a variable is visible through the shadow
func (s *Shadow) Readable(varName string) bool {
	_, ok := s.vars[varName]
	return ok
}

// Writable reports whether a variable may be written through the shadow
func (s *Shadow) Writable(varName string) bool {
	_, ok := s.writable[varName]
	return ok
}

// VarNames returns the permitted variable names in the order they were
// allowed
func (s *Shadow) VarNames() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Iter returns a cursor over the full population
func (s *Shadow) Iter() *MemoryIterator {
	it, _ := s.IterWindow(0, s.Size())
	return it
}

// IterWindow returns a cursor limited to count rows starting at offset.
// Windowed iterators let a splittable task run its rows on several
// workers at once.
func (s *Shadow) IterWindow(offset, count int) (*MemoryIterator, error) {
	if offset < 0 || count < 0 || offset+count > s.Size() {
		return nil, fmt.Errorf("window [%d,%d) over %d rows: %w",
			offset, offset+count, s.Size(), ErrInvalidArgument)
	}
	it := &MemoryIterator{
		shadow: s,
		offset: offset,
		count:  count,
	}
	it.Rewind()
	return it, nil
}
