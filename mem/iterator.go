package mem

import "fmt"

// MemoryIterator is a row cursor over the variables permitted by a
// shadow. All permitted columns advance together: the cursor is a single
// row index shared by every column, so the view can never observe columns
// at different positions.
//
// The iterator is not safe for concurrent use; each sub-task gets its own
// windowed iterator instead.
type MemoryIterator struct {
	shadow   *Shadow
	offset   int
	count    int
	position int // rows consumed within the window
}

// Rewind resets the cursor to the start of the window
func (it *MemoryIterator) Rewind() {
	it.position = 0
}

// Step advances the cursor one row. It returns false if the window was
// already exhausted.
func (it *MemoryIterator) Step() bool {
	if it.AtEnd() {
		return false
	}
	it.position++
	return true
}

// AtEnd reports whether the cursor is past the last row of the window
func (it *MemoryIterator) AtEnd() bool {
	return it.position >= it.count
}

// Size returns the number of rows in the window
func (it *MemoryIterator) Size() int {
	return it.count
}

// Position returns the number of rows consumed within the window
func (it *MemoryIterator) Position() int {
	return it.position
}

// Row returns the absolute row index in the population table
func (it *MemoryIterator) Row() int {
	return it.offset + it.position
}

// TypeOf returns the element type of a variable visible through the
// shadow
func (it *MemoryIterator) TypeOf(varName string) (TypeTag, error) {
	v, err := it.vector(varName)
	if err != nil {
		return TypeInvalid, err
	}
	return v.Tag(), nil
}

// vector resolves a readable variable, distinguishing unknown variables
// from ones that exist on the agent but were not granted to this shadow.
func (it *MemoryIterator) vector(varName string) (*Vector, error) {
	v, ok := it.shadow.vars[varName]
	if !ok {
		if _, err := it.shadow.am.Vector(varName); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("agent %q, variable %q: %w",
			it.shadow.AgentName(), varName, ErrNoReadAccess)
	}
	return v, nil
}

func (it *MemoryIterator) readable(varName string, tag TypeTag) (*Vector, error) {
	v, err := it.vector(varName)
	if err != nil {
		return nil, err
	}
	if v.Tag() != tag {
		return nil, fmt.Errorf("agent %q, variable %q is %s: %w",
			it.shadow.AgentName(), varName, v.Tag(), ErrTypeMismatch)
	}
	if it.AtEnd() {
		return nil, fmt.Errorf("agent %q, variable %q: %w",
			it.shadow.AgentName(), varName, ErrOutOfRange)
	}
	return v, nil
}

func (it *MemoryIterator) writable(varName string, tag TypeTag) (*Vector, error) {
	v, err := it.readable(varName, tag)
	if err != nil {
		return nil, err
	}
	if !it.shadow.Writable(varName) {
		return nil, fmt.Errorf("agent %q, variable %q: %w",
			it.shadow.AgentName(), varName, ErrNoWriteAccess)
	}
	return v, nil
}

// GetInt reads the current row of an integer variable
func (it *MemoryIterator) GetInt(varName string) (int64, error) {
	v, err := it.readable(varName, TypeInt)
	if err != nil {
		return 0, err
	}
	return v.IntAt(it.Row()), nil
}

// GetDouble reads the current row of a double variable
func (it *MemoryIterator) GetDouble(varName string) (float64, error) {
	v, err := it.readable(varName, TypeDouble)
	if err != nil {
		return 0, err
	}
	return v.DoubleAt(it.Row()), nil
}

// SetInt writes the current row of an integer variable
func (it *MemoryIterator) SetInt(varName string, x int64) error {
	v, err := it.writable(varName, TypeInt)
	if err != nil {
		return err
	}
	v.SetIntAt(it.Row(), x)
	return nil
}

// SetDouble writes the current row of a double variable
func (it *MemoryIterator) SetDouble(varName string, x float64) error {
	v, err := it.writable(varName, TypeDouble)
	if err != nil {
		return err
	}
	v.SetDoubleAt(it.Row(), x)
	return nil
}

// Get reads the current row of a variable as scalar type T
func Get[T Scalar](it *MemoryIterator, varName string) (T, error) {
	var zero T
	v, err := it.readable(varName, TagOf[T]())
	if err != nil {
		return zero, err
	}
	switch v.Tag() {
	case TypeInt:
		return any(v.IntAt(it.Row())).(T), nil
	default:
		return any(v.DoubleAt(it.Row())).(T), nil
	}
}

// Set writes the current row of a variable as scalar type T
func Set[T Scalar](it *MemoryIterator, varName string, x T) error {
	v, err := it.writable(varName, TagOf[T]())
	if err != nil {
		return err
	}
	switch val := any(x).(type) {
	case int64:
		v.SetIntAt(it.Row(), val)
	case float64:
		v.SetDoubleAt(it.Row(), val)
	}
	return nil
}
