package mem

// Vector is a contiguous, homogeneous column of agent or message variable
// values. It is a tagged variant: exactly one of the backing slices is in
// use, selected by the element type chosen at registration time.
//
// Row access on the hot path is by integer cursor. Begin returns the
// cursor for the first row, Step advances it, and both return None once
// the column is exhausted.
type Vector struct {
	tag     TypeTag
	ints    []int64
	doubles []float64
}

// None is the cursor sentinel returned by Begin and Step when there is no
// further element.
const None = -1

// NewVector creates an empty vector with the given element type
func NewVector(tag TypeTag) *Vector {
	return &Vector{tag: tag}
}

// Tag returns the element type tag
func (v *Vector) Tag() TypeTag {
	return v.tag
}

// Len returns the number of elements
func (v *Vector) Len() int {
	if v.tag == TypeInt {
		return len(v.ints)
	}
	return len(v.doubles)
}

// Empty reports whether the vector holds no elements
func (v *Vector) Empty() bool {
	return v.Len() == 0
}

// Reserve grows capacity to at least n. Element order is preserved and
// capacity never shrinks.
func (v *Vector) Reserve(n int) {
	switch v.tag {
	case TypeInt:
		if cap(v.ints) < n {
			grown := make([]int64, len(v.ints), n)
			copy(grown, v.ints)
			v.ints = grown
		}
	case TypeDouble:
		if cap(v.doubles) < n {
			grown := make([]float64, len(v.doubles), n)
			copy(grown, v.doubles)
			v.doubles = grown
		}
	}
}

// Begin returns the cursor of the first element, or None if empty
func (v *Vector) Begin() int {
	if v.Len() == 0 {
		return None
	}
	return 0
}

// Step advances a cursor produced by Begin or a previous Step. It returns
// None past the last element or when given None.
func (v *Vector) Step(cursor int) int {
	next := cursor + 1
	if cursor == None || next >= v.Len() {
		return None
	}
	return next
}

// ExtendFrom appends all elements of another vector of the same element
// type. The source is left untouched.
func (v *Vector) ExtendFrom(other *Vector) error {
	if other.tag != v.tag {
		return ErrTypeMismatch
	}
	switch v.tag {
	case TypeInt:
		v.ints = append(v.ints, other.ints...)
	case TypeDouble:
		v.doubles = append(v.doubles, other.doubles...)
	}
	return nil
}

// CloneEmpty returns a new empty vector of the same element type
func (v *Vector) CloneEmpty() *Vector {
	return &Vector{tag: v.tag}
}

// Truncate drops all elements but keeps the allocated capacity
func (v *Vector) Truncate() {
	switch v.tag {
	case TypeInt:
		v.ints = v.ints[:0]
	case TypeDouble:
		v.doubles = v.doubles[:0]
	}
}

// AppendInt appends an integer element
func (v *Vector) AppendInt(x int64) error {
	if v.tag != TypeInt {
		return ErrTypeMismatch
	}
	v.ints = append(v.ints, x)
	return nil
}

// AppendDouble appends a double element
func (v *Vector) AppendDouble(x float64) error {
	if v.tag != TypeDouble {
		return ErrTypeMismatch
	}
	v.doubles = append(v.doubles, x)
	return nil
}

// IntAt returns the integer element at cursor i. The cursor must be valid.
func (v *Vector) IntAt(i int) int64 {
	return v.ints[i]
}

// DoubleAt returns the double element at cursor i. The cursor must be valid.
func (v *Vector) DoubleAt(i int) float64 {
	return v.doubles[i]
}

// SetIntAt overwrites the integer element at cursor i
func (v *Vector) SetIntAt(i int, x int64) {
	v.ints[i] = x
}

// SetDoubleAt overwrites the double element at cursor i
func (v *Vector) SetDoubleAt(i int, x float64) {
	v.doubles[i] = x
}

// Ints exposes the backing integer column. Writers flushing population
// snapshots read columns through this; callers must not retain the slice
// across an append.
func (v *Vector) Ints() []int64 {
	return v.ints
}

// Doubles exposes the backing double column
func (v *Vector) Doubles() []float64 {
	return v.doubles
}

// RemoveRows deletes the rows whose indices appear in the sorted slice
// dead, preserving the order of the survivors. Used by end-of-iteration
// compaction.
func (v *Vector) RemoveRows(dead []int) {
	if len(dead) == 0 {
		return
	}
	switch v.tag {
	case TypeInt:
		v.ints = removeRows(v.ints, dead)
	case TypeDouble:
		v.doubles = removeRows(v.doubles, dead)
	}
}

func removeRows[T any](col []T, dead []int) []T {
	out := col[:0]
	d := 0
	for i := range col {
		if d < len(dead) && dead[d] == i {
			d++
			continue
		}
		out = append(out, col[i])
	}
	return out
}

// Append adds a scalar of type T to the vector
func Append[T Scalar](v *Vector, x T) error {
	switch val := any(x).(type) {
	case int64:
		return v.AppendInt(val)
	case float64:
		return v.AppendDouble(val)
	}
	return ErrInvalidType
}

// At reads the element at cursor i as type T
func At[T Scalar](v *Vector, i int) (T, error) {
	var zero T
	if v.tag != TagOf[T]() {
		return zero, ErrTypeMismatch
	}
	switch v.tag {
	case TypeInt:
		return any(v.IntAt(i)).(T), nil
	case TypeDouble:
		return any(v.DoubleAt(i)).(T), nil
	}
	return zero, ErrInvalidType
}
