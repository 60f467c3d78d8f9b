package mb

import "errors"

var (
	// ErrUnknownMessage reports a lookup of an unregistered message type
	ErrUnknownMessage = errors.New("mb: unknown message")

	// ErrUnknownVariable reports an undeclared message variable
	ErrUnknownVariable = errors.New("mb: unknown variable")

	// ErrAlreadyFinalized reports a variable declaration after the first
	// writer was issued
	ErrAlreadyFinalized = errors.New("mb: already finalized")

	// ErrDuplicateName reports a name collision on registration
	ErrDuplicateName = errors.New("mb: duplicate name")

	// ErrTypeMismatch reports a typed access that disagrees with the
	// declared variable type
	ErrTypeMismatch = errors.New("mb: type mismatch")

	// ErrNoReadAccess reports an iterator request without read capability
	ErrNoReadAccess = errors.New("mb: no read access")

	// ErrNoPostAccess reports a writer request without post capability
	ErrNoPostAccess = errors.New("mb: no post access")

	// ErrInsufficientData reports a post with declared variables unset
	ErrInsufficientData = errors.New("mb: insufficient data")

	// ErrOutOfRange reports access past the end of an iterator
	ErrOutOfRange = errors.New("mb: out of range")

	// ErrInvalidOperation reports a capability conflict, such as read and
	// post access to the same message
	ErrInvalidOperation = errors.New("mb: invalid operation")
)

// Debug enables the checks that a release build may omit: unset-variable
// detection on post. Type checks are tag comparisons and stay on
// unconditionally.
var Debug = true
