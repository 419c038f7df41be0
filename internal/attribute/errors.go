package attribute

import "errors"

var (
	// ErrUnknownAttribute is returned for names that were never registered.
	ErrUnknownAttribute = errors.New("attribute: unknown attribute")

	// ErrReadOnly is returned when writing an attribute without a write handler.
	ErrReadOnly = errors.New("attribute: read-only")

	// ErrInvalidValue is returned by write handlers rejecting a value.
	ErrInvalidValue = errors.New("attribute: invalid value")

	// ErrDuplicateAttribute is returned when a name is registered twice.
	ErrDuplicateAttribute = errors.New("attribute: already registered")
)
