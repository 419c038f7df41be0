package dealer

import "errors"

var (
	// ErrUnknownPolicy is returned when a policy name is not one of Options().
	ErrUnknownPolicy = errors.New("dealer: unknown policy")

	// ErrAttributeNotMirrored is returned when a candidate does not mirror
	// a dealer attribute.
	ErrAttributeNotMirrored = errors.New("dealer: attribute not mirrored by every device")
)
