package bus

import "errors"

var (
	// ErrTimeout is returned when a device does not reply in time.
	ErrTimeout = errors.New("bus: request timed out")

	// ErrRemote is returned when a device replies with an error.
	ErrRemote = errors.New("bus: device error")

	// ErrNotStarted is returned for requests made before Start.
	ErrNotStarted = errors.New("bus: not started")

	// ErrUnknownSubscription is returned by Unsubscribe for unknown ids.
	ErrUnknownSubscription = errors.New("bus: unknown subscription")
)
