package monitor

import "errors"

var (
	// ErrHangRecoveryUnavailable is returned when hang recovery is enabled
	// without a fleet manager.
	ErrHangRecoveryUnavailable = errors.New("monitor: hang recovery requires a fleet manager")

	// ErrUnknownAttribute is returned for attributes the monitor does not mirror.
	ErrUnknownAttribute = errors.New("monitor: unknown attribute")

	// ErrMissingDependency is returned by New when a required dependency is nil.
	ErrMissingDependency = errors.New("monitor: missing dependency")

	// ErrInstanceUnresolved is recorded when the fleet manager does not know
	// the device's instance.
	ErrInstanceUnresolved = errors.New("monitor: device instance not resolved")
)
