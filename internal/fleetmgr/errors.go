package fleetmgr

import "errors"

var (
	// ErrStartFailed is returned by StartAll when a managed instance did not start.
	ErrStartFailed = errors.New("fleetmgr: instance failed to start")

	// ErrDuplicateDevice is returned when two instances claim the same device.
	ErrDuplicateDevice = errors.New("fleetmgr: device hosted by more than one instance")
)
