package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a watched device does not exist in the store.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrSettingNotFound is returned when a memorised setting has never been stored.
	ErrSettingNotFound = errors.New("device: setting not found")

	// ErrInvalidName is returned when a device name is empty, too long or malformed.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrDuplicateName is returned when a name list repeats a device.
	ErrDuplicateName = errors.New("device: duplicate name")

	// ErrInvalidState is returned when a bus state value cannot be parsed.
	ErrInvalidState = errors.New("device: invalid state")
)
