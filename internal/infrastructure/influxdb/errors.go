package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when telemetry is switched off.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	// ErrUnreachable means the server did not answer a ping.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrUnhealthy means the server answered but reported itself unready.
	ErrUnhealthy = errors.New("influxdb: server not ready")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("influxdb: client closed")
)
