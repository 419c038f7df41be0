package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the process is running or starting.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrNoBinary is returned by Start when the configuration names no executable.
	ErrNoBinary = errors.New("process: no binary configured")
)
