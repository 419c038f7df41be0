package watchdog

import "errors"

// ErrMissingDependency is returned by New when a required dependency is nil.
var ErrMissingDependency = errors.New("watchdog: missing dependency")
