package fleet

import "errors"

// ErrDigestPanic is returned by Flush when building the digest panicked.
var ErrDigestPanic = errors.New("fleet: digest generation panicked")
