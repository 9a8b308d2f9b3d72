package sequence

import (
	"errors"
)

// ErrStopped is returned for mutations submitted after, or still queued
// when, the writer loop stopped.
var ErrStopped = errors.New("sequence writer stopped")
