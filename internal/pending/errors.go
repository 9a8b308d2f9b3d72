package pending

import (
	"errors"
	"fmt"
)

// ErrUnknownEntry is returned for an ID the set does not hold, including
// entries already retired by Observe.
var ErrUnknownEntry = errors.New("unknown pending entry")

// ErrEntryExists is returned by Create for an ID already pending.
var ErrEntryExists = errors.New("pending entry already exists")

// TransitionError reports a state change the lifecycle does not allow.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("pending %s: illegal transition %s -> %s", e.ID, e.From, e.To)
}

// IsTransition reports whether err is, or wraps, a TransitionError.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
