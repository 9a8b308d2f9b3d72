package reindex

import (
	"errors"
	"fmt"
)

// WriteConflictError reports that a shift-then-insert could not commit,
// typically because a concurrent writer invalidated the read snapshot or
// held the database lock. The operation is safe to retry with a fresh
// snapshot.
type WriteConflictError struct {
	SequenceKey string
	Index       int
	Err         error
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict inserting into %s at %d: %v", e.SequenceKey, e.Index, e.Err)
}

func (e *WriteConflictError) Unwrap() error {
	return e.Err
}

// IsWriteConflict reports whether err is, or wraps, a WriteConflictError.
func IsWriteConflict(err error) bool {
	var wc *WriteConflictError
	return errors.As(err, &wc)
}

// ErrRetriesExhausted is wrapped into the final error when every attempt
// hit a write conflict.
var ErrRetriesExhausted = errors.New("write retries exhausted")
