package fetch

import (
	"errors"
	"fmt"

	"github.com/roach88/hybridseq/internal/item"
)

// ErrSuperseded is returned to a caller whose response arrived after a newer
// request for the same source had started. The response was discarded.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// ErrOffline is returned when a remote fetch is skipped because the network
// reports itself unavailable.
var ErrOffline = errors.New("network offline")

// LocalFetchError reports a failed read of the local store. The sequence
// cannot render without local data, so this is fatal for the view.
type LocalFetchError struct {
	Params item.Params
	Cursor int
	Err    error
}

func (e *LocalFetchError) Error() string {
	return fmt.Sprintf("local fetch %s page %d: %v", e.Params, e.Cursor, e.Err)
}

func (e *LocalFetchError) Unwrap() error {
	return e.Err
}

// RemoteFetchError reports a failed read of the cloud mirror. Local data
// keeps rendering; only the remote slice of state carries the error.
type RemoteFetchError struct {
	Params item.Params
	Cursor int
	Err    error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("remote fetch %s page %d: %v", e.Params, e.Cursor, e.Err)
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

// IsLocalFetch reports whether err is, or wraps, a LocalFetchError.
func IsLocalFetch(err error) bool {
	var lf *LocalFetchError
	return errors.As(err, &lf)
}

// IsRemoteFetch reports whether err is, or wraps, a RemoteFetchError.
func IsRemoteFetch(err error) bool {
	var rf *RemoteFetchError
	return errors.As(err, &rf)
}

func wrapFetchError(src item.Source, params item.Params, cursor int, err error) error {
	if src == item.SourceRemote {
		return &RemoteFetchError{Params: params, Cursor: cursor, Err: err}
	}
	return &LocalFetchError{Params: params, Cursor: cursor, Err: err}
}
