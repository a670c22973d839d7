package querycache

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCanceled is returned to callers waiting on a fetch that was aborted.
	// The aborted fetch never writes to the store.
	ErrCanceled = errors.New("querycache: fetch canceled")
	// ErrClosed is returned once the client has been closed.
	ErrClosed = errors.New("querycache: closed")
	// ErrInvalidKey wraps key encoding failures (e.g. a func or chan part).
	ErrInvalidKey = errors.New("querycache: invalid key")
	// ErrNoFetcher is returned by Refetch for a key no query has registered.
	ErrNoFetcher = errors.New("querycache: no fetcher registered")
	// ErrTypeMismatch is returned by typed reads when the entry holds another type.
	ErrTypeMismatch = errors.New("querycache: payload type mismatch")
)

// StatusCoder is implemented by remote errors that carry an HTTP-style status.
type StatusCoder interface {
	StatusCode() int
}

// StatusOf returns the status of the first StatusCoder in err's chain, or 0.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// IsUnauthorized reports whether err carries a 401 status.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// MutationError is returned when a mutation's remote write fails. The cache
// has been rolled back to the pre-mutation snapshot by the time it is returned.
type MutationError struct {
	Name string
	ID   string
	// Err is the remote write error.
	Err error
	// RestoreErr is set when some snapshot entries could not be written back
	// and were evicted instead.
	RestoreErr error
}

func (e *MutationError) Error() string {
	if e.RestoreErr != nil {
		return fmt.Sprintf("mutation %s (%s) failed: %v; restore: %v", e.Name, e.ID, e.Err, e.RestoreErr)
	}
	return fmt.Sprintf("mutation %s (%s) failed: %v", e.Name, e.ID, e.Err)
}

func (e *MutationError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.RestoreErr != nil {
		errs = append(errs, e.RestoreErr)
	}
	return errs
}
