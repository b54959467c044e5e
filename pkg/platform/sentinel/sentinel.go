package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (wrapped with
// the operation that failed) so services can translate them into domain errors.
//
//   - ErrNotFound: row does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrInvalidState: any other integrity constraint rejected the write
//   - ErrBusy: lock wait timed out, serialization failure or deadlock; retryable
//   - ErrUnavailable: the store could not be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrBusy         = errors.New("busy")
	ErrUnavailable  = errors.New("unavailable")
)
