package neuralmem

import "errors"

var (
	// ErrNotFound is returned when a pattern key, pattern id, or session id
	// does not exist. Callers decide the fallback.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch is returned when an embedding vector does not match
	// the store's configured dimensions. The single operation is rejected;
	// no state is modified.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrDuplicateSession is returned when StartSession is called with a
	// session_id that already exists. Callers should reuse the existing session.
	ErrDuplicateSession = errors.New("duplicate session")

	// ErrConcurrencyConflict is surfaced only after bounded internal retries
	// of a contended write have failed.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
