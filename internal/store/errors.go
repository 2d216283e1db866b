package store

import "errors"

// Sentinel errors shared by the client (sqlite) and server (postgres)
// repositories. Callers match against them with [errors.Is].
var (
	// ErrStorageUnavailable signals that the underlying storage transaction
	// could not be started or committed. Neither table was modified; the
	// caller must retry the whole operation.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned by the server entity repository when an
	// optimistic-concurrency check fails: the caller's base version no
	// longer matches the current database version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrConflictAlreadyResolved is returned when a resolution is applied to
	// a conflict that has already left the PENDING state.
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")

	// ErrExecutingQuery wraps failures of query execution.
	ErrExecutingQuery = errors.New("failed to execute query")

	// ErrScanningRow wraps failures while scanning a result row.
	ErrScanningRow = errors.New("failed to scan row")
)
