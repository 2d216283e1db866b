package service

import "errors"

var (
	// ErrInvalidResolution is returned when a resolution request names a
	// strategy other than LOCAL, SERVER or MANUAL.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrMissingManualData is returned when MANUAL is chosen without a
	// merged payload.
	ErrMissingManualData = errors.New("missing manual data")

	// ErrAlreadyResolved is returned when the conflict has already left
	// the PENDING state. Re-resolving is rejected so a duplicate request
	// can never double-apply a resolution.
	ErrAlreadyResolved = errors.New("conflict already resolved")

	// ErrConflictNotFound is returned when the conflict id is unknown.
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrSyncBusy is returned when a drain cycle is requested while one is
	// already running. Triggers treat it as a no-op, not an error worth
	// queuing: the next opportunity picks up any remaining items.
	ErrSyncBusy = errors.New("sync cycle already running")

	// ErrOffline is returned when a drain cycle is requested while the
	// connectivity monitor reports offline.
	ErrOffline = errors.New("device is offline")

	// ErrMaxRetriesExceeded marks a queue item that failed its final retry
	// and was parked as a terminal failure.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
