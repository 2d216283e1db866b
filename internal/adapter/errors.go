// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package adapter

import (
	"errors"
	"fmt"

	"github.com/stitchline/stitchline/models"
)

// Sentinel errors mapped from HTTP status codes by mapHTTPError so callers
// can use [errors.Is] for transport-agnostic error handling.
var (
	// ErrBadRequest corresponds to 400 responses.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound corresponds to 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict corresponds to 409 responses: the replayed
	// operation's base version was stale. Never retried automatically —
	// routed to the conflict workflow instead.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInternalServerError corresponds to 5xx responses. Retryable.
	ErrInternalServerError = errors.New("internal server error")

	// ErrNetworkUnavailable wraps transport-level failures (connection
	// refused, DNS, timeout). Retryable with bounded backoff.
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// ConflictError carries the parsed 409 body alongside the
// [ErrVersionConflict] sentinel: both payload sides and the conflict id the
// server minted. Extract with [errors.As].
type ConflictError struct {
	Response models.ConflictResponse
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: conflict %s", ErrVersionConflict, e.Response.ConflictID)
}

// Unwrap lets errors.Is(err, ErrVersionConflict) match a *ConflictError.
func (e *ConflictError) Unwrap() error {
	return ErrVersionConflict
}
