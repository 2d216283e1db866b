package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stitchline/stitchline/internal/store"
	"github.com/stitchline/stitchline/models"
)

// EntityService is the server-side apply path behind the
// apply-remote-operation endpoints. The server is the sole arbiter of
// conflicts: a stale base version produces a PENDING conflict record and a
// [store.ErrVersionConflict] error carrying it.
type EntityService interface {
	// Create applies a replayed CREATE and returns the authoritative
	// server version. Idempotent for an identical re-submission.
	Create(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage, actorID string) (int64, error)

	// Update applies a replayed UPDATE under optimistic concurrency. On a
	// version mismatch the returned conflict record is non-nil and the
	// error wraps [store.ErrVersionConflict].
	Update(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage, baseVersion int64, actorID string) (int64, *models.ConflictRecord, error)

	// Delete applies a replayed DELETE with the same conflict semantics.
	Delete(ctx context.Context, entityType models.EntityType, id string, baseVersion int64, actorID string) (int64, *models.ConflictRecord, error)

	Get(ctx context.Context, entityType models.EntityType, id string) (models.EntityRecord, error)

	// List serves the bulk pull endpoint.
	List(ctx context.Context, entityType models.EntityType, updatedSince *time.Time) ([]models.EntityRecord, error)
}

// ConflictService is the conflict workflow exposed through the conflict API.
type ConflictService interface {
	List(ctx context.Context, scope store.ConflictScope) (models.ConflictListResponse, error)

	// Resolve applies one resolution decision and returns the entity's
	// resulting server version. Fails with [ErrInvalidResolution],
	// [ErrMissingManualData], [ErrAlreadyResolved] or [ErrConflictNotFound].
	Resolve(ctx context.Context, req models.ResolveConflictRequest) (int64, error)
}

// Services aggregates everything the server handlers depend on.
type Services struct {
	Entity   EntityService
	Conflict ConflictService
}
