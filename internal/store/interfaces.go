package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stitchline/stitchline/models"
)

// EntityRepository is the server-side authoritative entity store. The server
// exclusively owns server_version and is the sole arbiter of conflicts:
// every UPDATE/DELETE carries the caller's base version and fails with
// [ErrVersionConflict] when it is stale.
type EntityRepository interface {
	// Create inserts the entity with version 1. Re-creating an existing id
	// with an identical payload is idempotent and returns the current
	// version; a different payload is a version conflict.
	Create(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (int64, error)

	// Update overwrites the payload and bumps the version when baseVersion
	// matches the stored version. On [ErrVersionConflict] the returned
	// record holds the server's current state for the conflict record.
	Update(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage, baseVersion int64) (int64, models.EntityRecord, error)

	// Delete soft-deletes with the same optimistic check as Update.
	Delete(ctx context.Context, entityType models.EntityType, id string, baseVersion int64) (int64, models.EntityRecord, error)

	// Overwrite force-writes the payload regardless of version, minting a
	// new version. Used by conflict resolution, which has already arbitrated.
	Overwrite(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (int64, error)

	Get(ctx context.Context, entityType models.EntityType, id string) (models.EntityRecord, error)

	// List returns records for bulk pull, soft-deleted rows included so
	// clients can drop their cached copies. updatedSince narrows the result
	// to rows changed after the client's cursor.
	List(ctx context.Context, entityType models.EntityType, updatedSince *time.Time) ([]models.EntityRecord, error)
}

// ConflictScope narrows a conflict listing.
type ConflictScope struct {
	ActorID    string
	EntityType models.EntityType
}

// ConflictRepository persists the conflict workflow: detection rows, the
// pending listing and the one-way PENDING→RESOLVED transition with its
// immutable audit trail.
type ConflictRepository interface {
	Insert(ctx context.Context, conflict models.ConflictRecord) error
	Get(ctx context.Context, conflictID string) (models.ConflictRecord, error)
	ListPending(ctx context.Context, scope ConflictScope) ([]models.ConflictRecord, error)

	// Resolve flips the conflict to RESOLVED, writes the audit entry and
	// applies the outcome to the entity in the same transaction: a non-nil
	// finalPayload overwrites it, tombstone soft-deletes it, neither
	// leaves the server state as is. Returns the entity's resulting
	// server version. Fails with [ErrConflictAlreadyResolved] if the
	// conflict is not PENDING and [ErrNotFound] if it does not exist.
	Resolve(ctx context.Context, conflictID string, resolution models.Resolution, finalPayload json.RawMessage, tombstone bool, actorID, reason string) (int64, error)
}
