package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stitchline/stitchline/models"
)

// LocalStore is the client-side durable store: per-entity record snapshots,
// the write-ahead sync queue, the sync metadata table and the cached
// conflict view, all inside one sqlite database.
//
// Every mutating entity operation is transactional across the entity table
// and the sync queue: a mutation is never recorded without its queue entry
// (or queue-conflation update), and vice versa.
type LocalStore interface {
	// Put writes a local mutation: the entity snapshot is created or
	// updated with local_version+1 and exactly one active queue item is
	// conflated for the entity key. Returns the stored record.
	Put(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (models.EntityRecord, error)

	// Delete removes the local record and conflates a DELETE into the
	// queue. A pending CREATE is absorbed: the record never reached the
	// server, so both the record and the queue item are pruned locally.
	Delete(ctx context.Context, entityType models.EntityType, id string) error

	Get(ctx context.Context, entityType models.EntityType, id string) (models.EntityRecord, error)
	GetAll(ctx context.Context, entityType models.EntityType) ([]models.EntityRecord, error)

	// ConfirmSynced acknowledges a successful server apply for the queue
	// item identified by itemID/revision. The item is removed and the
	// entity record adopts serverVersion. If the item was superseded by a
	// newer conflation mid-flight, the item stays queued and only the
	// record's server_version advances; superseded reports which happened.
	ConfirmSynced(ctx context.Context, item models.QueueItem, serverVersion int64) (superseded bool, err error)

	// Queue operations.
	DequeueBatch(ctx context.Context, maxN int, now time.Time) ([]models.QueueItem, error)
	Requeue(ctx context.Context, item models.QueueItem) error
	RemoveQueueItem(ctx context.Context, itemID string) error
	MarkFailed(ctx context.Context, itemID string) error
	ListFailed(ctx context.Context) ([]models.QueueItem, error)

	// RetryFailed reactivates a parked item with a fresh retry budget.
	// If a newer active item exists for the same entity key the parked
	// item is obsolete and is dropped instead.
	RetryFailed(ctx context.Context, itemID string) error

	// DiscardFailed drops a parked item for good and, when no newer
	// active item covers the entity, releases the record so the next
	// pull refreshes it.
	DiscardFailed(ctx context.Context, itemID string) error
	ActiveCount(ctx context.Context) (int, error)

	// Conflict cache (the client-visible mirror of server-side conflicts).
	CacheConflict(ctx context.Context, conflict models.ConflictRecord) error
	CachedConflicts(ctx context.Context) ([]models.ConflictRecord, error)
	RemoveCachedConflict(ctx context.Context, conflictID string) error

	// ApplyServerState refreshes the local cache from a bulk pull without
	// touching the sync queue. Records with a pending local change are
	// left untouched.
	ApplyServerState(ctx context.Context, records []models.EntityRecord) error

	// AdoptServerRecord overwrites the local snapshot with the server's
	// state unconditionally, clearing the dirty flag. Called when the
	// server has taken over arbitration of a record (a version conflict)
	// so later pulls keep it fresh.
	AdoptServerRecord(ctx context.Context, record models.EntityRecord) error

	// Sync metadata.
	Metadata(ctx context.Context) (models.SyncMetadata, error)
	SetLastSyncAt(ctx context.Context, at time.Time) error
	SetCursor(ctx context.Context, entityType models.EntityType, cursor time.Time) error

	// ClearOfflineData wipes all four local tables.
	ClearOfflineData(ctx context.Context) error
}
