// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/models"
)

const (
	metaKeyLastSyncAt   = "last_sync_at"
	metaKeyCursorPrefix = "cursor:"
)

// localRepository is the sqlite-backed implementation of [LocalStore].
//
// Entity writes and queue conflation always happen inside one sqlite
// transaction, so a crash can never leave a recorded mutation without its
// queue entry or the other way around.
type localRepository struct {
	*DB
	logger *logger.Logger
}

// NewLocalStore constructs a [LocalStore] backed by the provided sqlite
// connection and logger.
func NewLocalStore(db *DB, logger *logger.Logger) LocalStore {
	return &localRepository{DB: db, logger: logger}
}

// Put implements LocalStore. The replayed operation is CREATE while the
// server has never acknowledged the entity (no record row, or an active
// CREATE still queued), UPDATE otherwise.
func (r *localRepository) Put(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (models.EntityRecord, error) {
	log := r.logger
	now := time.Now().UTC()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.EntityRecord{}, fmt.Errorf("%w: begin put: %w", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	rec, recErr := scanRecord(tx.QueryRowContext(ctx, getEntityRecord, entityType, id))
	if recErr != nil && !errors.Is(recErr, sql.ErrNoRows) {
		return models.EntityRecord{}, recErr
	}

	item, hasActive, err := scanActiveItem(ctx, tx, entityType, id)
	if err != nil {
		return models.EntityRecord{}, err
	}

	op := models.OpUpdate
	localVersion := rec.LocalVersion + 1
	serverVersion := rec.ServerVersion
	switch {
	case errors.Is(recErr, sql.ErrNoRows) && hasActive && item.Operation == models.OpDelete:
		// Re-create after a locally deleted but not yet synced record:
		// the server still holds it, so conflate into an UPDATE.
		localVersion = item.BaseVersion + 1
		serverVersion = item.BaseVersion
	case errors.Is(recErr, sql.ErrNoRows):
		op = models.OpCreate
		localVersion = 1
		serverVersion = 0
	case hasActive && item.Operation == models.OpCreate:
		// Still unborn server-side: keep replaying as CREATE.
		op = models.OpCreate
	}

	updated := models.EntityRecord{
		EntityType:    entityType,
		ID:            id,
		Payload:       payload,
		LocalVersion:  localVersion,
		ServerVersion: serverVersion,
		UpdatedAt:     now,
	}

	if _, err = tx.ExecContext(ctx, upsertEntityRecord, entityType, id, string(payload), localVersion, serverVersion, now); err != nil {
		log.Err(err).Str("func", "localRepository.Put").Str("entity_id", id).Msg("failed to upsert entity record")
		return models.EntityRecord{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	if err = conflate(ctx, tx, op, entityType, id, payload, serverVersion, now, item, hasActive); err != nil {
		log.Err(err).Str("func", "localRepository.Put").Str("entity_id", id).Msg("failed to conflate queue item")
		return models.EntityRecord{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.EntityRecord{}, fmt.Errorf("%w: commit put: %w", ErrStorageUnavailable, err)
	}

	return updated, nil
}

// Delete implements LocalStore. A pending CREATE absorbs the DELETE: the
// record never existed server-side, so both rows are pruned with no network
// call ever issued.
func (r *localRepository) Delete(ctx context.Context, entityType models.EntityType, id string) error {
	now := time.Now().UTC()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin delete: %w", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	rec, recErr := scanRecord(tx.QueryRowContext(ctx, getEntityRecord, entityType, id))
	if recErr != nil && !errors.Is(recErr, sql.ErrNoRows) {
		return recErr
	}

	item, hasActive, err := scanActiveItem(ctx, tx, entityType, id)
	if err != nil {
		return err
	}
	if errors.Is(recErr, sql.ErrNoRows) && !hasActive {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, id)
	}

	if _, err = tx.ExecContext(ctx, deleteEntityRecord, entityType, id); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	if hasActive && item.Operation == models.OpCreate {
		if _, err = tx.ExecContext(ctx, removeQueueItem, item.ID); err != nil {
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
		return commit(tx)
	}

	baseVersion := rec.ServerVersion
	if hasActive && baseVersion < item.BaseVersion {
		baseVersion = item.BaseVersion
	}
	if err = conflate(ctx, tx, models.OpDelete, entityType, id, nil, baseVersion, now, item, hasActive); err != nil {
		return err
	}

	return commit(tx)
}

func (r *localRepository) Get(ctx context.Context, entityType models.EntityType, id string) (models.EntityRecord, error) {
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, getEntityRecord, entityType, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.EntityRecord{}, fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, id)
	}
	return rec, err
}

func (r *localRepository) GetAll(ctx context.Context, entityType models.EntityType) ([]models.EntityRecord, error) {
	rows, err := r.DB.QueryContext(ctx, getAllEntityRecords, entityType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	records := make([]models.EntityRecord, 0, 50)
	for rows.Next() {
		var rec models.EntityRecord
		var payload string
		if err = rows.Scan(&rec.EntityType, &rec.ID, &payload, &rec.LocalVersion, &rec.ServerVersion, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return records, nil
}

// ConfirmSynced implements LocalStore. Removal is keyed on (id, revision):
// when a later mutation conflated into the item while its network call was
// in flight, the delete misses, the item stays queued for the next cycle
// with the freshly learned base version, and superseded=true is reported.
func (r *localRepository) ConfirmSynced(ctx context.Context, item models.QueueItem, serverVersion int64) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin confirm: %w", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, removeQueueItemAtRevision, item.ID, item.Revision)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	superseded := removed == 0
	if superseded {
		if _, err = tx.ExecContext(ctx, adoptServerVersionOnActive, serverVersion, item.EntityType, item.EntityID); err != nil {
			return false, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
		if _, err = tx.ExecContext(ctx, setRecordServerVersion, serverVersion, serverVersion, item.EntityType, item.EntityID); err != nil {
			return false, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
	} else if item.Operation != models.OpDelete {
		if _, err = tx.ExecContext(ctx, markRecordClean, serverVersion, serverVersion, item.EntityType, item.EntityID); err != nil {
			return false, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit confirm: %w", ErrStorageUnavailable, err)
	}

	return superseded, nil
}

// DequeueBatch implements LocalStore. The ordering is deterministic:
// priority rank descending (critical first), then enqueued_at ascending.
// Items inside their backoff window (next_attempt_at > now) and failed
// items are skipped.
func (r *localRepository) DequeueBatch(ctx context.Context, maxN int, now time.Time) ([]models.QueueItem, error) {
	rows, err := r.DB.QueryContext(ctx, dequeueBatch, now.UTC(), maxN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (r *localRepository) Requeue(ctx context.Context, item models.QueueItem) error {
	if _, err := r.DB.ExecContext(ctx, requeueItem, item.RetryCount, item.NextAttemptAt.UTC(), item.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}

func (r *localRepository) RemoveQueueItem(ctx context.Context, itemID string) error {
	if _, err := r.DB.ExecContext(ctx, removeQueueItem, itemID); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}

func (r *localRepository) MarkFailed(ctx context.Context, itemID string) error {
	if _, err := r.DB.ExecContext(ctx, markQueueItemFailed, itemID); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}

func (r *localRepository) ListFailed(ctx context.Context) ([]models.QueueItem, error) {
	rows, err := r.DB.QueryContext(ctx, listFailedQueueItems)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// RetryFailed implements LocalStore. The entity key may have been mutated
// again since the item was parked; the newer active item then carries the
// latest payload and the queue allows only one active item per key, so the
// parked item is dropped rather than reactivated.
func (r *localRepository) RetryFailed(ctx context.Context, itemID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin retry: %w", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	item, err := scanItem(tx.QueryRowContext(ctx, getFailedQueueItem, itemID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: failed item %s", ErrNotFound, itemID)
	}
	if err != nil {
		return err
	}

	if _, _, hasActive, err := activeItemID(ctx, tx, item.EntityType, item.EntityID); err != nil {
		return err
	} else if hasActive {
		if _, err = tx.ExecContext(ctx, removeQueueItem, itemID); err != nil {
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
		return commit(tx)
	}

	if _, err = tx.ExecContext(ctx, retryFailedQueueItem, time.Now().UTC(), itemID); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return commit(tx)
}

// DiscardFailed implements LocalStore. Dropping the item abandons the local
// change, so unless a newer active item still covers the entity the record's
// local version falls back to the server's and the next pull refreshes it.
func (r *localRepository) DiscardFailed(ctx context.Context, itemID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin discard: %w", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	item, err := scanItem(tx.QueryRowContext(ctx, getFailedQueueItem, itemID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: failed item %s", ErrNotFound, itemID)
	}
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, removeQueueItem, itemID); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	if _, _, hasActive, err := activeItemID(ctx, tx, item.EntityType, item.EntityID); err != nil {
		return err
	} else if !hasActive {
		if _, err = tx.ExecContext(ctx, releaseRecordForRefresh, item.EntityType, item.EntityID); err != nil {
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
	}

	return commit(tx)
}

func (r *localRepository) ActiveCount(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, countActiveQueueItems).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return n, nil
}

func (r *localRepository) CacheConflict(ctx context.Context, conflict models.ConflictRecord) error {
	record, err := json.Marshal(conflict)
	if err != nil {
		return fmt.Errorf("encode conflict record: %w", err)
	}
	if _, err = r.DB.ExecContext(ctx, insertConflictCache, conflict.ConflictID, string(record), conflict.DetectedAt.UTC()); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}

func (r *localRepository) CachedConflicts(ctx context.Context) ([]models.ConflictRecord, error) {
	rows, err := r.DB.QueryContext(ctx, listConflictCache)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	conflicts := make([]models.ConflictRecord, 0, 10)
	for rows.Next() {
		var raw string
		if err = rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		var c models.ConflictRecord
		if err = json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode conflict record: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return conflicts, nil
}

func (r *localRepository) RemoveCachedConflict(ctx context.Context, conflictID string) error {
	if _, err := r.DB.ExecContext(ctx, deleteConflictCache, conflictID); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}

// ApplyServerState implements LocalStore. Pulled server state only refreshes
// clean records; anything with a pending local change keeps its local copy
// until the queue drains or the divergence surfaces as a conflict.
func (r *localRepository) ApplyServerState(ctx context.Context, records []models.EntityRecord) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin apply: %w", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	for _, server := range records {
		local, recErr := scanRecord(tx.QueryRowContext(ctx, getEntityRecord, server.EntityType, server.ID))
		if recErr != nil && !errors.Is(recErr, sql.ErrNoRows) {
			return recErr
		}
		if recErr == nil && local.Dirty() {
			continue
		}
		if _, _, hasActive, err := activeItemID(ctx, tx, server.EntityType, server.ID); err != nil {
			return err
		} else if hasActive {
			continue
		}

		if server.Deleted {
			if _, err = tx.ExecContext(ctx, deleteEntityRecord, server.EntityType, server.ID); err != nil {
				return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
			}
			continue
		}

		if _, err = tx.ExecContext(ctx, upsertEntityRecord,
			server.EntityType, server.ID, string(server.Payload),
			server.ServerVersion, server.ServerVersion, server.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
		// upsert keeps server_version untouched on conflict; set both explicitly
		if _, err = tx.ExecContext(ctx, markRecordClean, server.ServerVersion, server.ServerVersion, server.EntityType, server.ID); err != nil {
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
	}

	return commit(tx)
}

// AdoptServerRecord implements LocalStore. Unlike ApplyServerState it does
// not care whether the record is dirty: the server has taken over the record
// and the local copy must match it so later pulls keep refreshing it.
func (r *localRepository) AdoptServerRecord(ctx context.Context, record models.EntityRecord) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin adopt: %w", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	if record.Deleted || len(record.Payload) == 0 {
		if _, err = tx.ExecContext(ctx, deleteEntityRecord, record.EntityType, record.ID); err != nil {
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
		return commit(tx)
	}

	if _, err = tx.ExecContext(ctx, upsertEntityRecord,
		record.EntityType, record.ID, string(record.Payload),
		record.ServerVersion, record.ServerVersion, record.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if _, err = tx.ExecContext(ctx, markRecordClean, record.ServerVersion, record.ServerVersion, record.EntityType, record.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return commit(tx)
}

func (r *localRepository) Metadata(ctx context.Context) (models.SyncMetadata, error) {
	meta := models.SyncMetadata{Cursors: make(map[models.EntityType]time.Time)}

	rows, err := r.DB.QueryContext(ctx, getAllMetadata)
	if err != nil {
		return meta, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err = rows.Scan(&key, &value); err != nil {
			return meta, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}

		t, parseErr := time.Parse(time.RFC3339Nano, value)
		if parseErr != nil {
			continue
		}
		switch {
		case key == metaKeyLastSyncAt:
			at := t
			meta.LastSyncAt = &at
		case strings.HasPrefix(key, metaKeyCursorPrefix):
			meta.Cursors[models.EntityType(strings.TrimPrefix(key, metaKeyCursorPrefix))] = t
		}
	}
	if err = rows.Err(); err != nil {
		return meta, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return meta, nil
}

func (r *localRepository) SetLastSyncAt(ctx context.Context, at time.Time) error {
	return r.setMeta(ctx, metaKeyLastSyncAt, at)
}

func (r *localRepository) SetCursor(ctx context.Context, entityType models.EntityType, cursor time.Time) error {
	return r.setMeta(ctx, metaKeyCursorPrefix+string(entityType), cursor)
}

func (r *localRepository) setMeta(ctx context.Context, key string, t time.Time) error {
	if _, err := r.DB.ExecContext(ctx, upsertMetadataValue, key, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}

func (r *localRepository) ClearOfflineData(ctx context.Context) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin clear: %w", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	for _, table := range []string{"entity_records", "sync_queue", "sync_metadata", "conflict_cache"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
	}

	return commit(tx)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStorageUnavailable, err)
	}
	return nil
}

func scanRecord(row *sql.Row) (models.EntityRecord, error) {
	var rec models.EntityRecord
	var payload string
	err := row.Scan(&rec.EntityType, &rec.ID, &payload, &rec.LocalVersion, &rec.ServerVersion, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}
	rec.Payload = json.RawMessage(payload)
	return rec, nil
}

func scanActiveItem(ctx context.Context, tx *sql.Tx, entityType models.EntityType, id string) (models.QueueItem, bool, error) {
	row := tx.QueryRowContext(ctx, getActiveQueueItem, entityType, id)
	item, err := scanItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.QueueItem{}, false, nil
	}
	if err != nil {
		return models.QueueItem{}, false, err
	}
	return item, true, nil
}

func activeItemID(ctx context.Context, tx *sql.Tx, entityType models.EntityType, id string) (string, int64, bool, error) {
	item, found, err := scanActiveItem(ctx, tx, entityType, id)
	return item.ID, item.Revision, found, err
}

func conflate(ctx context.Context, tx *sql.Tx, op models.Operation, entityType models.EntityType, id string, payload json.RawMessage, baseVersion int64, now time.Time, existing models.QueueItem, hasExisting bool) error {
	prio := models.PriorityFor(entityType, op)

	var payloadArg any
	if payload != nil {
		payloadArg = string(payload)
	}

	if hasExisting {
		// Replace in place: original enqueued_at survives for fairness,
		// retry budget and backoff window reset for the fresh payload.
		if _, err := tx.ExecContext(ctx, conflateQueueItem, op, payloadArg, baseVersion, now, prio, prio.Rank(), existing.ID); err != nil {
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
		return nil
	}

	itemID := fmt.Sprintf("%s:%s:%d", entityType, id, now.UnixNano())
	if _, err := tx.ExecContext(ctx, insertQueueItem, itemID, op, entityType, id, payloadArg, baseVersion, now, now, prio, prio.Rank()); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}

func collectItems(rows *sql.Rows) ([]models.QueueItem, error) {
	items := make([]models.QueueItem, 0, 20)
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return items, nil
}

func scanItem(scan func(...any) error) (models.QueueItem, error) {
	var item models.QueueItem
	var payload sql.NullString
	var rank int
	err := scan(
		&item.ID, &item.Operation, &item.EntityType, &item.EntityID, &payload,
		&item.BaseVersion, &item.Revision, &item.EnqueuedAt, &item.RetryCount,
		&item.NextAttemptAt, &item.Priority, &rank, &item.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, err
		}
		return item, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}
	if payload.Valid {
		item.Payload = json.RawMessage(payload.String)
	}
	return item, nil
}
