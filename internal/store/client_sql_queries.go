// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package store

const localSchema = `
	CREATE TABLE IF NOT EXISTS entity_records (
		entity_type    TEXT    NOT NULL,
		id             TEXT    NOT NULL,
		payload        TEXT    NOT NULL,
		local_version  INTEGER NOT NULL,
		server_version INTEGER NOT NULL DEFAULT 0,
		updated_at     TIMESTAMP NOT NULL,
		PRIMARY KEY (entity_type, id)
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		id              TEXT PRIMARY KEY,
		operation       TEXT    NOT NULL,
		entity_type     TEXT    NOT NULL,
		entity_id       TEXT    NOT NULL,
		payload         TEXT,
		base_version    INTEGER NOT NULL DEFAULT 0,
		revision        INTEGER NOT NULL DEFAULT 1,
		enqueued_at     TIMESTAMP NOT NULL,
		retry_count     INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMP NOT NULL,
		priority        TEXT    NOT NULL,
		priority_rank   INTEGER NOT NULL,
		status          TEXT    NOT NULL DEFAULT 'active'
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_queue_active_key
		ON sync_queue (entity_type, entity_id) WHERE status = 'active';

	CREATE INDEX IF NOT EXISTS idx_sync_queue_order
		ON sync_queue (status, priority_rank, enqueued_at);

	CREATE TABLE IF NOT EXISTS sync_metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conflict_cache (
		conflict_id TEXT PRIMARY KEY,
		record      TEXT NOT NULL,
		detected_at TIMESTAMP NOT NULL
	);`

const (
	getEntityRecord = `
		SELECT entity_type, id, payload, local_version, server_version, updated_at
		FROM entity_records
		WHERE entity_type = ? AND id = ?;`

	getAllEntityRecords = `
		SELECT entity_type, id, payload, local_version, server_version, updated_at
		FROM entity_records
		WHERE entity_type = ?
		ORDER BY id;`

	upsertEntityRecord = `
		INSERT INTO entity_records (entity_type, id, payload, local_version, server_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			payload       = excluded.payload,
			local_version = excluded.local_version,
			updated_at    = excluded.updated_at;`

	deleteEntityRecord = `
		DELETE FROM entity_records WHERE entity_type = ? AND id = ?;`

	setRecordServerVersion = `
		UPDATE entity_records
		SET server_version = ?,
		    local_version  = MAX(local_version, ?)
		WHERE entity_type = ? AND id = ?;`

	markRecordClean = `
		UPDATE entity_records
		SET server_version = ?, local_version = ?
		WHERE entity_type = ? AND id = ?;`

	getActiveQueueItem = `
		SELECT id, operation, entity_type, entity_id, payload, base_version, revision,
		       enqueued_at, retry_count, next_attempt_at, priority, priority_rank, status
		FROM sync_queue
		WHERE entity_type = ? AND entity_id = ? AND status = 'active';`

	insertQueueItem = `
		INSERT INTO sync_queue (id, operation, entity_type, entity_id, payload, base_version,
		                        revision, enqueued_at, retry_count, next_attempt_at, priority,
		                        priority_rank, status)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, 0, ?, ?, ?, 'active');`

	conflateQueueItem = `
		UPDATE sync_queue
		SET operation     = ?,
		    payload       = ?,
		    base_version  = ?,
		    revision      = revision + 1,
		    retry_count   = 0,
		    next_attempt_at = ?,
		    priority      = ?,
		    priority_rank = ?
		WHERE id = ? AND status = 'active';`

	dequeueBatch = `
		SELECT id, operation, entity_type, entity_id, payload, base_version, revision,
		       enqueued_at, retry_count, next_attempt_at, priority, priority_rank, status
		FROM sync_queue
		WHERE status = 'active' AND next_attempt_at <= ?
		ORDER BY priority_rank DESC, enqueued_at ASC
		LIMIT ?;`

	requeueItem = `
		UPDATE sync_queue
		SET retry_count = ?, next_attempt_at = ?
		WHERE id = ? AND status = 'active';`

	removeQueueItem = `
		DELETE FROM sync_queue WHERE id = ?;`

	removeQueueItemAtRevision = `
		DELETE FROM sync_queue WHERE id = ? AND revision = ?;`

	adoptServerVersionOnActive = `
		UPDATE sync_queue
		SET base_version = ?,
		    operation    = CASE WHEN operation = 'CREATE' THEN 'UPDATE' ELSE operation END
		WHERE entity_type = ? AND entity_id = ? AND status = 'active';`

	markQueueItemFailed = `
		UPDATE sync_queue SET status = 'failed' WHERE id = ?;`

	listFailedQueueItems = `
		SELECT id, operation, entity_type, entity_id, payload, base_version, revision,
		       enqueued_at, retry_count, next_attempt_at, priority, priority_rank, status
		FROM sync_queue
		WHERE status = 'failed'
		ORDER BY enqueued_at ASC;`

	getFailedQueueItem = `
		SELECT id, operation, entity_type, entity_id, payload, base_version, revision,
		       enqueued_at, retry_count, next_attempt_at, priority, priority_rank, status
		FROM sync_queue
		WHERE id = ? AND status = 'failed';`

	retryFailedQueueItem = `
		UPDATE sync_queue
		SET status = 'active', retry_count = 0, next_attempt_at = ?
		WHERE id = ? AND status = 'failed';`

	releaseRecordForRefresh = `
		UPDATE entity_records
		SET local_version = server_version
		WHERE entity_type = ? AND id = ?;`

	countActiveQueueItems = `
		SELECT COUNT(*) FROM sync_queue WHERE status = 'active';`

	getAllMetadata = `
		SELECT key, value FROM sync_metadata;`

	upsertMetadataValue = `
		INSERT INTO sync_metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value;`

	insertConflictCache = `
		INSERT INTO conflict_cache (conflict_id, record, detected_at) VALUES (?, ?, ?)
		ON CONFLICT (conflict_id) DO UPDATE SET record = excluded.record;`

	listConflictCache = `
		SELECT record FROM conflict_cache ORDER BY detected_at ASC;`

	deleteConflictCache = `
		DELETE FROM conflict_cache WHERE conflict_id = ?;`
)
