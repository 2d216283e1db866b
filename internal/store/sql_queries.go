// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package store

const (
	createEntity = `
		INSERT INTO entities (entity_type, entity_id, payload, version, deleted, updated_at)
		VALUES ($1, $2, $3, 1, false, CURRENT_TIMESTAMP)
		ON CONFLICT (entity_type, entity_id) DO NOTHING
		RETURNING version;`

	getEntity = `
		SELECT entity_type, entity_id, payload, version, deleted, updated_at
		FROM entities
		WHERE entity_type = $1 AND entity_id = $2;`

	// Optimistic update: the UPDATE only fires when the caller's base
	// version matches. The outer SELECT reports both the updated version
	// (NULL when the check failed) and the current database state so the
	// caller can distinguish "not found" from "version conflict" in a
	// single round trip.
	updateEntity = `
		WITH updated AS (
			UPDATE entities
			SET payload = $3, version = version + 1, deleted = false, updated_at = CURRENT_TIMESTAMP
			WHERE entity_type = $1 AND entity_id = $2 AND version = $4
			RETURNING version
		)
		SELECT u.version, e.version, e.payload, e.deleted
		FROM entities e
		LEFT JOIN updated u ON true
		WHERE e.entity_type = $1 AND e.entity_id = $2;`

	deleteEntity = `
		WITH updated AS (
			UPDATE entities
			SET deleted = true, version = version + 1, updated_at = CURRENT_TIMESTAMP
			WHERE entity_type = $1 AND entity_id = $2 AND version = $3
			RETURNING version
		)
		SELECT u.version, e.version, e.payload, e.deleted
		FROM entities e
		LEFT JOIN updated u ON true
		WHERE e.entity_type = $1 AND e.entity_id = $2;`

	overwriteEntity = `
		UPDATE entities
		SET payload = $3, version = version + 1, deleted = false, updated_at = CURRENT_TIMESTAMP
		WHERE entity_type = $1 AND entity_id = $2
		RETURNING version;`

	tombstoneEntity = `
		UPDATE entities
		SET deleted = true, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE entity_type = $1 AND entity_id = $2
		RETURNING version;`

	insertConflict = `
		INSERT INTO conflicts (conflict_id, entity_type, entity_id, local_payload, server_payload,
		                       local_version, server_version, actor_id, detected_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'PENDING');`

	getConflict = `
		SELECT conflict_id, entity_type, entity_id, COALESCE(local_payload::text, ''), COALESCE(server_payload::text, ''),
		       local_version, server_version, actor_id, detected_at, status,
		       COALESCE(resolution, ''), COALESCE(resolved_by, ''), resolved_at, COALESCE(reason, '')
		FROM conflicts
		WHERE conflict_id = $1;`

	getConflictForUpdate = `
		SELECT conflict_id, entity_type, entity_id, COALESCE(local_payload::text, ''), COALESCE(server_payload::text, ''),
		       local_version, server_version, actor_id, detected_at, status,
		       COALESCE(resolution, ''), COALESCE(resolved_by, ''), resolved_at, COALESCE(reason, '')
		FROM conflicts
		WHERE conflict_id = $1
		FOR UPDATE;`

	resolveConflict = `
		UPDATE conflicts
		SET status = 'RESOLVED', resolution = $2, resolved_by = $3, resolved_at = CURRENT_TIMESTAMP, reason = $4
		WHERE conflict_id = $1 AND status = 'PENDING';`

	insertConflictAudit = `
		INSERT INTO conflict_audit (conflict_id, resolution, actor_id, reason, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP);`
)
