// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/models"
)

// conflictRepository is the postgres-backed implementation of
// [ConflictRepository].
type conflictRepository struct {
	*DB
	logger *logger.Logger
}

// NewConflictRepository constructs a [ConflictRepository] backed by the
// provided database connection and logger.
func NewConflictRepository(db *DB, logger *logger.Logger) ConflictRepository {
	return &conflictRepository{DB: db, logger: logger}
}

func (c *conflictRepository) Insert(ctx context.Context, conflict models.ConflictRecord) error {
	log := logger.FromContext(ctx)

	_, err := c.DB.ExecContext(ctx, insertConflict,
		conflict.ConflictID, conflict.EntityType, conflict.EntityID,
		nullableJSON(conflict.LocalPayload), nullableJSON(conflict.ServerPayload),
		conflict.LocalVersion, conflict.ServerVersion,
		conflict.ActorID, conflict.DetectedAt,
	)
	if err != nil {
		log.Err(err).
			Str("func", "conflictRepository.Insert").
			Str("conflict_id", conflict.ConflictID).
			Msg("failed to insert conflict record")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return nil
}

func (c *conflictRepository) Get(ctx context.Context, conflictID string) (models.ConflictRecord, error) {
	return scanConflict(c.DB.QueryRowContext(ctx, getConflict, conflictID), conflictID)
}

// ListPending implements ConflictRepository. The listing is built
// dynamically because both scope filters are optional.
func (c *conflictRepository) ListPending(ctx context.Context, scope ConflictScope) ([]models.ConflictRecord, error) {
	log := logger.FromContext(ctx)

	builder := sq.Select(
		"conflict_id", "entity_type", "entity_id", "COALESCE(local_payload::text, '')", "COALESCE(server_payload::text, '')",
		"local_version", "server_version", "actor_id", "detected_at", "status",
		"COALESCE(resolution, '')", "COALESCE(resolved_by, '')", "resolved_at", "COALESCE(reason, '')",
	).
		From("conflicts").
		Where(sq.Eq{"status": models.ConflictPending}).
		OrderBy("detected_at ASC").
		PlaceholderFormat(sq.Dollar)
	if scope.ActorID != "" {
		builder = builder.Where(sq.Eq{"actor_id": scope.ActorID})
	}
	if scope.EntityType != "" {
		builder = builder.Where(sq.Eq{"entity_type": scope.EntityType})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build conflict listing query: %w", err)
	}

	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).Str("func", "conflictRepository.ListPending").Msg("failed to execute conflict listing")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	conflicts := make([]models.ConflictRecord, 0, 10)
	for rows.Next() {
		conflict, scanErr := scanConflictRow(rows.Scan)
		if scanErr != nil {
			return nil, scanErr
		}
		conflicts = append(conflicts, conflict)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return conflicts, nil
}

// Resolve implements ConflictRepository. The row is locked FOR UPDATE so two
// concurrent resolutions of the same conflict serialize; the loser sees
// RESOLVED and gets [ErrConflictAlreadyResolved] without touching the audit
// trail again.
func (c *conflictRepository) Resolve(ctx context.Context, conflictID string, resolution models.Resolution, finalPayload json.RawMessage, tombstone bool, actorID, reason string) (int64, error) {
	log := logger.FromContext(ctx)

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin resolve: %w", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	conflict, err := scanConflict(tx.QueryRowContext(ctx, getConflictForUpdate, conflictID), conflictID)
	if err != nil {
		return 0, err
	}
	if conflict.Status != models.ConflictPending {
		return 0, fmt.Errorf("%w: %s", ErrConflictAlreadyResolved, conflictID)
	}

	serverVersion := conflict.ServerVersion
	switch {
	case tombstone:
		var delErr error
		serverVersion, delErr = tombstoneInTx(ctx, tx, conflict.EntityType, conflict.EntityID)
		if delErr != nil {
			log.Err(delErr).
				Str("func", "conflictRepository.Resolve").
				Str("conflict_id", conflictID).
				Msg("failed to tombstone entity for resolution")
			return 0, delErr
		}
	case finalPayload != nil:
		var overwriteErr error
		serverVersion, overwriteErr = overwriteInTx(ctx, tx, conflict.EntityType, conflict.EntityID, finalPayload)
		if overwriteErr != nil {
			log.Err(overwriteErr).
				Str("func", "conflictRepository.Resolve").
				Str("conflict_id", conflictID).
				Msg("failed to apply resolution payload to entity")
			return 0, overwriteErr
		}
	}

	res, err := tx.ExecContext(ctx, resolveConflict, conflictID, resolution, actorID, reason)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrConflictAlreadyResolved, conflictID)
	}

	if _, err = tx.ExecContext(ctx, insertConflictAudit, conflictID, resolution, actorID, reason); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit resolve: %w", ErrStorageUnavailable, err)
	}

	return serverVersion, nil
}

// nullableJSON maps an absent payload (e.g. the local side of a DELETE
// conflict) to SQL NULL instead of an empty string.
func nullableJSON(payload json.RawMessage) any {
	if len(payload) == 0 {
		return nil
	}
	return string(payload)
}

func tombstoneInTx(ctx context.Context, tx *sql.Tx, entityType models.EntityType, id string) (int64, error) {
	var version int64
	err := tx.QueryRowContext(ctx, tombstoneEntity, entityType, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, id)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return version, nil
}

func overwriteInTx(ctx context.Context, tx *sql.Tx, entityType models.EntityType, id string, payload json.RawMessage) (int64, error) {
	var version int64
	err := tx.QueryRowContext(ctx, overwriteEntity, entityType, id, string(payload)).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, id)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return version, nil
}

func scanConflict(row *sql.Row, conflictID string) (models.ConflictRecord, error) {
	conflict, err := scanConflictRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return conflict, fmt.Errorf("%w: conflict %s", ErrNotFound, conflictID)
	}
	return conflict, err
}

func scanConflictRow(scan func(...any) error) (models.ConflictRecord, error) {
	var conflict models.ConflictRecord
	var localPayload, serverPayload, resolution string

	err := scan(
		&conflict.ConflictID, &conflict.EntityType, &conflict.EntityID,
		&localPayload, &serverPayload,
		&conflict.LocalVersion, &conflict.ServerVersion,
		&conflict.ActorID, &conflict.DetectedAt, &conflict.Status,
		&resolution, &conflict.ResolvedBy, &conflict.ResolvedAt, &conflict.Reason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conflict, err
		}
		return conflict, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	if localPayload != "" {
		conflict.LocalPayload = json.RawMessage(localPayload)
	}
	if serverPayload != "" {
		conflict.ServerPayload = json.RawMessage(serverPayload)
	}
	conflict.Resolution = models.Resolution(resolution)
	return conflict, nil
}
