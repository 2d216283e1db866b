// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/models"
)

// entityRepository is the postgres-backed implementation of
// [EntityRepository]. All apply operations run against the "entities" table;
// version arbitration happens in SQL so concurrent appliers from different
// devices serialize on the row.
type entityRepository struct {
	*DB
	logger *logger.Logger
}

// NewEntityRepository constructs an [EntityRepository] backed by the
// provided database connection and logger.
func NewEntityRepository(db *DB, logger *logger.Logger) EntityRepository {
	return &entityRepository{DB: db, logger: logger}
}

func (p *entityRepository) Create(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (int64, error) {
	log := logger.FromContext(ctx)

	var version int64
	err := p.DB.QueryRowContext(ctx, createEntity, entityType, id, string(payload)).Scan(&version)
	if err == nil {
		return version, nil
	}
	// ErrNoRows means ON CONFLICT DO NOTHING swallowed the insert; a unique
	// violation can still surface when the conflict target races a
	// concurrent insert. Both mean "the id already exists".
	if !errors.Is(err, sql.ErrNoRows) && postgresErrorCode(err) != pgerrcode.UniqueViolation {
		log.Err(err).
			Str("func", "entityRepository.Create").
			Str("entity_id", id).
			Msg("failed to insert entity")
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	// The id already exists. A retried CREATE whose first attempt succeeded
	// carries an identical payload and is acknowledged idempotently; a
	// different payload means two devices invented the same id.
	current, err := p.Get(ctx, entityType, id)
	if err != nil {
		return 0, err
	}
	if !current.Deleted && jsonEqual(current.Payload, payload) {
		return current.ServerVersion, nil
	}

	log.Warn().
		Str("func", "entityRepository.Create").
		Str("entity_id", id).
		Int64("db_version", current.ServerVersion).
		Msg("create collision: id exists with diverged payload")
	return 0, ErrVersionConflict
}

// Update implements EntityRepository using a single-round-trip optimistic
// write (see updateEntity). The three outcomes:
//   - updatedVersion non-NULL  → success;
//   - row missing              → ErrNotFound;
//   - row found, update missed → ErrVersionConflict, current state returned.
func (p *entityRepository) Update(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage, baseVersion int64) (int64, models.EntityRecord, error) {
	return p.optimisticWrite(ctx, "entityRepository.Update", updateEntity, entityType, id, baseVersion, string(payload))
}

// Delete implements EntityRepository. Soft-delete sets the deleted flag and
// bumps the version under the same optimistic check as Update.
func (p *entityRepository) Delete(ctx context.Context, entityType models.EntityType, id string, baseVersion int64) (int64, models.EntityRecord, error) {
	return p.optimisticWrite(ctx, "entityRepository.Delete", deleteEntity, entityType, id, baseVersion)
}

func (p *entityRepository) optimisticWrite(ctx context.Context, funcName, query string, entityType models.EntityType, id string, baseVersion int64, extraArgs ...any) (int64, models.EntityRecord, error) {
	log := logger.FromContext(ctx)

	args := make([]any, 0, 4)
	args = append(args, entityType, id)
	args = append(args, extraArgs...)
	args = append(args, baseVersion)

	var updatedVersion sql.NullInt64
	var currentVersion int64
	var currentPayload string
	var deleted bool

	err := p.DB.QueryRowContext(ctx, query, args...).Scan(&updatedVersion, &currentVersion, &currentPayload, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.EntityRecord{}, fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, id)
	}
	if err != nil {
		log.Err(err).Str("func", funcName).Str("entity_id", id).Msg("failed to execute optimistic write")
		return 0, models.EntityRecord{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	current := models.EntityRecord{
		EntityType:    entityType,
		ID:            id,
		Payload:       json.RawMessage(currentPayload),
		ServerVersion: currentVersion,
		Deleted:       deleted,
	}

	// row found but the UPDATE missed: version mismatch
	if !updatedVersion.Valid {
		log.Warn().
			Str("func", funcName).
			Str("entity_id", id).
			Int64("db_version", currentVersion).
			Int64("provided_version", baseVersion).
			Msg("optimistic lock failed: version mismatch")
		return 0, current, ErrVersionConflict
	}

	return updatedVersion.Int64, current, nil
}

func (p *entityRepository) Overwrite(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (int64, error) {
	var version int64
	err := p.DB.QueryRowContext(ctx, overwriteEntity, entityType, id, string(payload)).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, id)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return version, nil
}

func (p *entityRepository) Get(ctx context.Context, entityType models.EntityType, id string) (models.EntityRecord, error) {
	var rec models.EntityRecord
	var payload string

	err := p.DB.QueryRowContext(ctx, getEntity, entityType, id).Scan(
		&rec.EntityType, &rec.ID, &payload, &rec.ServerVersion, &rec.Deleted, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%w: %s/%s", ErrNotFound, entityType, id)
	}
	if err != nil {
		return rec, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	rec.Payload = json.RawMessage(payload)
	rec.LocalVersion = rec.ServerVersion
	return rec, nil
}

// List implements EntityRepository. The query is built dynamically because
// the updated_since filter is optional.
func (p *entityRepository) List(ctx context.Context, entityType models.EntityType, updatedSince *time.Time) ([]models.EntityRecord, error) {
	log := logger.FromContext(ctx)

	builder := sq.Select("entity_type", "entity_id", "payload", "version", "deleted", "updated_at").
		From("entities").
		Where(sq.Eq{"entity_type": entityType}).
		OrderBy("updated_at ASC", "entity_id ASC").
		PlaceholderFormat(sq.Dollar)
	if updatedSince != nil {
		builder = builder.Where(sq.Gt{"updated_at": *updatedSince})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).Str("func", "entityRepository.List").Msg("failed to execute list query")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	records := make([]models.EntityRecord, 0, 50)
	for rows.Next() {
		var rec models.EntityRecord
		var payload string
		if err = rows.Scan(&rec.EntityType, &rec.ID, &payload, &rec.ServerVersion, &rec.Deleted, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		rec.Payload = json.RawMessage(payload)
		rec.LocalVersion = rec.ServerVersion
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return records, nil
}

// jsonEqual compares two JSON documents after compaction so formatting
// differences do not break CREATE idempotency.
func jsonEqual(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
