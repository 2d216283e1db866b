// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/store"
	"github.com/stitchline/stitchline/models"
)

type entityService struct {
	entities  store.EntityRepository
	conflicts store.ConflictRepository

	logger *logger.Logger
}

// NewEntityService constructs the server-side [EntityService].
func NewEntityService(entities store.EntityRepository, conflicts store.ConflictRepository, logger *logger.Logger) EntityService {
	return &entityService{
		entities:  entities,
		conflicts: conflicts,
		logger:    logger,
	}
}

func (s *entityService) Create(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage, actorID string) (int64, error) {
	version, err := s.entities.Create(ctx, entityType, id, payload)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, store.ErrVersionConflict) {
		return 0, fmt.Errorf("create %s/%s: %w", entityType, id, err)
	}

	// Two devices invented the same id with different contents. Record it
	// like any other divergence so the workflow can arbitrate.
	current, getErr := s.entities.Get(ctx, entityType, id)
	if getErr != nil {
		return 0, fmt.Errorf("load current state for create conflict %s/%s: %w", entityType, id, getErr)
	}
	conflict, recErr := s.recordConflict(ctx, entityType, id, payload, 1, current, actorID)
	if recErr != nil {
		return 0, recErr
	}

	return 0, &conflictDetected{conflict: conflict}
}

func (s *entityService) Update(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage, baseVersion int64, actorID string) (int64, *models.ConflictRecord, error) {
	version, current, err := s.entities.Update(ctx, entityType, id, payload, baseVersion)
	if err == nil {
		return version, nil, nil
	}
	if !errors.Is(err, store.ErrVersionConflict) {
		return 0, nil, fmt.Errorf("update %s/%s: %w", entityType, id, err)
	}

	conflict, recErr := s.recordConflict(ctx, entityType, id, payload, baseVersion+1, current, actorID)
	if recErr != nil {
		return 0, nil, recErr
	}

	return 0, conflict, err
}

func (s *entityService) Delete(ctx context.Context, entityType models.EntityType, id string, baseVersion int64, actorID string) (int64, *models.ConflictRecord, error) {
	version, current, err := s.entities.Delete(ctx, entityType, id, baseVersion)
	if err == nil {
		return version, nil, nil
	}
	if !errors.Is(err, store.ErrVersionConflict) {
		return 0, nil, fmt.Errorf("delete %s/%s: %w", entityType, id, err)
	}

	conflict, recErr := s.recordConflict(ctx, entityType, id, nil, baseVersion+1, current, actorID)
	if recErr != nil {
		return 0, nil, recErr
	}

	return 0, conflict, err
}

func (s *entityService) Get(ctx context.Context, entityType models.EntityType, id string) (models.EntityRecord, error) {
	return s.entities.Get(ctx, entityType, id)
}

func (s *entityService) List(ctx context.Context, entityType models.EntityType, updatedSince *time.Time) ([]models.EntityRecord, error) {
	return s.entities.List(ctx, entityType, updatedSince)
}

func (s *entityService) recordConflict(ctx context.Context, entityType models.EntityType, id string, localPayload json.RawMessage, localVersion int64, current models.EntityRecord, actorID string) (*models.ConflictRecord, error) {
	log := logger.FromContext(ctx)

	conflict := models.ConflictRecord{
		ConflictID:    uuid.NewString(),
		EntityType:    entityType,
		EntityID:      id,
		LocalPayload:  localPayload,
		ServerPayload: current.Payload,
		LocalVersion:  localVersion,
		ServerVersion: current.ServerVersion,
		ActorID:       actorID,
		DetectedAt:    time.Now().UTC(),
		Status:        models.ConflictPending,
	}

	if err := s.conflicts.Insert(ctx, conflict); err != nil {
		return nil, fmt.Errorf("record conflict for %s/%s: %w", entityType, id, err)
	}

	log.Warn().
		Str("func", "entityService.recordConflict").
		Str("conflict_id", conflict.ConflictID).
		Str("entity_id", id).
		Int64("server_version", current.ServerVersion).
		Msg("version conflict recorded")

	return &conflict, nil
}

// conflictDetected lets Create surface the recorded conflict through the
// single error return while still matching errors.Is(err,
// store.ErrVersionConflict).
type conflictDetected struct {
	conflict *models.ConflictRecord
}

func (e *conflictDetected) Error() string {
	return fmt.Sprintf("%v: conflict %s", store.ErrVersionConflict, e.conflict.ConflictID)
}

func (e *conflictDetected) Unwrap() error { return store.ErrVersionConflict }

// ConflictError wraps a freshly recorded conflict so callers can recover it
// with [ConflictFromError].
func ConflictError(conflict *models.ConflictRecord) error {
	return &conflictDetected{conflict: conflict}
}

// ConflictFromError extracts the conflict record attached to a create
// failure, if any.
func ConflictFromError(err error) (*models.ConflictRecord, bool) {
	var cd *conflictDetected
	if errors.As(err, &cd) {
		return cd.conflict, true
	}
	return nil, false
}
