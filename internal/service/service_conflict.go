// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dario.cat/mergo"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/store"
	"github.com/stitchline/stitchline/models"
)

type conflictService struct {
	conflicts store.ConflictRepository

	logger *logger.Logger
}

// NewConflictService constructs the server-side [ConflictService].
func NewConflictService(conflicts store.ConflictRepository, logger *logger.Logger) ConflictService {
	return &conflictService{conflicts: conflicts, logger: logger}
}

func (s *conflictService) List(ctx context.Context, scope store.ConflictScope) (models.ConflictListResponse, error) {
	pending, err := s.conflicts.ListPending(ctx, scope)
	if err != nil {
		return models.ConflictListResponse{}, fmt.Errorf("list pending conflicts: %w", err)
	}

	resp := models.ConflictListResponse{
		Conflicts: pending,
		Summary:   models.ConflictSummary{ByEntityType: map[models.EntityType]int{}},
	}
	for _, c := range pending {
		resp.Summary.Pending++
		resp.Summary.ByEntityType[c.EntityType]++
		if resp.Summary.OldestAt == nil || c.DetectedAt.Before(*resp.Summary.OldestAt) {
			detectedAt := c.DetectedAt
			resp.Summary.OldestAt = &detectedAt
		}
	}

	return resp, nil
}

func (s *conflictService) Resolve(ctx context.Context, req models.ResolveConflictRequest) (int64, error) {
	log := logger.FromContext(ctx)

	if !req.Resolution.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResolution, req.Resolution)
	}
	if req.Resolution == models.ResolutionManual && len(req.ManualData) == 0 {
		return 0, ErrMissingManualData
	}

	conflict, err := s.conflicts.Get(ctx, req.ConflictID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrConflictNotFound, req.ConflictID)
		}
		return 0, fmt.Errorf("load conflict %s: %w", req.ConflictID, err)
	}

	finalPayload, tombstone, err := resolutionOutcome(conflict, req)
	if err != nil {
		return 0, err
	}

	version, err := s.conflicts.Resolve(ctx, req.ConflictID, req.Resolution, finalPayload, tombstone, req.ActorID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflictAlreadyResolved):
			return 0, fmt.Errorf("%w: %s", ErrAlreadyResolved, req.ConflictID)
		case errors.Is(err, store.ErrNotFound):
			return 0, fmt.Errorf("%w: %s", ErrConflictNotFound, req.ConflictID)
		default:
			return 0, fmt.Errorf("resolve conflict %s: %w", req.ConflictID, err)
		}
	}

	log.Info().
		Str("func", "conflictService.Resolve").
		Str("conflict_id", req.ConflictID).
		Str("resolution", string(req.Resolution)).
		Str("resolved_by", req.ActorID).
		Int64("server_version", version).
		Msg("conflict resolved")

	return version, nil
}

// resolutionOutcome translates the chosen strategy into the entity write the
// repository should perform alongside the status flip.
func resolutionOutcome(conflict models.ConflictRecord, req models.ResolveConflictRequest) (json.RawMessage, bool, error) {
	switch req.Resolution {
	case models.ResolutionServer:
		// The server state already won. Nothing to write.
		return nil, false, nil
	case models.ResolutionLocal:
		if len(conflict.LocalPayload) == 0 {
			// The losing operation was a DELETE. Honoring it means
			// tombstoning the entity.
			return nil, true, nil
		}
		return conflict.LocalPayload, false, nil
	case models.ResolutionManual:
		merged, err := mergePayloads(conflict.ServerPayload, req.ManualData)
		if err != nil {
			return nil, false, fmt.Errorf("merge manual resolution for %s: %w", req.ConflictID, err)
		}
		return merged, false, nil
	default:
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidResolution, req.Resolution)
	}
}

// mergePayloads lays manual fields over the server payload so a partial
// manual submission still yields a complete document.
func mergePayloads(serverPayload, manualData json.RawMessage) (json.RawMessage, error) {
	if len(serverPayload) == 0 {
		return manualData, nil
	}

	var base, manual map[string]any
	if err := json.Unmarshal(serverPayload, &base); err != nil {
		return nil, fmt.Errorf("decode server payload: %w", err)
	}
	if err := json.Unmarshal(manualData, &manual); err != nil {
		return nil, fmt.Errorf("%w: decode manual data: %w", ErrMissingManualData, err)
	}

	if err := mergo.Merge(&base, manual, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge payloads: %w", err)
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encode merged payload: %w", err)
	}
	return merged, nil
}
