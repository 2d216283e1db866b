// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/store"
	"github.com/stitchline/stitchline/models"
)

const (
	// defaultBackoffBase is the delay before the first retry; each further
	// retry doubles it (30s, 1m, 2m with the default budget of 3).
	defaultBackoffBase = 30 * time.Second
)

type queueManager struct {
	local      store.LocalStore
	maxRetries int
	backoff    time.Duration

	logger *logger.Logger
}

// NewQueueManager constructs the retry/backoff policy around the local
// write-ahead queue. maxRetries <= 0 and backoff <= 0 fall back to the
// defaults (3 retries, 30s base).
func NewQueueManager(local store.LocalStore, maxRetries int, backoff time.Duration, logger *logger.Logger) QueueManager {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoff <= 0 {
		backoff = defaultBackoffBase
	}
	return &queueManager{
		local:      local,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}
}

func (q *queueManager) RetryLater(ctx context.Context, item models.QueueItem, cause error) error {
	log := logger.FromContext(ctx)

	if item.RetryCount+1 >= q.maxRetries {
		if err := q.local.MarkFailed(ctx, item.ID); err != nil {
			return fmt.Errorf("park failed item %s: %w", item.ID, err)
		}
		log.Error().
			Str("func", "queueManager.RetryLater").
			Str("item_id", item.ID).
			Str("entity_id", item.EntityID).
			Int("retries", item.RetryCount+1).
			AnErr("cause", cause).
			Msg("retry budget exhausted, item parked as failed")
		return fmt.Errorf("%w: %s: %w", ErrMaxRetriesExceeded, item.ID, cause)
	}

	item.RetryCount++
	item.NextAttemptAt = time.Now().UTC().Add(q.backoff << (item.RetryCount - 1))
	if err := q.local.Requeue(ctx, item); err != nil {
		return fmt.Errorf("requeue item %s: %w", item.ID, err)
	}

	log.Warn().
		Str("func", "queueManager.RetryLater").
		Str("item_id", item.ID).
		Int("retry", item.RetryCount).
		Time("next_attempt_at", item.NextAttemptAt).
		AnErr("cause", cause).
		Msg("item rescheduled with backoff")

	return nil
}

func (q *queueManager) Failed(ctx context.Context) ([]models.QueueItem, error) {
	return q.local.ListFailed(ctx)
}

func (q *queueManager) Retry(ctx context.Context, itemID string) error {
	return q.local.RetryFailed(ctx, itemID)
}

func (q *queueManager) Discard(ctx context.Context, itemID string) error {
	return q.local.DiscardFailed(ctx, itemID)
}
