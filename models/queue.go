// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package models

import (
	"encoding/json"
	"time"
)

// Operation is the kind of local mutation a queue item propagates.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Priority is the replay class of a queue item. Higher classes drain first:
// stale QC and production state gates downstream manufacturing steps, so it
// must reach the server before low-value bookkeeping.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank maps a priority to its ordering weight (critical=3 .. low=0).
// Unknown values rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// PriorityFor is the fixed priority assignment policy:
// quality-control creations are critical, order and production-tracking
// updates are high, inventory updates are medium, everything else is low.
func PriorityFor(entityType EntityType, op Operation) Priority {
	switch {
	case entityType == EntityQCRecord && op == OpCreate:
		return PriorityCritical
	case (entityType == EntityOrder || entityType == EntityProductionEvent) && op == OpUpdate:
		return PriorityHigh
	case entityType == EntityInventoryItem && op == OpUpdate:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// QueueItemStatus tracks whether an item is still eligible for replay.
type QueueItemStatus string

const (
	// QueueItemActive items participate in drain cycles.
	QueueItemActive QueueItemStatus = "active"

	// QueueItemFailed items exhausted their retry budget. They are excluded
	// from drain cycles but stay visible until a user retries or discards
	// them; a dropped change must never silently vanish.
	QueueItemFailed QueueItemStatus = "failed"
)

// QueueItem is one outstanding local mutation awaiting propagation to the
// server.
//
// At most one active item exists per (EntityType, EntityID): a later local
// mutation conflates into the existing item instead of stacking a duplicate.
type QueueItem struct {
	ID         string          `json:"id"`
	Operation  Operation       `json:"operation"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`

	// BaseVersion is the server version the payload was derived from,
	// sent as the optimistic-concurrency token on UPDATE and DELETE.
	BaseVersion int64 `json:"base_version"`

	// Revision increments every time a later mutation conflates into this
	// item. The sync engine confirms completion against the revision it
	// dequeued, so a mid-flight conflation is never lost.
	Revision int64 `json:"revision"`

	EnqueuedAt    time.Time       `json:"enqueued_at"`
	RetryCount    int             `json:"retry_count"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	Priority      Priority        `json:"priority"`
	Status        QueueItemStatus `json:"status"`
}
