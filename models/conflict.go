// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package models

import (
	"encoding/json"
	"time"
)

// ConflictStatus is the lifecycle state of a conflict record.
// PENDING → RESOLVED is the only transition and it is one-way.
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "PENDING"
	ConflictResolved ConflictStatus = "RESOLVED"
)

// Resolution is the strategy applied to a pending conflict.
type Resolution string

const (
	// ResolutionLocal overwrites the server record with the local payload.
	ResolutionLocal Resolution = "LOCAL"

	// ResolutionServer discards the local change and keeps the server record.
	ResolutionServer Resolution = "SERVER"

	// ResolutionManual writes an operator-supplied merged payload.
	ResolutionManual Resolution = "MANUAL"
)

// Valid reports whether r is one of the three accepted strategies.
func (r Resolution) Valid() bool {
	return r == ResolutionLocal || r == ResolutionServer || r == ResolutionManual
}

// ConflictRecord captures a rejected sync attempt: the client replayed an
// operation whose base version no longer matched the server's current
// version. Both payload sides are preserved so a human can decide.
//
// Once resolved, the record is immutable and serves as the audit trail of
// the decision.
type ConflictRecord struct {
	ConflictID    string          `json:"conflict_id"`
	EntityType    EntityType      `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	LocalPayload  json.RawMessage `json:"local_payload"`
	ServerPayload json.RawMessage `json:"server_payload"`
	LocalVersion  int64           `json:"local_version"`
	ServerVersion int64           `json:"server_version"`

	// ActorID identifies the user whose replayed change was rejected.
	// The conflict listing can be scoped to it.
	ActorID string `json:"actor_id,omitempty"`

	DetectedAt time.Time      `json:"detected_at"`
	Status     ConflictStatus `json:"status"`
	Resolution Resolution     `json:"resolution,omitempty"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// ConflictSummary is the aggregate block returned next to a conflict listing.
type ConflictSummary struct {
	Pending      int                `json:"pending"`
	ByEntityType map[EntityType]int `json:"by_entity_type"`
	OldestAt     *time.Time         `json:"oldest_at,omitempty"`
}
