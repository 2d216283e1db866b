// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package models

import "time"

// SyncMetadata is the process-wide sync bookkeeping kept in the local store.
//
// LastSyncAt records the last fully-drained queue; Cursors holds, per entity
// type, the newest server updated_at seen by the bulk pull so refreshes are
// incremental. Initialized empty at first run and cleared only by an
// explicit "clear offline data".
type SyncMetadata struct {
	LastSyncAt *time.Time               `json:"last_sync_at,omitempty"`
	Cursors    map[EntityType]time.Time `json:"cursors"`
}

// SyncStatus describes what a progress event reports.
type SyncStatus string

const (
	SyncStatusDraining SyncStatus = "draining"
	SyncStatusIdle     SyncStatus = "idle"
	SyncStatusErrors   SyncStatus = "idle_with_errors"
	SyncStatusOffline  SyncStatus = "offline"
)

// SyncProgress is published to registered observers after every replayed
// item, not only at cycle end, so a UI can show live progress instead of
// jumping from 0% to 100%.
type SyncProgress struct {
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
	Failed    int        `json:"failed"`
	Conflicts int        `json:"conflicts"`
	Status    SyncStatus `json:"status"`

	// LastError carries the most recent per-item failure message, if any.
	LastError string `json:"last_error,omitempty"`
}

// Percent returns completion as 0..100. A zero-total cycle reports 100.
func (p SyncProgress) Percent() int {
	if p.Total == 0 {
		return 100
	}
	return p.Processed * 100 / p.Total
}
