// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EntityType identifies which business aggregate an EntityRecord belongs to.
// The value doubles as the URL path segment of the apply-remote-operation
// endpoints (POST /api/{entity_type} and friends).
type EntityType string

const (
	EntityOrder           EntityType = "order"
	EntityProductionEvent EntityType = "production_event"
	EntityQCRecord        EntityType = "qc_record"
	EntityInventoryItem   EntityType = "inventory_item"
)

// ErrUnknownEntityType is returned by ParseEntityType for any value outside
// the four known aggregates.
var ErrUnknownEntityType = errors.New("unknown entity type")

// EntityTypes lists every known entity type in a stable order. Used for
// iterating pull cursors and for seeding the local cache.
func EntityTypes() []EntityType {
	return []EntityType{EntityOrder, EntityProductionEvent, EntityQCRecord, EntityInventoryItem}
}

// ParseEntityType validates an inbound path segment or config value.
func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(s); t {
	case EntityOrder, EntityProductionEvent, EntityQCRecord, EntityInventoryItem:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
	}
}

// EntityRecord is the local snapshot of one business object together with
// its version metadata.
//
// LocalVersion increments on every local write; ServerVersion is the last
// version acknowledged by the server (0 when the record has never synced).
// The invariant LocalVersion >= ServerVersion always holds; equality means
// there is no pending local change for the record.
type EntityRecord struct {
	EntityType    EntityType      `json:"entity_type"`
	ID            string          `json:"id"`
	Payload       json.RawMessage `json:"payload"`
	LocalVersion  int64           `json:"local_version"`
	ServerVersion int64           `json:"server_version"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Deleted marks a soft-deleted server record in bulk pull responses so
	// clients can drop their cached copy. Local records are hard-deleted
	// and never carry the flag.
	Deleted bool `json:"deleted,omitempty"`
}

// Dirty reports whether the record carries a local change the server has not
// acknowledged yet.
func (r EntityRecord) Dirty() bool {
	return r.LocalVersion > r.ServerVersion
}
