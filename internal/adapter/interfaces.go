// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

// Package adapter provides the transport layer between the shop-floor agent
// and the stitchline server.
//
// The primary abstraction is [ServerAdapter], which decouples the sync
// engine from the underlying protocol. The package ships an HTTP/REST
// implementation ([NewHTTPServerAdapter]) built on resty.
//
// Error values defined in errors.go are mapped from HTTP status codes by
// mapHTTPError so that callers can use [errors.Is] for transport-agnostic
// error handling (e.g. [ErrVersionConflict] for 409).
package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stitchline/stitchline/models"
)

// ServerAdapter is the agent's view of the server: the per-entity
// apply-remote-operation calls, the bulk pull endpoint, the conflict
// workflow API and the health probe the connectivity monitor uses.
type ServerAdapter interface {
	// Create replays a local CREATE (POST /api/{entity_type}) and returns
	// the authoritative server version.
	Create(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (int64, error)

	// Update replays a local UPDATE (PUT /api/{entity_type}/{id}) carrying
	// baseVersion as the optimistic-concurrency token. Returns a
	// *ConflictError (wrapping [ErrVersionConflict]) when the token is
	// stale.
	Update(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage, baseVersion int64) (int64, error)

	// Delete replays a local DELETE with the same conflict semantics as
	// Update.
	Delete(ctx context.Context, entityType models.EntityType, id string, baseVersion int64) (int64, error)

	// Pull fetches current server records for cache seeding/refresh,
	// narrowed by the client's cursor when updatedSince is non-nil.
	Pull(ctx context.Context, entityType models.EntityType, updatedSince *time.Time) ([]models.EntityRecord, error)

	// ListConflicts fetches pending conflicts scoped to actorID ("" for all).
	ListConflicts(ctx context.Context, actorID string) (models.ConflictListResponse, error)

	// ResolveConflict submits a resolution decision.
	ResolveConflict(ctx context.Context, req models.ResolveConflictRequest) (models.ResolveConflictResponse, error)

	// Ping probes the server health endpoint; a nil error means online.
	Ping(ctx context.Context) error
}
