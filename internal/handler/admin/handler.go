// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

// Package admin exposes the agent's local administration API: sync status,
// a manual sync trigger, the failed-item workbench and the conflict
// resolution workflow. It is an operator surface for a single workstation
// and binds to loopback by default.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/service"
	"github.com/stitchline/stitchline/internal/utils"
	"github.com/stitchline/stitchline/models"
)

// LocalState is the slice of the agent's local store the admin API needs:
// the queue depth for the status endpoint and the conflict cache for the
// workbench.
type LocalState interface {
	ActiveCount(ctx context.Context) (int, error)
	CachedConflicts(ctx context.Context) ([]models.ConflictRecord, error)
	RemoveCachedConflict(ctx context.Context, conflictID string) error
}

// Connectivity is the monitor view needed for status and manual sync.
type Connectivity interface {
	Online() bool
	LastProbeAt() time.Time
	TriggerSync()
}

// ConflictResolver forwards resolution decisions to the server.
type ConflictResolver interface {
	ResolveConflict(ctx context.Context, req models.ResolveConflictRequest) (models.ResolveConflictResponse, error)
}

type Handler struct {
	queue    service.QueueManager
	runner   service.SyncRunner
	monitor  Connectivity
	local    LocalState
	resolver ConflictResolver
	actorID  string

	logger *logger.Logger
}

func NewHandler(queue service.QueueManager, runner service.SyncRunner, monitor Connectivity, local LocalState, resolver ConflictResolver, actorID string, logger *logger.Logger) *Handler {
	logger.Info().Msg("admin handler created")
	return &Handler{
		queue:    queue,
		runner:   runner,
		monitor:  monitor,
		local:    local,
		resolver: resolver,
		actorID:  actorID,
		logger:   logger,
	}
}

// status serves GET /admin/status.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	pending, err := h.local.ActiveCount(r.Context())
	if err != nil {
		h.logger.Err(err).Str("func", "*Handler.status").Msg("queue depth lookup failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, models.AgentStatusResponse{
		Online:      h.monitor.Online(),
		LastProbeAt: h.monitor.LastProbeAt(),
		Pending:     pending,
		Progress:    h.runner.Progress(),
	}, http.StatusOK)
}

// triggerSync serves POST /admin/sync: requests a drain cycle outside the
// regular schedule. The cycle runs asynchronously, hence 202.
func (h *Handler) triggerSync(w http.ResponseWriter, _ *http.Request) {
	h.monitor.TriggerSync()
	utils.WriteJSON(w, map[string]string{"status": "sync requested"}, http.StatusAccepted)
}

// listFailed serves GET /admin/failed.
func (h *Handler) listFailed(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.Failed(r.Context())
	if err != nil {
		h.logger.Err(err).Str("func", "*Handler.listFailed").Msg("failed listing failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, models.FailedItemsResponse{Items: items}, http.StatusOK)
}

// retryFailed serves POST /admin/failed/{itemID}/retry. A reactivated item
// should not wait for the next timer tick, so a cycle is requested too.
func (h *Handler) retryFailed(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	if err := h.queue.Retry(r.Context(), itemID); err != nil {
		h.logger.Err(err).Str("func", "*Handler.retryFailed").Str("item_id", itemID).Msg("retry failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	h.monitor.TriggerSync()
	utils.WriteJSON(w, map[string]string{"status": "requeued"}, http.StatusOK)
}

// discardFailed serves DELETE /admin/failed/{itemID}.
func (h *Handler) discardFailed(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	if err := h.queue.Discard(r.Context(), itemID); err != nil {
		h.logger.Err(err).Str("func", "*Handler.discardFailed").Str("item_id", itemID).Msg("discard failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, map[string]string{"status": "discarded"}, http.StatusOK)
}

// listConflicts serves GET /admin/conflicts: the locally cached pending
// conflicts, available offline.
func (h *Handler) listConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.local.CachedConflicts(r.Context())
	if err != nil {
		h.logger.Err(err).Str("func", "*Handler.listConflicts").Msg("conflict listing failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, models.CachedConflictsResponse{Conflicts: conflicts}, http.StatusOK)
}

// resolveConflict serves POST /admin/conflicts/resolve: forwards the
// decision to the server and drops the local cache entry on success.
func (h *Handler) resolveConflict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, models.ErrorResponse{Error: "invalid JSON was passed"}, http.StatusBadRequest)
		return
	}
	if req.ConflictID == "" {
		utils.WriteJSON(w, models.ErrorResponse{Error: "conflictId is required"}, http.StatusBadRequest)
		return
	}
	if req.ActorID == "" {
		req.ActorID = h.actorID
	}

	resp, err := h.resolver.ResolveConflict(ctx, req)
	if err != nil {
		h.logger.Err(err).
			Str("func", "*Handler.resolveConflict").
			Str("conflict_id", req.ConflictID).
			Msg("resolution failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	if err = h.local.RemoveCachedConflict(ctx, req.ConflictID); err != nil {
		// The server accepted the decision; a stale cache entry only
		// lingers until the next pull.
		h.logger.Err(err).
			Str("func", "*Handler.resolveConflict").
			Str("conflict_id", req.ConflictID).
			Msg("failed to drop cached conflict")
	}

	utils.WriteJSON(w, resp, http.StatusOK)
}
