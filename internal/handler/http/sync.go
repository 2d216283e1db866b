package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/store"
	"github.com/stitchline/stitchline/internal/utils"
	"github.com/stitchline/stitchline/models"
)

// listConflicts serves GET /api/sync/resolve-conflict. Optional query
// parameters userId and entityType narrow the listing.
func (h *Handler) listConflicts(w http.ResponseWriter, r *http.Request) {
	log := logger.FromRequest(r)

	scope := store.ConflictScope{ActorID: r.URL.Query().Get("userId")}
	if raw := r.URL.Query().Get("entityType"); raw != "" {
		entityType, err := models.ParseEntityType(raw)
		if err != nil {
			utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, http.StatusBadRequest)
			return
		}
		scope.EntityType = entityType
	}

	listing, err := h.services.Conflict.List(r.Context(), scope)
	if err != nil {
		log.Err(err).Str("func", "*Handler.listConflicts").Msg("conflict listing failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, listing, http.StatusOK)
}

// resolveConflict serves POST /api/sync/resolve-conflict.
func (h *Handler) resolveConflict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	var req models.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Err(err).Str("func", "*Handler.resolveConflict").Msg("invalid JSON was passed")
		utils.WriteJSON(w, models.ErrorResponse{Error: "invalid JSON was passed"}, http.StatusBadRequest)
		return
	}
	if req.ConflictID == "" {
		utils.WriteJSON(w, models.ErrorResponse{Error: "conflictId is required"}, http.StatusBadRequest)
		return
	}
	if req.ActorID == "" {
		if actorID, ok := utils.GetActorIDFromContext(ctx); ok {
			req.ActorID = actorID
		}
	}

	version, err := h.services.Conflict.Resolve(ctx, req)
	if err != nil {
		log.Err(err).
			Str("func", "*Handler.resolveConflict").
			Str("conflict_id", req.ConflictID).
			Msg("resolution failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, models.ResolveConflictResponse{
		Success: true,
		Message: fmt.Sprintf("conflict %s resolved, entity at version %d", req.ConflictID, version),
	}, http.StatusOK)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
