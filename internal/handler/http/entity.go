// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/service"
	"github.com/stitchline/stitchline/internal/utils"
	"github.com/stitchline/stitchline/models"
)

func (h *Handler) createEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	entityType, req, ok := h.applyRequest(w, r)
	if !ok {
		return
	}

	actorID, _ := utils.GetActorIDFromContext(ctx)
	version, err := h.services.Entity.Create(ctx, entityType, req.EntityID, req.Payload, actorID)
	if err != nil {
		if conflict, isConflict := service.ConflictFromError(err); isConflict {
			h.writeConflict(w, req.Payload, conflict)
			return
		}
		log.Err(err).Str("func", "*Handler.createEntity").Msg("create failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, models.ApplyResponse{EntityID: req.EntityID, ServerVersion: version}, http.StatusCreated)
}

func (h *Handler) updateEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	entityType, req, ok := h.applyRequest(w, r)
	if !ok {
		return
	}
	entityID := chi.URLParam(r, "entityID")

	actorID, _ := utils.GetActorIDFromContext(ctx)
	version, conflict, err := h.services.Entity.Update(ctx, entityType, entityID, req.Payload, req.BaseVersion, actorID)
	if err != nil {
		if conflict != nil {
			h.writeConflict(w, req.Payload, conflict)
			return
		}
		log.Err(err).Str("func", "*Handler.updateEntity").Msg("update failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, models.ApplyResponse{EntityID: entityID, ServerVersion: version}, http.StatusOK)
}

func (h *Handler) deleteEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	entityType, ok := h.entityType(w, r)
	if !ok {
		return
	}
	entityID := chi.URLParam(r, "entityID")

	var req models.ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Err(err).Str("func", "*Handler.deleteEntity").Msg("invalid JSON was passed")
		utils.WriteJSON(w, models.ErrorResponse{Error: "invalid JSON was passed"}, http.StatusBadRequest)
		return
	}

	actorID, _ := utils.GetActorIDFromContext(ctx)
	version, conflict, err := h.services.Entity.Delete(ctx, entityType, entityID, req.BaseVersion, actorID)
	if err != nil {
		if conflict != nil {
			h.writeConflict(w, nil, conflict)
			return
		}
		log.Err(err).Str("func", "*Handler.deleteEntity").Msg("delete failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, models.ApplyResponse{EntityID: entityID, ServerVersion: version}, http.StatusOK)
}

func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	entityType, ok := h.entityType(w, r)
	if !ok {
		return
	}
	entityID := chi.URLParam(r, "entityID")

	record, err := h.services.Entity.Get(r.Context(), entityType, entityID)
	if err != nil {
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, record, http.StatusOK)
}

// listEntities serves the bulk pull. The updated_since query parameter
// narrows the listing to records changed after the client's cursor.
func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	log := logger.FromRequest(r)

	entityType, ok := h.entityType(w, r)
	if !ok {
		return
	}

	var updatedSince *time.Time
	if raw := r.URL.Query().Get("updated_since"); raw != "" {
		cursor, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			log.Err(err).Str("func", "*Handler.listEntities").Msg("invalid updated_since cursor")
			utils.WriteJSON(w, models.ErrorResponse{Error: "invalid updated_since cursor"}, http.StatusBadRequest)
			return
		}
		updatedSince = &cursor
	}

	records, err := h.services.Entity.List(r.Context(), entityType, updatedSince)
	if err != nil {
		log.Err(err).Str("func", "*Handler.listEntities").Msg("listing failed")
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, statusFromError(err))
		return
	}

	utils.WriteJSON(w, records, http.StatusOK)
}

func (h *Handler) entityType(w http.ResponseWriter, r *http.Request) (models.EntityType, bool) {
	entityType, err := models.ParseEntityType(chi.URLParam(r, "entityType"))
	if err != nil {
		utils.WriteJSON(w, models.ErrorResponse{Error: err.Error()}, http.StatusBadRequest)
		return "", false
	}
	return entityType, true
}

func (h *Handler) applyRequest(w http.ResponseWriter, r *http.Request) (models.EntityType, models.ApplyRequest, bool) {
	log := logger.FromRequest(r)

	entityType, ok := h.entityType(w, r)
	if !ok {
		return "", models.ApplyRequest{}, false
	}

	var req models.ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Err(err).Msg("invalid JSON was passed")
		utils.WriteJSON(w, models.ErrorResponse{Error: "invalid JSON was passed"}, http.StatusBadRequest)
		return "", models.ApplyRequest{}, false
	}
	if req.EntityID == "" {
		utils.WriteJSON(w, models.ErrorResponse{Error: "entity_id is required"}, http.StatusBadRequest)
		return "", models.ApplyRequest{}, false
	}

	return entityType, req, true
}

// writeConflict renders the 409 body: the submitted payload echoed next to
// the server's current state so the client can cache a complete conflict
// record without a second round trip.
func (h *Handler) writeConflict(w http.ResponseWriter, submitted json.RawMessage, conflict *models.ConflictRecord) {
	utils.WriteJSON(w, models.ConflictResponse{
		ConflictID:       conflict.ConflictID,
		SubmittedPayload: submitted,
		ServerPayload:    conflict.ServerPayload,
		ServerVersion:    conflict.ServerVersion,
	}, http.StatusConflict)
}
