package models

import (
	"encoding/json"
	"time"
)

// ApplyRequest is the body of the apply-remote-operation endpoints
// (POST/PUT/DELETE /api/{entity_type}). BaseVersion is the
// optimistic-concurrency token; it is ignored on CREATE.
type ApplyRequest struct {
	EntityID    string          `json:"entity_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	BaseVersion int64           `json:"base_version"`
}

// ApplyResponse acknowledges a successful apply with the authoritative
// server version the client must record.
type ApplyResponse struct {
	EntityID      string `json:"entity_id"`
	ServerVersion int64  `json:"server_version"`
}

// ConflictResponse is the 409 body: the client's submitted payload echoed
// back together with the server's current state and the freshly minted
// conflict record id. The payloads are omitted entirely when absent (a
// DELETE carries none) so clients never see a JSON null where a document
// is expected.
type ConflictResponse struct {
	ConflictID       string          `json:"conflict_id"`
	SubmittedPayload json.RawMessage `json:"submitted_payload,omitempty"`
	ServerPayload    json.RawMessage `json:"server_payload,omitempty"`
	ServerVersion    int64           `json:"server_version"`
}

// ConflictListResponse is returned by GET /api/sync/resolve-conflict.
type ConflictListResponse struct {
	Conflicts []ConflictRecord `json:"conflicts"`
	Summary   ConflictSummary  `json:"summary"`
}

// ResolveConflictRequest is the body of POST /api/sync/resolve-conflict.
type ResolveConflictRequest struct {
	ConflictID string          `json:"conflictId"`
	Resolution Resolution      `json:"resolution"`
	ManualData json.RawMessage `json:"manualData,omitempty"`
	ActorID    string          `json:"actorId"`
	Reason     string          `json:"reason,omitempty"`
}

// ResolveConflictResponse acknowledges a resolution decision.
type ResolveConflictResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is the uniform 4xx/5xx JSON body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AgentStatusResponse is the body of GET /admin/status on the agent's local
// admin API.
type AgentStatusResponse struct {
	Online      bool         `json:"online"`
	LastProbeAt time.Time    `json:"last_probe_at"`
	Pending     int          `json:"pending"`
	Progress    SyncProgress `json:"progress"`
}

// FailedItemsResponse lists terminally failed queue items
// (GET /admin/failed).
type FailedItemsResponse struct {
	Items []QueueItem `json:"items"`
}

// CachedConflictsResponse lists the locally cached pending conflicts
// (GET /admin/conflicts).
type CachedConflictsResponse struct {
	Conflicts []ConflictRecord `json:"conflicts"`
}
