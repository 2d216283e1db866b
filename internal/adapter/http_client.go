package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/stitchline/stitchline/models"
)

const (
	actorIDHeader = "X-Actor-ID"

	// traceIDHeader correlates one outbound call across agent and server
	// logs; the server adopts the id instead of minting its own.
	traceIDHeader = "X-Trace-ID"
)

// HTTPClientConfig configures the resty-backed [ServerAdapter].
type HTTPClientConfig struct {
	BaseURL string
	ActorID string
	Timeout time.Duration
}

type httpServerAdapter struct {
	client  *resty.Client
	actorID string
}

// NewHTTPServerAdapter constructs the HTTP/REST implementation of
// [ServerAdapter]. The actor id is attached to every apply request so the
// server can scope conflict records to the device/operator that caused them.
func NewHTTPServerAdapter(cfg HTTPClientConfig) ServerAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &httpServerAdapter{client: cli, actorID: cfg.ActorID}
}

func (h *httpServerAdapter) Create(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (int64, error) {
	var ack models.ApplyResponse
	resp, err := h.request(ctx).
		SetBody(models.ApplyRequest{EntityID: id, Payload: payload}).
		SetResult(&ack).
		Post("/api/" + string(entityType))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", wrapTransportError(err))
	}
	if err = mapHTTPError(resp); err != nil {
		return 0, err
	}

	return ack.ServerVersion, nil
}

func (h *httpServerAdapter) Update(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage, baseVersion int64) (int64, error) {
	var ack models.ApplyResponse
	resp, err := h.request(ctx).
		SetBody(models.ApplyRequest{EntityID: id, Payload: payload, BaseVersion: baseVersion}).
		SetResult(&ack).
		Put(fmt.Sprintf("/api/%s/%s", entityType, id))
	if err != nil {
		return 0, fmt.Errorf("update request: %w", wrapTransportError(err))
	}
	if err = mapHTTPError(resp); err != nil {
		return 0, err
	}

	return ack.ServerVersion, nil
}

func (h *httpServerAdapter) Delete(ctx context.Context, entityType models.EntityType, id string, baseVersion int64) (int64, error) {
	var ack models.ApplyResponse
	resp, err := h.request(ctx).
		SetBody(models.ApplyRequest{EntityID: id, BaseVersion: baseVersion}).
		SetResult(&ack).
		Delete(fmt.Sprintf("/api/%s/%s", entityType, id))
	if err != nil {
		return 0, fmt.Errorf("delete request: %w", wrapTransportError(err))
	}
	if err = mapHTTPError(resp); err != nil {
		return 0, err
	}

	return ack.ServerVersion, nil
}

func (h *httpServerAdapter) Pull(ctx context.Context, entityType models.EntityType, updatedSince *time.Time) ([]models.EntityRecord, error) {
	req := h.request(ctx)
	if updatedSince != nil {
		req.SetQueryParam("updated_since", updatedSince.UTC().Format(time.RFC3339Nano))
	}

	var records []models.EntityRecord
	resp, err := req.SetResult(&records).Get("/api/" + string(entityType))
	if err != nil {
		return nil, fmt.Errorf("pull request: %w", wrapTransportError(err))
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	return records, nil
}

func (h *httpServerAdapter) ListConflicts(ctx context.Context, actorID string) (models.ConflictListResponse, error) {
	req := h.request(ctx)
	if actorID != "" {
		req.SetQueryParam("userId", actorID)
	}

	var listing models.ConflictListResponse
	resp, err := req.SetResult(&listing).Get("/api/sync/resolve-conflict")
	if err != nil {
		return models.ConflictListResponse{}, fmt.Errorf("list conflicts request: %w", wrapTransportError(err))
	}
	if err = mapHTTPError(resp); err != nil {
		return models.ConflictListResponse{}, err
	}

	return listing, nil
}

func (h *httpServerAdapter) ResolveConflict(ctx context.Context, req models.ResolveConflictRequest) (models.ResolveConflictResponse, error) {
	if req.ActorID == "" {
		req.ActorID = h.actorID
	}

	var ack models.ResolveConflictResponse
	resp, err := h.request(ctx).
		SetBody(req).
		SetResult(&ack).
		Post("/api/sync/resolve-conflict")
	if err != nil {
		return models.ResolveConflictResponse{}, fmt.Errorf("resolve conflict request: %w", wrapTransportError(err))
	}
	if err = mapHTTPError(resp); err != nil {
		return models.ResolveConflictResponse{}, err
	}

	return ack, nil
}

func (h *httpServerAdapter) Ping(ctx context.Context) error {
	resp, err := h.request(ctx).Get("/api/health")
	if err != nil {
		return fmt.Errorf("health probe: %w", wrapTransportError(err))
	}

	return mapHTTPError(resp)
}

func (h *httpServerAdapter) request(ctx context.Context) *resty.Request {
	return h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(actorIDHeader, h.actorID).
		SetHeader(traceIDHeader, uuid.NewString())
}

// wrapTransportError folds connection-level failures (refused, DNS,
// timeout) into [ErrNetworkUnavailable] so the sync engine's retry policy
// matches a single sentinel. Anything that errored before an HTTP status
// came back is a transport failure by definition.
func wrapTransportError(err error) error {
	return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
}
