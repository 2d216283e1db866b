// Package http exposes the server's REST surface: the per-entity apply
// endpoints the sync engine replays against, the bulk pull endpoint, the
// conflict workflow API and the health probe.
package http

import (
	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/service"
)

type Handler struct {
	services *service.Services

	logger *logger.Logger
}

func NewHandler(services *service.Services, logger *logger.Logger) *Handler {
	logger.Info().Msg("http handler created")
	return &Handler{
		services: services,
		logger:   logger,
	}
}
