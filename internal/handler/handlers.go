// Package handler aggregates the transport handlers the server exposes.
package handler

import (
	"github.com/stitchline/stitchline/internal/handler/http"
	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/service"
)

type Handlers struct {
	HTTP *http.Handler
}

func NewHandlers(services *service.Services, logger *logger.Logger) *Handlers {
	logger.Info().Msg("creating new handlers...")

	return &Handlers{
		HTTP: http.NewHandler(services, logger),
	}
}
