package http

import (
	"errors"
	"net/http"

	"github.com/stitchline/stitchline/internal/service"
	"github.com/stitchline/stitchline/internal/store"
	"github.com/stitchline/stitchline/models"
)

var errorStatusMap = map[error]int{
	service.ErrInvalidResolution: http.StatusBadRequest,
	service.ErrMissingManualData: http.StatusBadRequest,
	service.ErrAlreadyResolved:   http.StatusConflict,
	service.ErrConflictNotFound:  http.StatusNotFound,

	models.ErrUnknownEntityType: http.StatusBadRequest,

	store.ErrNotFound:                http.StatusNotFound,
	store.ErrVersionConflict:         http.StatusConflict,
	store.ErrConflictAlreadyResolved: http.StatusConflict,

	store.ErrStorageUnavailable: http.StatusInternalServerError,
	store.ErrExecutingQuery:     http.StatusInternalServerError,
	store.ErrScanningRow:        http.StatusInternalServerError,
}

func statusFromError(err error) int {
	for target, status := range errorStatusMap {
		if errors.Is(err, target) {
			return status
		}
	}
	return http.StatusInternalServerError
}
