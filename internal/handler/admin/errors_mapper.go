package admin

import (
	"errors"
	"net/http"

	"github.com/stitchline/stitchline/internal/adapter"
	"github.com/stitchline/stitchline/internal/store"
)

var errorStatusMap = map[error]int{
	store.ErrNotFound: http.StatusNotFound,

	adapter.ErrBadRequest:      http.StatusBadRequest,
	adapter.ErrNotFound:        http.StatusNotFound,
	adapter.ErrVersionConflict: http.StatusConflict,

	// The server is unreachable; the caller should retry once the agent
	// is back online.
	adapter.ErrNetworkUnavailable: http.StatusServiceUnavailable,

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
