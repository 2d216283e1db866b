package http

import (
	"net/http"
	"time"

	"github.com/stitchline/stitchline/internal/logger"
)

// withLogging emits one access-log line per request. The actor header is
// included raw because agents send it on every replayed operation and it is
// the natural key when tracing a misbehaving workstation.
func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lw := &responseWriter{
			ResponseWriter: w,
		}
		next.ServeHTTP(lw, r)

		logger.FromRequest(r).Info().
			Str("uri", r.RequestURI).
			Str("method", r.Method).
			Str("actor", r.Header.Get(actorIDHeader)).
			Int("status", lw.status).
			Dur("duration", time.Since(start)).
			Int("size", lw.size).
			Send()
	})
}
