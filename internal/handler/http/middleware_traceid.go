package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// traceIDHeader carries the request correlation id. Agents stamp one on
// every replayed operation so a drain cycle can be followed across agent
// and server logs; a request arriving without one gets a fresh id.
const traceIDHeader = "X-Trace-ID"

func (h *Handler) withTraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		l := h.logger.GetChildLogger()
		l.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("trace_id", traceID)
		})

		// Echoed so the caller can correlate the response with its logs.
		w.Header().Set(traceIDHeader, traceID)

		next.ServeHTTP(w, r.WithContext(l.WithContext(r.Context())))
	})
}
