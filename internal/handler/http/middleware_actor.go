package http

import (
	"context"
	"net/http"

	"github.com/stitchline/stitchline/internal/utils"
)

const actorIDHeader = "X-Actor-ID"

// withActor lifts the acting user identifier from the request header into
// the context so services can attribute conflicts and resolutions without
// threading it through every call site.
func (h *Handler) withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorID := r.Header.Get(actorIDHeader); actorID != "" {
			r = r.WithContext(context.WithValue(r.Context(), utils.ActorIDCtxKey, actorID))
		}
		next.ServeHTTP(w, r)
	})
}
