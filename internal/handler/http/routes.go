package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.withTraceID)
	router.Use(h.withLogging)
	router.Use(h.withActor)

	router.Get("/api/health", h.health)

	router.Route("/api/sync", func(r chi.Router) {
		r.Get("/resolve-conflict", h.listConflicts)
		r.Post("/resolve-conflict", h.resolveConflict)
	})

	router.Route("/api/{entityType}", func(r chi.Router) {
		r.Post("/", h.createEntity)
		r.Get("/", h.listEntities)
		r.Put("/{entityID}", h.updateEntity)
		r.Delete("/{entityID}", h.deleteEntity)
		r.Get("/{entityID}", h.getEntity)
	})

	return router
}
