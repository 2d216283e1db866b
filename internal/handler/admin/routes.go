package admin

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/admin/status", h.status)
	router.Post("/admin/sync", h.triggerSync)

	router.Route("/admin/failed", func(r chi.Router) {
		r.Get("/", h.listFailed)
		r.Post("/{itemID}/retry", h.retryFailed)
		r.Delete("/{itemID}", h.discardFailed)
	})

	router.Route("/admin/conflicts", func(r chi.Router) {
		r.Get("/", h.listConflicts)
		r.Post("/resolve", h.resolveConflict)
	})

	return router
}
