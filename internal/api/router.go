package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/fleeting/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Route("/notes/{id}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Get("/body", h.LoadBody)
		r.Put("/body", h.SaveBody)
		r.Post("/touch", h.Touch)
		r.Put("/pin", h.SetPinned)
		r.Post("/restore", h.Restore)
		r.Put("/window", h.SetWindow)
	})

	// Maintenance.
	r.Post("/reconcile", h.Reconcile)
	r.Post("/rebuild", h.Rebuild)

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
