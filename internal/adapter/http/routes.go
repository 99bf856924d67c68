package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. The
// voice WebSocket handler is passed in separately so this package does
// not depend on the ws adapter.
func MountRoutes(r chi.Router, h *Handlers, voice http.HandlerFunc) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Post("/chat/audio", h.ChatAudio)

		r.Post("/documents", h.UploadDocument)
		r.Get("/documents/{docID}", h.GetDocument)

		r.Post("/speech", h.Speech)

		r.Get("/voice", voice)
	})
}
