package httpsrv

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	relayotel "github.com/Wirebird/gitrelay/internal/adapter/otel"
)

// NewRouter builds the ops router with the standard middleware stack.
func NewRouter(h *Handlers, serviceName string) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(relayotel.HTTPMiddleware(serviceName))

	r.Get("/health", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/routes", h.ListRoutes)
		r.Post("/invoke", h.Invoke)
	})
	return r
}
