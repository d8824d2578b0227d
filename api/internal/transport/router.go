package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *handler, auth *Authenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(WithRecover)
	r.Use(LogMiddleware)

	r.Get("/healthz", h.health)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Post("/jobs", h.submit)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", h.poll)
			r.Delete("/", h.evict)
			r.Get("/events", h.events)
			r.Get("/ws", h.ws)
			r.Get("/items/{key}/artifact", h.artifact)
			r.Post("/items/{key}/fail", h.forceFail)
		})
	})

	return r
}
