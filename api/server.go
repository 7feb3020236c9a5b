/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP from X-Forwarded-For / X-Real-IP (edit provenance)
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/{userID}/*  Punch clock, intervals, merge, summary
  /api/worktime/*        Stateless calculator
  /api/schedule          Daily schedule configuration

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/timeclock/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Per-user routes
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/clock-in", h.ClockIn)
			r.Post("/clock-out", h.ClockOut)
			r.Get("/status", h.GetStatus)

			r.Route("/intervals", func(r chi.Router) {
				r.Get("/", h.ListIntervals)
				r.Post("/", h.CreateInterval)
				r.Get("/{id}", h.GetInterval)
				r.Put("/{id}", h.UpdateInterval)
				r.Delete("/{id}", h.DeleteInterval)
			})

			r.Get("/merge/preview", h.PreviewMerge)
			r.Post("/merge", h.Merge)
			r.Get("/summary", h.GetSummary)
		})

		r.Post("/worktime/compute", h.ComputeWorkTime)

		r.Get("/schedule", h.GetSchedule)
		r.Put("/schedule", h.UpdateSchedule)
	})

	return r
}
