/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RequestLogger: zap line per request (id, caller, status, duration)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the shop frontend

ROUTE GROUPS:
  /api/info             Registry metadata
  /api/products/*       Catalog, calendars, complements
  /api/complements/*    Complement lookup
  /api/shops/*          Ownership queries
  /api/events           Recent events
  /api/admin/*          Admin operations
  /api/scenarios/*      Demo catalog

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", CallerHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/info", h.GetInfo)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.RegisterProduct)
			r.Get("/count", h.CountProducts)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetProduct)
				r.Get("/availability", h.CheckAvailability)
				r.Post("/complements", h.AddComplement)

				r.Get("/bookings", h.ListBookings)
				r.Post("/bookings", h.Book)
				r.Delete("/bookings", h.CancelBookingAtStart)
				r.Get("/bookings/{rid}", h.GetBooking)
				r.Delete("/bookings/{rid}", h.CancelBooking)
			})
		})

		r.Get("/complements/{id}", h.GetComplement)

		r.Route("/shops/{address}", func(r chi.Router) {
			r.Get("/balance", h.GetShopBalance)
			r.Get("/products", h.GetShopProducts)
		})

		r.Get("/events", h.ListEvents)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/records", h.ListRecords)
			r.Get("/products/{id}/records", h.ListProductRecords)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
