/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Identity:   Caller principal (API routes only)

ROUTE GROUPS:
  /api/policies/*       Policy CRUD and reservations
  /api/bookings/*       Booking views
  /api/scenarios/*      Demo scenarios
  /ledger/*             In-process ledger bridge (development only)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Identity middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// CORSOrigins defaults to the local frontend dev servers.
	CORSOrigins []string

	// JWTSecret enables bearer-token identity.
	JWTSecret []byte

	// Ledger, when set, is mounted at /ledger.
	Ledger http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", PrincipalHeader},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(Identity(opts.JWTSecret))

		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Put("/{id}", h.UpdatePolicy)
			r.Delete("/{id}", h.DeletePolicy)
			r.Post("/{id}/claim", h.FileClaim)

			// Reservation routes
			r.Post("/{id}/reservations", h.CreateReservationOrder)
			r.Post("/{id}/reservations/complete", h.CompleteReservation)
			r.Post("/{id}/reservations/end", h.EndReservation)
		})

		r.Get("/reservation-fee", h.GetReservationFee)
		r.Get("/address", h.GetAddress)

		// Booking routes
		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListBookings)
			r.Get("/pending", h.ListPendingBookings)
			r.Get("/mine", h.MyBooking)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	if opts.Ledger != nil {
		r.Mount("/ledger", opts.Ledger)
	}

	return r
}
