/*
server.go - HTTP server setup and routing

PURPOSE:
  Builds the chi router, wires middleware (request IDs, logging,
  panic recovery, CORS), resolves the request principal from headers,
  and groups routes by access level.

PRINCIPAL RESOLUTION:
  Every /api route requires an X-User-ID header identifying the
  caller and an optional X-User-Role header ("admin" or "user",
  defaulting to "user"). Authentication is assumed to happen at an
  upstream gateway; this service only enforces authorization.

SEE ALSO:
  - handlers.go: Endpoint implementations
  - ../parking/types.go: Principal and Role
*/
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openlot/parking-engine/parking"
)

type contextKey string

const principalKey contextKey = "principal"

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID", "X-User-Role"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(requirePrincipal)

		r.Route("/lots", func(r chi.Router) {
			r.Get("/", h.ListLots)
			r.Get("/{id}", h.GetLot)
			r.Get("/{id}/occupancy", h.GetOccupancy)
			r.Post("/{id}/reservations", h.Reserve)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Get("/active", h.ListActiveReservations)
			r.Get("/{id}/cost", h.PreviewCost)
			r.Post("/{id}/release", h.Release)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/lots", h.CreateLot)
			r.Put("/lots/{id}", h.UpdateLot)
			r.Delete("/lots/{id}", h.DeleteLot)
			r.Get("/users", h.ListUsers)
			r.Post("/users/{id}/flag", h.FlagUser)
			r.Post("/users/{id}/unflag", h.UnflagUser)
			r.Post("/exports/users", h.TriggerUserExport)
			r.Get("/exports/users/{id}", h.GetExportStatus)
		})
	})

	return r
}

// requirePrincipal resolves the caller identity from request headers
// and rejects requests without one.
func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
			return
		}
		role := parking.RoleUser
		if r.Header.Get("X-User-Role") == string(parking.RoleAdmin) {
			role = parking.RoleAdmin
		}
		p := parking.Principal{UserID: parking.UserID(userID), Role: role}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

// principalFrom returns the principal stored by requirePrincipal. It
// panics if the middleware did not run, which is a routing bug.
func principalFrom(ctx context.Context) parking.Principal {
	return ctx.Value(principalKey).(parking.Principal)
}
