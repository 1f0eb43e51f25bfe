/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     logrus access log carrying the request id
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the resident web app
  5. Auth:       Bearer token on every route except /api/health

ROUTE GROUPS:
  /api/health           Public liveness
  /api/users            Profile registration
  /api/rewards/*        Resident balance, history, bonus, redemption
  /api/admin/*          Report awards, redemption queue, user management

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Bearer token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Post("/users", h.RegisterUser)

			// Resident routes
			r.Route("/rewards", func(r chi.Router) {
				r.Get("/balance", h.GetBalance)
				r.Get("/transactions", h.GetTransactions)
				r.Post("/signup-bonus", h.ClaimSignupBonus)
				r.Post("/redemptions", h.RequestRedemption)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Post("/rewards/report-bonus", h.AwardReportBonus)
				r.Get("/redemptions", h.ListRedemptions)
				r.Post("/redemptions/{id}/decision", h.DecideRedemption)
				r.Get("/redemptions/{id}/decisions", h.ListDecisions)
				r.Patch("/users/{id}", h.UpdateUser)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found", "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed", nil)
	})

	return r
}

// requestLogger writes one logrus line per request.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				entry := log.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
				})
				if ww.Status() >= http.StatusInternalServerError {
					entry.Warn("request")
					return
				}
				entry.Info("request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
