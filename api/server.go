/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the mobile dev server
  5. Session:    Bearer-token resolution on everything except /api/auth

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/quest-ledger/session"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		// Auth routes: no session required
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.Post("/logout", h.Logout)
		})

		// Parent routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.withSession)
			r.Get("/children", h.ListChildren)
			r.Post("/children", h.ProvisionChild)
			r.Post("/children/{childID}/quests", h.CreateQuest)
			r.Post("/verify", h.VerifyQuest)
			r.Delete("/quests/{questID}", h.DeleteQuest)
			r.Post("/seed", h.LoadSeed)
		})

		// Child/shared routes
		r.Route("/child", func(r chi.Router) {
			r.Use(h.withSession)
			r.Get("/{childID}/dashboard", h.GetDashboard)
			r.Patch("/quests/{questID}/toggle", h.ToggleQuest)
		})
	})

	return r
}

// =============================================================================
// SESSION MIDDLEWARE
// =============================================================================

type contextKey string

const sessionKey contextKey = "session"

// withSession resolves the Bearer token to a live session and stores it on
// the request context. Missing, unknown, or expired tokens get 401 before
// any handler runs.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		sess, err := h.Gateway.Resolve(r.Context(), token)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the session placed by withSession. Handlers behind
// the middleware can rely on it being present.
func sessionFrom(r *http.Request) session.Session {
	sess, _ := r.Context().Value(sessionKey).(session.Session)
	return sess
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
