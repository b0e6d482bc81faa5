package api

import (
	"encoding/json"
	"net/http"

	"github.com/modelrelay/modelrelay/gateway/internal/api/handlers"
	"github.com/modelrelay/modelrelay/gateway/internal/api/middleware"
	"github.com/modelrelay/modelrelay/gateway/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware. No response compression: gzip middleware
	// buffers SSE bodies.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.RequesterExtractor)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", h.StreamChat)

		r.Get("/providers", h.ListProviders)
		r.Get("/tools", h.ListTools)

		r.Route("/users/{userID}/settings", func(r chi.Router) {
			r.Get("/", h.GetUserSettings)
			r.Put("/", h.PutUserSettings)
			r.Delete("/", h.DeleteUserSettings)
		})

		r.Get("/chats", h.ListChats)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "modelrelay-gateway",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "modelrelay-gateway",
		})
	}
}
