package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"photovault-import/internal/usecase"
)

// Server exposes the import orchestrator over HTTP: start, webhook ingest,
// progress polling and cancellation.
type Server struct {
	importUC usecase.ImportUseCase
	apiKey   string
	log      *zerolog.Logger
}

func NewServer(importUC usecase.ImportUseCase, apiKey string, logger *zerolog.Logger) *Server {
	sub := logger.With().Str("component", "WebServer").Logger()
	return &Server{importUC: importUC, apiKey: apiKey, log: &sub}
}

// Router builds the chi router. The webhook route is outside the bearer
// middleware: its caller is the remote worker, authenticated by the HMAC
// signature alone.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/v1/imports/webhook", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/api/v1/imports", s.handleStart)
		r.Get("/api/v1/imports/{id}/progress", s.handleProgress)
		r.Delete("/api/v1/imports/{id}", s.handleCancel)
	})

	return r
}

// authMiddleware provides simple Bearer token authentication for the
// user-facing routes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "bearer") {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
