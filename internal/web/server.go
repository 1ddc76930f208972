// Package web provides the HTTP API for uploads, summaries and reports.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/config"
	"github.com/JonMunkholm/chemviz/internal/core"
	webmw "github.com/JonMunkholm/chemviz/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Pinger is anything /healthz can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the backend reported by /healthz.
type Store interface {
	Pinger
	Name() string
}

// Deps are the collaborators a Server needs. Cache may be nil.
type Deps struct {
	Service *core.Service
	Auth    *auth.Service
	Store   Store
	Cache   Pinger
}

// Server is the HTTP server for the equipment API.
type Server struct {
	cfg     *config.Config
	service *core.Service
	auth    *auth.Service
	store   Store
	cache   Pinger
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		service: deps.Service,
		auth:    deps.Auth,
		store:   deps.Store,
		cache:   deps.Cache,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if s.cfg.Rate.Enabled {
		s.router.Use(newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	uploadLimit := passthrough
	authLimit := passthrough
	if s.cfg.Rate.Enabled {
		uploadLimit = newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute).middleware
		authLimit = newRateLimiter(s.cfg.Rate.AuthLimit, time.Minute).middleware
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)

		// Public
		r.With(authLimit).Post("/auth/login", s.handleLogin)
		r.With(authLimit).Post("/auth/register", s.handleRegister)

		// Token required
		r.Group(func(r chi.Router) {
			r.Use(webmw.RequireToken(s.auth, s.respondUnauthorized))

			r.Post("/auth/logout", s.handleLogout)
			r.With(uploadLimit).Post("/upload", s.handleUpload)
			r.Get("/equipment", s.handleEquipment)
			r.Get("/summary", s.handleSummary)
			r.Get("/history", s.handleHistory)
			r.Get("/report/pdf", s.handleReport)
		})
	})
}

// Start begins listening for HTTP requests. After Shutdown it returns
// http.ErrServerClosed.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server. It is safe to call before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func passthrough(next http.Handler) http.Handler { return next }

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// The API serves JSON and PDF only; nothing may be loaded from it.
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}

			next.ServeHTTP(w, r)
		})
	}
}

const encodeFailureBody = `{"error":"An unexpected error occurred","code":"ERR000"}` + "\n"

// writeJSON encodes v as JSON with the given status. v is marshalled before
// any header is sent, so a value that cannot be encoded yields a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("json encode error", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(encodeFailureBody))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Warn("json write failed", "error", err)
	}
}
