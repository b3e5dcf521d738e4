package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"podcast-api/internal/api"
	"podcast-api/internal/observability/logging"
	"podcast-api/internal/observability/metrics"
)

type Config struct {
	Addr        string
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Security    SecurityConfig
	Logger      *slog.Logger
	AuditLogger *slog.Logger
	Metrics     *metrics.Recorder
	// MediaDir is served under /media/ when set, for the local uploader.
	MediaDir string
	// TLSEnabled restricts the listener to TLS 1.2 and newer.
	TLSEnabled bool
	// WriteTimeout bounds a whole request including uploads.
	WriteTimeout time.Duration
}

type Server struct {
	httpServer  *http.Server
	router      chi.Router
	handler     *api.Handler
	logger      *slog.Logger
	metrics     *metrics.Recorder
	rateLimiter *rateLimiter
}

// New wires the router and middleware chain around handler. Every API route
// is served both at the root and under /api.
func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, errors.New("api handler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	corsHandler, err := corsMiddleware(cfg.CORS)
	if err != nil {
		return nil, err
	}

	resolver, err := newClientIPResolver(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	rl := newRateLimiter(cfg.RateLimit)
	if handler.RateLimiter == nil && rl.shared {
		handler.RateLimiter = rl
	}

	srv := &Server{
		handler:     handler,
		logger:      logger,
		metrics:     recorder,
		rateLimiter: rl,
	}

	r := chi.NewRouter()
	r.Use(withSubject)
	r.Use(requestIDMiddleware(logger))
	r.Use(resolveClientIP(resolver))
	r.Use(logging.RequestLogger(logging.RequestLoggerConfig{
		Logger:           logger,
		SkipPaths:        []string{"/healthz", "/metrics"},
		AdditionalFields: requestLogFields,
	}))
	r.Use(auditMiddleware(cfg.AuditLogger))
	r.Use(metrics.HTTPMiddleware(recorder))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(cfg.Security))
	if corsHandler != nil {
		r.Use(corsHandler)
	}
	r.Use(globalRateLimit(rl, recorder))
	r.Use(authenticate(handler, logger))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMiddlewareError(w, http.StatusNotFound, msgRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMiddlewareError(w, http.StatusMethodNotAllowed, msgMethodNotAllow)
	})

	r.Get("/healthz", handler.Health)
	r.Method(http.MethodGet, "/metrics", recorder.Handler())
	if dir := strings.TrimSpace(cfg.MediaDir); dir != "" {
		r.Handle("/media/*", newMediaHandler(dir))
	}
	r.Route("/api", srv.routes)
	r.Group(srv.routes)
	srv.router = r

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Minute
	}
	srv.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       writeTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.TLSEnabled {
		srv.httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return srv, nil
}

func (s *Server) routes(r chi.Router) {
	h := s.handler

	r.Post("/register", h.Register)
	r.With(loginRateLimit(s.rateLimiter, s.metrics, s.logger)).Post("/login", h.Login)

	r.Get("/podcasts", h.ListPodcasts)
	r.Get("/podcasts/{id}", h.GetPodcast)
	r.Get("/podcasts/{id}/episodes", h.ListEpisodes)
	r.Get("/episodes/{id}", h.GetEpisode)
	r.Get("/search/podcasts", h.SearchPodcasts)
	r.Get("/search/episodes", h.SearchEpisodes)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Post("/logout", h.Logout)
		r.Post("/reset-password", h.ResetPassword)
		r.Get("/me", h.Me)

		r.Post("/podcasts", h.CreatePodcast)
		r.Post("/podcasts/{id}", h.UpdatePodcast)
		r.Put("/podcasts/{id}", h.UpdatePodcast)
		r.Delete("/podcasts/{id}", h.DeletePodcast)
		r.Post("/podcasts/{id}/episodes", h.CreateEpisode)

		r.Post("/episodes/{id}", h.UpdateEpisode)
		r.Put("/episodes/{id}", h.UpdateEpisode)
		r.Delete("/episodes/{id}", h.DeleteEpisode)

		r.Get("/hosts", h.Hosts)
		r.Get("/hosts/{id}", h.Host)

		r.Get("/users", h.ListUsers)
		r.Post("/users", h.CreateUser)
		r.Get("/users/{id}", h.GetUser)
		r.Put("/users/{id}", h.UpdateUser)
		r.Delete("/users/{id}", h.DeleteUser)
	})
}

// Handler exposes the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns the configured http.Server for serverutil.Run.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases the rate limiter's Redis connection, if any.
func (s *Server) Close() error {
	if err := s.rateLimiter.Close(); err != nil {
		return fmt.Errorf("close rate limiter: %w", err)
	}
	return nil
}
