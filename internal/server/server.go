// Package server exposes the Plex OAuth flow over HTTP: start, callback,
// refresh, revoke, and user lookup under /api/v1/auth/plex.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/acme/autocert"

	"github.com/markb/plexgate/internal/log"
	"github.com/markb/plexgate/internal/oauth"
	"github.com/markb/plexgate/internal/observability"
)

// Config holds server configuration.
type Config struct {
	Addr      string
	RateLimit RateLimitConfig

	// SecureCookies marks the state cookie Secure. Set when serving TLS or
	// behind a TLS-terminating proxy.
	SecureCookies bool

	// HTTPS via Let's Encrypt; empty Domain means plain HTTP.
	TLSDomain string
	CertDir   string
	HTTPAddr  string

	// Telemetry instruments requests and the flow; nil means disabled.
	Telemetry *observability.Telemetry
}

// Server routes Plex OAuth requests. plex is nil when no client ID is
// configured; every auth endpoint then answers 503.
type Server struct {
	cfg    Config
	router *chi.Mux
	plex   *oauth.Client
	states *oauth.StateManager
	tel    *observability.Telemetry

	httpServer   *http.Server
	httpsServer  *http.Server
	httpRedirect *http.Server
	autocertMgr  *autocert.Manager
}

// New creates a server. Pass a nil plex client to run unconfigured.
func New(cfg Config, plex *oauth.Client, states *oauth.StateManager) *Server {
	tel := cfg.Telemetry
	if tel == nil {
		tel = &observability.Telemetry{}
	}
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		plex:   plex,
		states: states,
		tel:    tel,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Plex-Token"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(observability.HTTPMiddleware(s.tel, "plexgate"))
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1/auth/plex", func(r chi.Router) {
		if !s.cfg.RateLimit.Disabled {
			r.Use(s.rateLimiter())
		}

		r.Get("/start", s.handleStart)
		r.Post("/start", s.handleStart)
		r.Get("/callback", s.handleCallback)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/revoke", s.handleRevoke)
		r.Get("/user", s.handleUser)
	})
}

// Router returns the HTTP handler, for tests and embedding.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"configured": s.plex != nil,
	})
}

// ListenAndServe serves plain HTTP on cfg.Addr.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
	}
	log.Info("listening", "addr", s.cfg.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops whichever servers are running.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for name, srv := range map[string]*http.Server{
		"https":         s.httpsServer,
		"http redirect": s.httpRedirect,
		"http":          s.httpServer,
	} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s server: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
