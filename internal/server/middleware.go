package server

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig controls the per-client-IP rate limit on the auth
// endpoints. The limit runs before any handler logic so abusive clients
// cannot burn state records or provider quota.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Disabled bool
}

// DefaultRateLimit matches the posture of an auth surface: login attempts
// are rare, brute force is not.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 5,
		Window:   time.Minute,
	}
}

// rateLimiter returns the httprate middleware for the auth routes, keyed by
// client IP, answering 429 in the standard envelope.
func (s *Server) rateLimiter() func(http.Handler) http.Handler {
	cfg := s.cfg.RateLimit
	if cfg.Requests <= 0 {
		cfg.Requests = DefaultRateLimit().Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultRateLimit().Window
	}

	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusTooManyRequests, CodeRateLimited,
				"Too many requests, slow down")
		}),
	)
}

// securityHeaders sets baseline security headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
