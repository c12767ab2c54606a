package server

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/markb/plexgate/internal/log"
	"github.com/markb/plexgate/internal/oauth"
)

// stateCookieName holds the CSRF state between start and callback. HttpOnly
// so scripts cannot read it; SameSite=Lax so the top-level redirect from the
// provider still carries it.
const stateCookieName = "plex_oauth_state"

const cookiePath = "/api/v1/auth/plex"

func (s *Server) setStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     cookiePath,
		MaxAge:   int(s.states.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// notConfigured answers 503 when no Plex client ID is set. One code for
// every endpoint so probes cannot map which parts are wired up.
func (s *Server) notConfigured(w http.ResponseWriter) bool {
	if s.plex != nil {
		return false
	}
	respondError(w, http.StatusServiceUnavailable, CodeOAuthNotConfigured,
		"Plex OAuth is not configured")
	return true
}

// handleStart begins a login attempt: new state + PKCE pair, state cookie,
// and the provider authorization URL for the client to redirect to.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.notConfigured(w) {
		return
	}

	attempt, err := s.states.Start(r.Context())
	if err != nil {
		log.Error("failed to start oauth attempt", "error", err.Error())
		respondError(w, http.StatusInternalServerError, CodeInternalError,
			"Failed to start authorization")
		return
	}

	s.tel.RecordFlowStarted(r.Context())
	s.setStateCookie(w, attempt.State)
	respondJSON(w, http.StatusOK, map[string]string{
		"authorization_url": s.plex.AuthCodeURL(attempt.State, attempt.PKCE.Challenge),
		"state":             attempt.State,
	})
}

// handleCallback completes the flow: the provider redirected the user here
// with ?code and ?state. Order matters: a missing code is a malformed
// request (400) before any state is spent; state failures collapse into a
// single 401; only then does the code exchange hit the provider.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.notConfigured(w) {
		return
	}

	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")

	if code == "" {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest,
			"Missing authorization code")
		return
	}

	var cookieState string
	if c, err := r.Cookie(stateCookieName); err == nil {
		cookieState = c.Value
	}

	verifier, err := s.states.Validate(r.Context(), state, cookieState)
	if err != nil {
		if !errors.Is(err, oauth.ErrInvalidState) {
			log.Error("state validation failed", "error", err.Error())
			respondError(w, http.StatusInternalServerError, CodeInternalError,
				"Failed to validate state")
			return
		}
		s.tel.RecordFlowCompleted(r.Context(), "invalid_state")
		s.clearStateCookie(w)
		respondError(w, http.StatusUnauthorized, CodeInvalidState,
			"Invalid or expired state")
		return
	}

	tokens, err := s.plex.ExchangeCode(r.Context(), code, verifier)
	if err != nil {
		log.Error("code exchange failed", "error", err.Error())
		s.tel.RecordFlowCompleted(r.Context(), "upstream_error")
		s.clearStateCookie(w)
		respondError(w, http.StatusBadGateway, CodeUpstreamError,
			"Authorization code exchange failed")
		return
	}

	s.tel.RecordFlowCompleted(r.Context(), "success")
	s.clearStateCookie(w)
	respondJSON(w, http.StatusOK, tokens)
}

// handleRefresh exchanges a refresh token for a fresh token set.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.notConfigured(w) {
		return
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest,
			"Missing refresh_token")
		return
	}

	tokens, err := s.plex.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		log.Error("token refresh failed", "error", err.Error())
		respondError(w, http.StatusBadGateway, CodeUpstreamError,
			"Token refresh failed")
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

// handleRevoke forwards revocation to the provider. The response never
// reveals whether the token existed; revoking twice looks the same as once.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if s.notConfigured(w) {
		return
	}

	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.AccessToken == "" {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest,
			"Missing access_token")
		return
	}

	if err := s.plex.Revoke(r.Context(), req.AccessToken); err != nil {
		log.Error("token revocation failed", "error", err.Error())
		respondError(w, http.StatusBadGateway, CodeUpstreamError,
			"Token revocation failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

// handleUser returns the Plex account behind an access token, passed in the
// X-Plex-Token header.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	if s.notConfigured(w) {
		return
	}

	token := r.Header.Get("X-Plex-Token")
	if token == "" {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest,
			"Missing X-Plex-Token header")
		return
	}

	info, err := s.plex.GetUserInfo(r.Context(), token)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidToken) {
			respondError(w, http.StatusUnauthorized, CodeInvalidToken,
				"Invalid or expired token")
			return
		}
		log.Error("user info fetch failed", "error", err.Error())
		respondError(w, http.StatusBadGateway, CodeUpstreamError,
			"Failed to fetch user info")
		return
	}

	respondJSON(w, http.StatusOK, info)
}
