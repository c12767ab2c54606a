package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// Default Plex identity-provider endpoints.
const (
	PlexAuthURL     = "https://app.plex.tv/auth"
	PlexTokenURL    = "https://plex.tv/api/v2/oauth/token"
	PlexRevokeURL   = "https://plex.tv/api/v2/oauth/revoke"
	PlexUserInfoURL = "https://plex.tv/users/account"
)

// defaultTimeout bounds every outbound provider call. The state record is
// always consumed before this I/O starts, so a slow provider cannot hold
// any shared state.
const defaultTimeout = 10 * time.Second

// Config holds the Plex OAuth client configuration. ClientID and
// RedirectURI are required; everything else has working defaults.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// Product and Version are sent as X-Plex-* headers on provider calls.
	Product string
	Version string

	// Endpoint overrides, used by tests to point at local servers.
	AuthURL     string
	TokenURL    string
	RevokeURL   string
	UserInfoURL string

	// Timeout for provider calls; zero means defaultTimeout.
	Timeout time.Duration
}

// TokenSet is the result of a code exchange or refresh. It is handed back
// to the caller and never persisted here.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UserInfo holds the Plex account fields we expose.
type UserInfo struct {
	ID       int    `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Thumb    string `json:"thumb"`
	PlexPass bool   `json:"plex_pass"`
}

// Client talks to the Plex identity provider.
type Client struct {
	cfg    Config
	oauth  *oauth2.Config
	http   *http.Client
	revoke string
	user   string
}

// NewClient creates a Plex OAuth client.
func NewClient(cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = PlexAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = PlexTokenURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = PlexRevokeURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = PlexUserInfoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Product == "" {
		cfg.Product = "Plexgate"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0"
	}

	return &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		http:   &http.Client{Timeout: cfg.Timeout},
		revoke: cfg.RevokeURL,
		user:   cfg.UserInfoURL,
	}
}

// AuthCodeURL builds the authorization URL for a state and PKCE challenge.
// Pure function of its inputs; no network call.
func (c *Client) AuthCodeURL(state, codeChallenge string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", Method),
	)
}

// ExchangeCode exchanges an authorization code plus its bound verifier for
// tokens. Provider failures are wrapped in ErrUpstream; the detail is for
// server-side logs only.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	tok, err := c.oauth.Exchange(c.withHTTPClient(ctx), code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange: %v", ErrUpstream, err)
	}
	return tokenSet(tok), nil
}

// Refresh exchanges a refresh token for a new token set. The provider may
// rotate the refresh token; whatever it returns is passed through.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	src := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: token refresh: %v", ErrUpstream, err)
	}
	return tokenSet(tok), nil
}

// Revoke forwards a revocation request (RFC 7009 shape) to the provider.
// Any provider response below 500 counts as success: the operation stays
// idempotent and an unknown token is indistinguishable from a revoked one.
func (c *Client) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{}
	form.Set("token", accessToken)
	form.Set("token_type_hint", "access_token")
	form.Set("client_id", c.cfg.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revoke,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setPlexHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: revoke: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: revoke returned status %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

// GetUserInfo fetches the Plex account for an access token.
func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.user, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create user info request: %w", err)
	}
	c.setPlexHeaders(req)
	req.Header.Set("X-Plex-Token", accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: user info: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: user info returned status %d", ErrUpstream, resp.StatusCode)
	}

	var userResp struct {
		User struct {
			ID           int    `json:"id"`
			UUID         string `json:"uuid"`
			Username     string `json:"username"`
			Email        string `json:"email"`
			Thumb        string `json:"thumb"`
			Subscription struct {
				Active bool `json:"active"`
			} `json:"subscription"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userResp); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}

	return &UserInfo{
		ID:       userResp.User.ID,
		UUID:     userResp.User.UUID,
		Username: userResp.User.Username,
		Email:    userResp.User.Email,
		Thumb:    userResp.User.Thumb,
		PlexPass: userResp.User.Subscription.Active,
	}, nil
}

// withHTTPClient makes golang.org/x/oauth2 use our bounded-timeout client.
func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// setPlexHeaders sets the headers Plex requires on every API call.
func (c *Client) setPlexHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Client-Identifier", c.cfg.ClientID)
	req.Header.Set("X-Plex-Product", c.cfg.Product)
	req.Header.Set("X-Plex-Version", c.cfg.Version)
}

// tokenSet converts an oauth2 token into our wire shape.
func tokenSet(tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		IssuedAt:     time.Now().UTC(),
	}
	if ts.TokenType == "" {
		ts.TokenType = "Bearer"
	}
	if !tok.Expiry.IsZero() {
		ts.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return ts
}
