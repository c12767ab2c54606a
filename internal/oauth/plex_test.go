package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthCodeURL(t *testing.T) {
	client := NewClient(Config{
		ClientID:    "plexgate-test",
		RedirectURI: "https://example.com/api/v1/auth/plex/callback",
		Scopes:      []string{"profile"},
	})

	raw := client.AuthCodeURL("test-state", "test-challenge")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "plexgate-test", q.Get("client_id"))
	assert.Equal(t, "https://example.com/api/v1/auth/plex/callback", q.Get("redirect_uri"))
	assert.Equal(t, "profile", q.Get("scope"))
	assert.Equal(t, "test-state", q.Get("state"))
	assert.Equal(t, "test-challenge", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "code", q.Get("response_type"))
}

func TestAuthCodeURLDeterministic(t *testing.T) {
	client := NewClient(Config{ClientID: "id", RedirectURI: "https://x/cb"})

	a := client.AuthCodeURL("s", "c")
	b := client.AuthCodeURL("s", "c")
	assert.Equal(t, a, b)
}

func TestExchangeCode(t *testing.T) {
	var gotForm url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "plex-access",
			"refresh_token": "plex-refresh",
			"token_type": "Bearer",
			"expires_in": 7776000
		}`))
	}))
	defer ts.Close()

	client := NewClient(Config{
		ClientID:    "plexgate-test",
		RedirectURI: "https://example.com/callback",
		TokenURL:    ts.URL,
	})

	tokens, err := client.ExchangeCode(context.Background(), "auth-code", "the-verifier")
	require.NoError(t, err)

	assert.Equal(t, "plex-access", tokens.AccessToken)
	assert.Equal(t, "plex-refresh", tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.InDelta(t, 7776000, tokens.ExpiresIn, 5)
	assert.WithinDuration(t, time.Now(), tokens.IssuedAt, time.Minute)

	assert.Equal(t, "auth-code", gotForm.Get("code"))
	assert.Equal(t, "the-verifier", gotForm.Get("code_verifier"))
	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
}

func TestExchangeCodeProviderRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer ts.Close()

	client := NewClient(Config{ClientID: "id", TokenURL: ts.URL})

	_, err := client.ExchangeCode(context.Background(), "bad-code", "v")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestExchangeCodeTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	client := NewClient(Config{ClientID: "id", TokenURL: ts.URL, Timeout: 20 * time.Millisecond})

	_, err := client.ExchangeCode(context.Background(), "code", "v")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestRefresh(t *testing.T) {
	var gotForm url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "new-access",
			"refresh_token": "rotated-refresh",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	}))
	defer ts.Close()

	client := NewClient(Config{ClientID: "id", TokenURL: ts.URL})

	tokens, err := client.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)

	assert.Equal(t, "new-access", tokens.AccessToken)
	assert.Equal(t, "rotated-refresh", tokens.RefreshToken, "rotated token passed through")
	assert.Equal(t, "refresh_token", gotForm.Get("grant_type"))
	assert.Equal(t, "old-refresh", gotForm.Get("refresh_token"))
}

func TestRefreshProviderRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient(Config{ClientID: "id", TokenURL: ts.URL})

	_, err := client.Refresh(context.Background(), "revoked-refresh")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestRevoke(t *testing.T) {
	var gotForm url.Values
	var gotHeaders http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(Config{ClientID: "plexgate-test", RevokeURL: ts.URL})

	err := client.Revoke(context.Background(), "token-to-revoke")
	require.NoError(t, err)

	assert.Equal(t, "token-to-revoke", gotForm.Get("token"))
	assert.Equal(t, "access_token", gotForm.Get("token_type_hint"))
	assert.Equal(t, "plexgate-test", gotForm.Get("client_id"))
	assert.Equal(t, "plexgate-test", gotHeaders.Get("X-Plex-Client-Identifier"))
	assert.NotEmpty(t, gotHeaders.Get("X-Plex-Product"))
}

func TestRevokeUnknownTokenStillSucceeds(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(Config{ClientID: "id", RevokeURL: ts.URL})

	// Provider rejecting the token is not distinguishable from success;
	// anything below 500 keeps revocation idempotent.
	assert.NoError(t, client.Revoke(context.Background(), "unknown-token"))
}

func TestRevokeUpstreamFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(Config{ClientID: "id", RevokeURL: ts.URL})

	assert.ErrorIs(t, client.Revoke(context.Background(), "token"), ErrUpstream)
}

func TestGetUserInfo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user-token", r.Header.Get("X-Plex-Token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"user": {
				"id": 12345,
				"uuid": "abc-123",
				"username": "plexuser",
				"email": "user@example.com",
				"thumb": "https://plex.tv/users/abc/avatar",
				"subscription": {"active": true}
			}
		}`))
	}))
	defer ts.Close()

	client := NewClient(Config{ClientID: "id", UserInfoURL: ts.URL})

	info, err := client.GetUserInfo(context.Background(), "user-token")
	require.NoError(t, err)

	assert.Equal(t, 12345, info.ID)
	assert.Equal(t, "abc-123", info.UUID)
	assert.Equal(t, "plexuser", info.Username)
	assert.Equal(t, "user@example.com", info.Email)
	assert.True(t, info.PlexPass)
}

func TestGetUserInfoInvalidToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient(Config{ClientID: "id", UserInfoURL: ts.URL})

	_, err := client.GetUserInfo(context.Background(), "bad-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
