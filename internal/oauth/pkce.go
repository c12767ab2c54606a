// Package oauth implements the Plex OAuth 2.0 authorization code flow with
// PKCE (RFC 7636): challenge generation, CSRF state management, and the
// provider client used for code exchange, refresh, and revocation.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// Challenge holds one PKCE verifier/challenge pair. The verifier stays
// server-side; only the S256 challenge is sent to the identity provider.
type Challenge struct {
	Verifier  string
	Challenge string
}

// Method is the only supported code challenge method. The plain method is
// deliberately not implemented.
const Method = "S256"

// GeneratePKCE generates a cryptographically random code verifier and its
// S256 challenge. The verifier is 32 random bytes base64url-encoded without
// padding: 43 characters, the RFC 7636 minimum.
func GeneratePKCE() (*Challenge, error) {
	verifier, err := randomToken()
	if err != nil {
		return nil, err
	}
	return &Challenge{
		Verifier:  verifier,
		Challenge: ComputeChallenge(verifier),
	}, nil
}

// ComputeChallenge computes the S256 code challenge for a verifier.
func ComputeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// randomToken returns 256 bits of entropy as a 43-character unpadded
// base64url string. Used for both verifiers and state tokens.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
