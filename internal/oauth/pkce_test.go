package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	require.NoError(t, err)

	// RFC 7636: verifier must be 43-128 characters
	assert.GreaterOrEqual(t, len(pkce.Verifier), 43)
	assert.LessOrEqual(t, len(pkce.Verifier), 128)

	for _, c := range pkce.Verifier {
		assert.True(t, isURLSafeBase64Char(c), "character %c should be URL-safe", c)
	}

	assert.Equal(t, ComputeChallenge(pkce.Verifier), pkce.Challenge)
}

func TestGeneratePKCEUnique(t *testing.T) {
	a, err := GeneratePKCE()
	require.NoError(t, err)
	b, err := GeneratePKCE()
	require.NoError(t, err)

	assert.NotEqual(t, a.Verifier, b.Verifier)
	assert.NotEqual(t, a.Challenge, b.Challenge)
}

func TestComputeChallenge(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := ComputeChallenge(verifier)

	hash := sha256.Sum256([]byte(verifier))
	expected := base64.RawURLEncoding.EncodeToString(hash[:])

	assert.Equal(t, expected, challenge)

	// Known S256 vector from RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", challenge)
}

func TestRandomTokenLength(t *testing.T) {
	token, err := randomToken()
	require.NoError(t, err)
	assert.Len(t, token, StateLength)
}

func isURLSafeBase64Char(c rune) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_'
}
