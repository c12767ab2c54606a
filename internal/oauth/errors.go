package oauth

import "errors"

var (
	// ErrInvalidState is returned when callback state validation fails:
	// missing cookie, state mismatch, replay, or expiry. Callers must not
	// distinguish these cases to the client.
	ErrInvalidState = errors.New("invalid or expired oauth state")

	// ErrUpstream is returned when the identity provider rejects a request,
	// times out, or is unreachable.
	ErrUpstream = errors.New("identity provider request failed")

	// ErrInvalidToken is returned when the provider rejects an access token.
	ErrInvalidToken = errors.New("access token is invalid or expired")
)
