package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/markb/plexgate/internal/statestore"
)

// StateLength is the length of a state token: 32 random bytes as unpadded
// base64url.
const StateLength = 43

// DefaultStateTTL bounds how long a login attempt may sit between start and
// callback.
const DefaultStateTTL = 10 * time.Minute

// Attempt is one freshly started login attempt. The state goes to the
// client (response body and cookie); the verifier never leaves the server.
type Attempt struct {
	State string
	PKCE  *Challenge
}

// StateManager issues and validates single-use CSRF state tokens, each
// bound to a PKCE verifier in the state store.
type StateManager struct {
	store statestore.Store
	ttl   time.Duration
}

// NewStateManager creates a manager over the given store. ttl <= 0 uses
// DefaultStateTTL.
func NewStateManager(store statestore.Store, ttl time.Duration) *StateManager {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateManager{store: store, ttl: ttl}
}

// TTL returns the configured state lifetime, for cookie max-age.
func (m *StateManager) TTL() time.Duration {
	return m.ttl
}

// Start generates a state token and PKCE pair and stores the binding with
// the configured TTL.
func (m *StateManager) Start(ctx context.Context) (*Attempt, error) {
	state, err := randomToken()
	if err != nil {
		return nil, err
	}
	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, err
	}

	rec := &statestore.Record{
		State:        state,
		CodeVerifier: pkce.Verifier,
	}
	if err := m.store.Put(ctx, rec, m.ttl); err != nil {
		return nil, err
	}

	return &Attempt{State: state, PKCE: pkce}, nil
}

// Validate checks the presented state against the cookie state and consumes
// the stored record, returning the bound verifier. The consume is atomic:
// under two concurrent callbacks for the same state, exactly one succeeds
// and the loser gets ErrInvalidState. Any failure mode (absent cookie,
// mismatch, replay, expiry) collapses into ErrInvalidState.
func (m *StateManager) Validate(ctx context.Context, presented, cookie string) (string, error) {
	if presented == "" || cookie == "" || presented != cookie {
		return "", ErrInvalidState
	}

	rec, err := m.store.Consume(ctx, presented)
	if errors.Is(err, statestore.ErrNotFound) {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", err
	}
	return rec.CodeVerifier, nil
}
