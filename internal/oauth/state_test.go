package oauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markb/plexgate/internal/statestore"
)

func newTestManager(t *testing.T, ttl time.Duration) *StateManager {
	store := statestore.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })
	return NewStateManager(store, ttl)
}

func TestStartIssuesStateAndVerifier(t *testing.T) {
	mgr := newTestManager(t, 0)

	attempt, err := mgr.Start(context.Background())
	require.NoError(t, err)

	assert.Len(t, attempt.State, StateLength)
	assert.NotEmpty(t, attempt.PKCE.Verifier)
	assert.NotEmpty(t, attempt.PKCE.Challenge)
	assert.NotEqual(t, attempt.State, attempt.PKCE.Verifier)
}

func TestValidateReturnsBoundVerifier(t *testing.T) {
	mgr := newTestManager(t, 0)
	ctx := context.Background()

	attempt, err := mgr.Start(ctx)
	require.NoError(t, err)

	verifier, err := mgr.Validate(ctx, attempt.State, attempt.State)
	require.NoError(t, err)
	assert.Equal(t, attempt.PKCE.Verifier, verifier)
}

func TestValidateRejectsMissingCookie(t *testing.T) {
	mgr := newTestManager(t, 0)
	ctx := context.Background()

	attempt, err := mgr.Start(ctx)
	require.NoError(t, err)

	_, err = mgr.Validate(ctx, attempt.State, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestValidateRejectsMismatch(t *testing.T) {
	mgr := newTestManager(t, 0)
	ctx := context.Background()

	attempt, err := mgr.Start(ctx)
	require.NoError(t, err)

	_, err = mgr.Validate(ctx, attempt.State, "some-other-state")
	assert.ErrorIs(t, err, ErrInvalidState)

	// Mismatch must not have consumed the record
	_, err = mgr.Validate(ctx, attempt.State, attempt.State)
	assert.NoError(t, err)
}

func TestValidateRejectsReplay(t *testing.T) {
	mgr := newTestManager(t, 0)
	ctx := context.Background()

	attempt, err := mgr.Start(ctx)
	require.NoError(t, err)

	_, err = mgr.Validate(ctx, attempt.State, attempt.State)
	require.NoError(t, err)

	_, err = mgr.Validate(ctx, attempt.State, attempt.State)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestValidateRejectsUnknownState(t *testing.T) {
	mgr := newTestManager(t, 0)

	_, err := mgr.Validate(context.Background(), "never-issued", "never-issued")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestValidateRejectsExpiredState(t *testing.T) {
	mgr := newTestManager(t, time.Millisecond)
	ctx := context.Background()

	attempt, err := mgr.Start(ctx)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = mgr.Validate(ctx, attempt.State, attempt.State)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestValidateConcurrentSingleWinner(t *testing.T) {
	mgr := newTestManager(t, 0)
	ctx := context.Background()

	attempt, err := mgr.Start(ctx)
	require.NoError(t, err)

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.Validate(ctx, attempt.State, attempt.State); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one concurrent callback must win")
}

func TestDefaultTTL(t *testing.T) {
	mgr := newTestManager(t, 0)
	assert.Equal(t, DefaultStateTTL, mgr.TTL())
}
