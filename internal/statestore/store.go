// Package statestore provides time-bounded storage for in-flight OAuth
// login attempts. Every backend guarantees that Consume is a single atomic
// get-and-delete: when two requests race on the same state, exactly one
// observes the record and the other gets ErrNotFound.
package statestore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist, has expired, or was
// already consumed.
var ErrNotFound = errors.New("state record not found or expired")

// Record is one in-flight login attempt, keyed by its state token.
// It is written once by the start handler and removed exactly once, either
// by Consume on callback or by expiry cleanup.
type Record struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the record's TTL has elapsed.
func (r *Record) Expired() bool {
	return time.Now().After(r.ExpiresAt)
}

// Store is the backend interface for state records.
type Store interface {
	// Put saves a record under its state token with the given TTL.
	Put(ctx context.Context, rec *Record, ttl time.Duration) error

	// Consume atomically retrieves and deletes the record for the given
	// state. Returns ErrNotFound if no live record exists. A record is
	// returned to at most one caller, ever.
	Consume(ctx context.Context, state string) (*Record, error)

	// CleanupExpired removes expired records and returns how many were
	// deleted. Backends with native expiry may report zero.
	CleanupExpired(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
