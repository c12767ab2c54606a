package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by SQLite, for single-instance deployments
// that need in-flight logins to survive a restart. Consume relies on
// DELETE ... RETURNING being a single statement, so two racing callbacks
// cannot both read the same row.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	// Serialize writers; SQLite allows only one anyway and this avoids
	// SQLITE_BUSY under concurrent callbacks.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS oauth_state (
			state TEXT PRIMARY KEY,
			code_verifier TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create oauth_state table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put saves a record under its state token.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_state (state, code_verifier, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		rec.State, rec.CodeVerifier,
		now.Format(time.RFC3339Nano), expiresAt.Format(time.RFC3339Nano))
	return err
}

// Consume atomically retrieves and deletes a record in one statement.
func (s *SQLiteStore) Consume(ctx context.Context, state string) (*Record, error) {
	var verifier, createdAt, expiresAt string

	err := s.db.QueryRowContext(ctx, `
		DELETE FROM oauth_state
		WHERE state = ?
		RETURNING code_verifier, created_at, expires_at`,
		state).Scan(&verifier, &createdAt, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}

	rec := &Record{State: state, CodeVerifier: verifier}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	// The row is gone either way; an expired record never validates.
	if rec.Expired() {
		return nil, ErrNotFound
	}
	return rec, nil
}

// CleanupExpired removes all expired records.
func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM oauth_state WHERE expires_at <= ?",
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
