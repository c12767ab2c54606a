package statestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for single-instance deployments.
// A background janitor reaps expired records so abandoned login attempts
// do not accumulate.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// NewMemoryStore creates a memory store. cleanupInterval controls how often
// the janitor runs; zero disables it (CleanupExpired can still be called
// directly, which tests do).
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		records:     make(map[string]*Record),
		stopJanitor: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.janitor(cleanupInterval)
	}
	return s
}

// Put saves a record under its state token.
func (s *MemoryStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	now := time.Now().UTC()
	cp := *rec
	cp.CreatedAt = now
	cp.ExpiresAt = now.Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[cp.State] = &cp
	return nil
}

// Consume atomically retrieves and deletes a record. The write lock is held
// across the lookup and delete, so concurrent callers racing on the same
// state get exactly one winner.
func (s *MemoryStore) Consume(ctx context.Context, state string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[state]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.records, state)

	if rec.Expired() {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// CleanupExpired removes all expired records.
func (s *MemoryStore) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for state, rec := range s.records {
		if rec.Expired() {
			delete(s.records, state)
			removed++
		}
	}
	return removed, nil
}

// Close stops the janitor goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopJanitor) })
	return nil
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpired(context.Background())
		case <-s.stopJanitor:
			return
		}
	}
}
