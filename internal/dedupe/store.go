package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"horse.fit/tgewatch/internal/db"
)

// ErrStoreUnavailable marks a dedup failure the cycle cannot work around:
// emitting alerts without dedup guarantees would duplicate notifications, so
// the cycle fails instead.
var ErrStoreUnavailable = errors.New("dedupe store unavailable")

// Store answers "have we seen this fingerprint" and records first sightings.
// Record is atomic: under concurrent calls with the same fingerprint exactly
// one caller observes inserted == true.
type Store interface {
	Seen(ctx context.Context, fingerprint []byte) (bool, error)
	Record(ctx context.Context, fingerprint []byte) (inserted bool, err error)
}

// PostgresStore persists fingerprints in the fingerprints table. Atomicity
// comes from insert-if-absent at the database, not from application locks.
type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Seen(ctx context.Context, fingerprint []byte) (bool, error) {
	seen, err := s.pool.FingerprintSeen(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return seen, nil
}

func (s *PostgresStore) Record(ctx context.Context, fingerprint []byte) (bool, error) {
	inserted, err := s.pool.InsertFingerprint(ctx, fingerprint, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return inserted, nil
}

// MemoryStore is the in-process implementation used by tests and dry runs.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

func (s *MemoryStore) Seen(_ context.Context, fingerprint []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[string(fingerprint)]
	return ok, nil
}

func (s *MemoryStore) Record(_ context.Context, fingerprint []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(fingerprint)
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}
