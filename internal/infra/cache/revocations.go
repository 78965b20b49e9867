package cache

import (
	"context"
	"time"
)

const revocationSweep = time.Minute

// RevocationStore remembers ended sessions in process memory. It only covers
// a single instance; use the Redis store when several instances share
// sessions.
type RevocationStore struct {
	items *InMemory[struct{}]
}

// NewRevocationStore creates an in-memory revocation store.
func NewRevocationStore() *RevocationStore {
	return &RevocationStore{items: New[struct{}](revocationSweep)}
}

func (s *RevocationStore) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	s.items.SetFor(sessionID, struct{}{}, ttl)
	return nil
}

func (s *RevocationStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	_, ok := s.items.Get(sessionID)
	return ok, nil
}

// Close stops the background sweep.
func (s *RevocationStore) Close() { s.items.Close() }
