package cache

import (
	"context"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
)

// ChallengeStore keeps OTP challenges in process memory, keyed by session
// ID. Entries outlive the OTP TTL slightly so that an expired challenge is
// still seen, and reported as expired, by the manager.
type ChallengeStore struct {
	items *InMemory[domain.Challenge]
}

// NewChallengeStore creates an in-memory challenge store.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{items: New[domain.Challenge](domain.OTPTTL + time.Minute)}
}

func (s *ChallengeStore) Get(_ context.Context, sessionID string) (*domain.Challenge, bool, error) {
	c, ok := s.items.Get(sessionID)
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}

func (s *ChallengeStore) Put(_ context.Context, c *domain.Challenge) error {
	s.items.Set(c.SessionID, *c)
	return nil
}

func (s *ChallengeStore) Delete(_ context.Context, sessionID string) error {
	s.items.Delete(sessionID)
	return nil
}

// Close stops the background sweep.
func (s *ChallengeStore) Close() { s.items.Close() }
