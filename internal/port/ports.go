// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
)

// AccountStore persists the username → account mapping.
// Implemented by the JSON file adapter.
type AccountStore interface {
	// Load reads the full mapping. It never fails on a missing or
	// malformed file; those read as an empty mapping.
	Load(ctx context.Context) (map[string]*domain.Account, error)
	// Save overwrites the durable mapping.
	Save(ctx context.Context, accounts map[string]*domain.Account) error

	Get(ctx context.Context, username string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	List(ctx context.Context) ([]*domain.Account, error)

	// Register inserts a new account, rejecting a taken username or email
	// in the same critical section.
	Register(ctx context.Context, account *domain.Account) error

	// Update runs fn against a copy of the account and persists the result
	// only if fn returns nil. Calls for the store are serialized.
	Update(ctx context.Context, username string, fn func(*domain.Account) error) (*domain.Account, error)
}

// PasswordHasher is the one-way password hashing capability.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// Mailer delivers outbound email.
type Mailer interface {
	Send(ctx context.Context, msg *domain.MailMessage) error
}

// RandomSource returns a uniformly distributed integer in [0, n).
// Implementations must be cryptographically secure.
type RandomSource interface {
	Intn(n int64) (int64, error)
}

// ChallengeStore keeps at most one OTP challenge per session.
type ChallengeStore interface {
	Get(ctx context.Context, sessionID string) (*domain.Challenge, bool, error)
	Put(ctx context.Context, c *domain.Challenge) error
	Delete(ctx context.Context, sessionID string) error
}

// RevocationStore remembers sessions that were ended before their token
// expired. Entries only need to outlive the token.
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}
